package pki

import (
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	testRepository = "rsync://example.net/repo/"
	testRootURI    = "rsync://example.net/ta/root.cer"
	testCRLURI     = testRepository + "root.crl"
	testMftURI     = testRepository + "root.mft"
)

func CreateKeys(t *testing.T) []*rsa.PrivateKey {
	data, err := os.ReadFile("../testdata/keys.pem")
	require.NoError(t, err)
	keys := make([]*rsa.PrivateKey, 0)
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		require.NoError(t, err)
		keys = append(keys, key)
	}
	require.Len(t, keys, 5)
	return keys
}

type TestingFileSeeker struct {
	Files map[string][]byte
}

func NewFileSeeker() *TestingFileSeeker {
	return &TestingFileSeeker{
		Files: make(map[string][]byte),
	}
}

func (fs *TestingFileSeeker) GetFile(file *PKIFile) (*SeekFile, error) {
	path := file.ComputePath()
	data, ok := fs.Files[path]
	if !ok {
		return nil, errors.Errorf("file %v could not be found", path)
	}
	return &SeekFile{File: path, Data: data, Sha256: librpki.HashContents(data)}, nil
}

func rootBuilder(keys []*rsa.PrivateKey) *librpki.CertificateBuilder {
	name := pkix.Name{CommonName: "TEST-ROOT"}
	return &librpki.CertificateBuilder{
		Kind:              librpki.CERTIFICATE_RESOURCE,
		Issuer:            name,
		Subject:           name,
		SerialNumber:      big.NewInt(1),
		NotBefore:         testNow.Add(-time.Hour),
		NotAfter:          testNow.Add(365 * 24 * time.Hour),
		PublicKey:         &keys[0].PublicKey,
		SigningKey:        keys[0],
		CA:                true,
		KeyUsage:          x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		AddSubjectKeyId:   true,
		AddAuthorityKeyId: true,
		SubjectInformationAccess: []librpki.SIA{
			librpki.NewSIA(librpki.CertRepository, testRepository),
			librpki.NewSIA(librpki.SIAManifest, testMftURI),
		},
		Policies:  []asn1.ObjectIdentifier{librpki.PolicyRPKI},
		Resources: librpki.MustParseResourceSet("10.0.0.0/8, 2001:db8::/32, AS64496-AS64511"),
	}
}

// childBuilder returns a certificate issued by root with the key at index
// key, signed with keys[0].
func childBuilder(keys []*rsa.PrivateKey, root *librpki.RPKICertificate, serial int64, key int) *librpki.CertificateBuilder {
	return &librpki.CertificateBuilder{
		Kind:                       librpki.CERTIFICATE_RESOURCE,
		Issuer:                     root.Certificate.Subject,
		Subject:                    pkix.Name{CommonName: "TEST-CHILD"},
		SerialNumber:               big.NewInt(serial),
		NotBefore:                  testNow.Add(-time.Hour),
		NotAfter:                   testNow.Add(24 * time.Hour),
		PublicKey:                  &keys[key].PublicKey,
		SigningKey:                 keys[0],
		KeyUsage:                   x509.KeyUsageDigitalSignature,
		AddSubjectKeyId:            true,
		AddAuthorityKeyId:          true,
		CRLDistributionPoints:      []string{testCRLURI},
		AuthorityInformationAccess: []librpki.SIA{librpki.NewSIA(librpki.CAIssuers, testRootURI)},
		Policies:                   []asn1.ObjectIdentifier{librpki.PolicyRPKI},
		InheritedResources:         librpki.ResourceTypes,
	}
}

func build(t *testing.T, builder *librpki.CertificateBuilder) *librpki.RPKICertificate {
	cert, err := builder.Build()
	require.NoError(t, err)
	return cert
}

func buildCRL(t *testing.T, keys []*rsa.PrivateKey, root *librpki.RPKICertificate, nextUpdate time.Time, revoked ...*big.Int) *librpki.RPKICRL {
	builder := &librpki.CRLBuilder{
		Issuer:     root,
		SigningKey: keys[0],
		ThisUpdate: testNow.Add(-time.Hour),
		NextUpdate: nextUpdate,
		Number:     big.NewInt(1),
	}
	for _, serial := range revoked {
		builder.Revoke(serial, testNow.Add(-time.Minute))
	}
	crl, err := builder.Build()
	require.NoError(t, err)
	return crl
}

func testValidator(locator CRLLocator, options librpki.ValidationOptions) *ResourceCertificateValidator {
	validator := NewResourceCertificateValidator(options, locator)
	validator.Clock = clockwork.NewFakeClockAt(testNow)
	return validator
}

// repositoryFixture publishes a root with a manifest, a CRL and a ROA.
type repositoryFixture struct {
	keys  []*rsa.PrivateKey
	root  *librpki.RPKICertificate
	files map[string][]byte
}

func newRepositoryFixture(t *testing.T) *repositoryFixture {
	keys := CreateKeys(t)
	root := build(t, rootBuilder(keys))
	crl := buildCRL(t, keys, root, testNow.Add(24*time.Hour))

	roaEE := childBuilder(keys, root, 3, 2)
	roaEE.InheritedResources = nil
	roaEE.Resources = librpki.MustParseResourceSet("10.0.0.0/16, AS64496")
	roaEE.SubjectInformationAccess = []librpki.SIA{librpki.NewSIA(librpki.SIASignedObject, testRepository+"a.roa")}
	roa, err := (&librpki.RoaCmsBuilder{
		SignedObjectBuilder: librpki.SignedObjectBuilder{
			Certificate: build(t, roaEE),
			SigningKey:  keys[2],
			SigningTime: testNow,
		},
		ASN:      64496,
		Prefixes: []librpki.RoaPrefix{{Prefix: netip.MustParsePrefix("10.0.0.0/16"), MaxLength: 24}},
	}).Build()
	require.NoError(t, err)

	mftEE := childBuilder(keys, root, 2, 3)
	mftEE.SubjectInformationAccess = []librpki.SIA{librpki.NewSIA(librpki.SIASignedObject, testMftURI)}
	mftBuilder := &librpki.ManifestCmsBuilder{
		SignedObjectBuilder: librpki.SignedObjectBuilder{
			Certificate: build(t, mftEE),
			SigningKey:  keys[3],
			SigningTime: testNow,
		},
		Number:     big.NewInt(1),
		ThisUpdate: testNow.Add(-time.Hour),
		NextUpdate: testNow.Add(24 * time.Hour),
	}
	mftBuilder.AddFile("root.crl", crl.Encoded()).AddFile("a.roa", roa.Encoded)
	mft, err := mftBuilder.Build()
	require.NoError(t, err)

	return &repositoryFixture{
		keys: keys,
		root: root,
		files: map[string][]byte{
			testRootURI:              root.Encoded(),
			testCRLURI:               crl.Encoded(),
			testMftURI:               mft.Encoded,
			testRepository + "a.roa": roa.Encoded,
		},
	}
}

func (f *repositoryFixture) seeker() *TestingFileSeeker {
	seeker := NewFileSeeker()
	for path, data := range f.files {
		seeker.Files[path] = data
	}
	return seeker
}

func (f *repositoryFixture) manager(t *testing.T, seeker FileSeeker) *SimpleManager {
	manager := NewSimpleManager(seeker, testValidator(NewLocalCRLLocator(seeker), librpki.DefaultValidationOptions()))
	require.NoError(t, manager.AddTAL(librpki.NewTAL(f.root, "https://example.net/ta/root.cer", testRootURI)))
	return manager
}

func TestExploreRepository(t *testing.T) {
	fixture := newRepositoryFixture(t)
	manager := fixture.manager(t, fixture.seeker())

	count := manager.Explore()
	assert.Equal(t, 2, count)
	assert.False(t, manager.Result.HasFailures(), manager.Result.String())
	assert.Empty(t, manager.Errors)

	roas := manager.ROAs()
	require.Len(t, roas, 1)
	assert.Equal(t, uint32(64496), roas[0].ROA.ASN)
	assert.Equal(t, librpki.ValidationLocation(testRepository+"a.roa"), roas[0].Location)
	assert.Equal(t, testRepository+"a.roa", roas[0].File.ComputePath())

	check, ok := manager.Result.Result(testMftURI, librpki.MANIFEST_PAST_NEXT_UPDATE_TIME)
	require.True(t, ok)
	assert.Equal(t, librpki.VALIDATION_PASSED, check.Status)
	check, ok = manager.Result.Result(testRepository+"a.roa", librpki.VALIDATOR_MANIFEST_ENTRY_HASH_MATCHES)
	require.True(t, ok)
	assert.Equal(t, librpki.VALIDATION_PASSED, check.Status)
	check, ok = manager.Result.Result(testRootURI, librpki.TRUST_ANCHOR_PUBLIC_KEY_MATCH)
	require.True(t, ok)
	assert.Equal(t, librpki.VALIDATION_PASSED, check.Status)
}

func TestExploreRepositoryFailures(t *testing.T) {
	t.Run("modified object", func(t *testing.T) {
		fixture := newRepositoryFixture(t)
		seeker := fixture.seeker()
		seeker.Files[testRepository+"a.roa"] = append([]byte{}, fixture.files[testCRLURI]...)
		manager := fixture.manager(t, seeker)
		manager.Explore()

		assert.Empty(t, manager.ROAs())
		assert.True(t, manager.Result.HasFailureForLocation(testRepository+"a.roa"))
		assert.Equal(t, []string{librpki.VALIDATOR_MANIFEST_ENTRY_HASH_MATCHES}, manager.Result.FailureKeys())
		require.Len(t, manager.Errors, 1)
	})

	t.Run("missing object", func(t *testing.T) {
		fixture := newRepositoryFixture(t)
		seeker := fixture.seeker()
		delete(seeker.Files, testRepository+"a.roa")
		manager := fixture.manager(t, seeker)
		manager.Explore()

		assert.Empty(t, manager.ROAs())
		assert.Equal(t, []string{librpki.VALIDATOR_MANIFEST_ENTRY_FOUND}, manager.Result.FailureKeys())
	})

	t.Run("missing CRL", func(t *testing.T) {
		fixture := newRepositoryFixture(t)
		seeker := fixture.seeker()
		delete(seeker.Files, testCRLURI)
		manager := fixture.manager(t, seeker)
		manager.Explore()

		assert.Empty(t, manager.ROAs())
		assert.True(t, manager.Result.HasFailureForLocation(testMftURI))
		assert.Contains(t, manager.Result.FailureKeys(), librpki.OBJECTS_CRL_VALID)
		assert.Contains(t, manager.Result.FailureKeys(), librpki.VALIDATOR_READ_FILE)
	})

	t.Run("other trust anchor", func(t *testing.T) {
		fixture := newRepositoryFixture(t)
		other := rootBuilder(fixture.keys)
		other.PublicKey = &fixture.keys[4].PublicKey
		other.SigningKey = fixture.keys[4]
		seeker := fixture.seeker()
		seeker.Files[testRootURI] = build(t, other).Encoded()
		manager := fixture.manager(t, seeker)
		assert.Equal(t, 1, manager.Explore())

		assert.Equal(t, []string{librpki.TRUST_ANCHOR_PUBLIC_KEY_MATCH}, manager.Result.FailureKeys())
		assert.Empty(t, manager.Valid)
	})
}

func TestExploreCAWithoutManifest(t *testing.T) {
	fixture := newRepositoryFixture(t)
	builder := rootBuilder(fixture.keys)
	builder.SubjectInformationAccess = []librpki.SIA{librpki.NewSIA(librpki.CertRepository, testRepository)}
	root := build(t, builder)
	seeker := fixture.seeker()
	seeker.Files[testRootURI] = root.Encoded()

	manager := NewSimpleManager(seeker, testValidator(NewLocalCRLLocator(seeker), librpki.DefaultValidationOptions()))
	require.NoError(t, manager.AddTAL(librpki.NewTAL(root, "https://example.net/ta/root.cer", testRootURI)))
	assert.Equal(t, 1, manager.Explore())

	assert.Equal(t, []string{librpki.CERT_SIA_IS_PRESENT}, manager.Result.FailureKeys())
	assert.True(t, manager.Result.HasFailureForLocation(testRootURI))
	assert.False(t, manager.Explored[""])
	assert.False(t, manager.Explored[testMftURI])
	assert.Empty(t, manager.Valid)
	require.Len(t, manager.Errors, 1)
}

func TestAddTALWithoutRsyncURI(t *testing.T) {
	fixture := newRepositoryFixture(t)
	manager := NewSimpleManager(fixture.seeker(), testValidator(nil, librpki.DefaultValidationOptions()))
	assert.Error(t, manager.AddTAL(librpki.NewTAL(fixture.root, "https://example.net/ta/root.cer")))
}

func TestExploreLocalMirror(t *testing.T) {
	fixture := newRepositoryFixture(t)
	dir := t.TempDir()
	for uri, data := range fixture.files {
		path := filepath.Join(dir, uri[len("rsync://example.net/"):])
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}

	fetch := NewLocalFetch(ParseMapDirectory("rsync://example.net/=" + dir))
	manager := fixture.manager(t, fetch)
	manager.Explore()
	assert.False(t, manager.Result.HasFailures(), manager.Result.String())
	assert.Len(t, manager.ROAs(), 1)
}
