package librpki

import (
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roaEEBuilder(keys []*rsa.PrivateKey, issuer *RPKICertificate, resources string) *CertificateBuilder {
	builder := eeBuilder(keys, issuer)
	builder.InheritedResources = nil
	builder.Resources = MustParseResourceSet(resources)
	return builder
}

func signedObjectBuilder(t *testing.T, keys []*rsa.PrivateKey, ee *CertificateBuilder) SignedObjectBuilder {
	cert, err := ee.Build()
	require.NoError(t, err)
	return SignedObjectBuilder{
		Certificate: cert,
		SigningKey:  keys[1],
		SigningTime: testNow,
	}
}

func testRoaBuilder(t *testing.T) *RoaCmsBuilder {
	keys := CreateKeys(t)
	root := buildRoot(t, keys)
	return &RoaCmsBuilder{
		SignedObjectBuilder: signedObjectBuilder(t, keys, roaEEBuilder(keys, root, "10.0.0.0/16, ffce::/32")),
		ASN:                 65000,
		Prefixes: []RoaPrefix{
			{Prefix: netip.MustParsePrefix("10.0.0.0/16"), MaxLength: 24},
			{Prefix: netip.MustParsePrefix("ffce::/32")},
		},
	}
}

func TestSignedObjectStructure(t *testing.T) {
	roa, err := testRoaBuilder(t).Build()
	require.NoError(t, err)

	cms, err := DecodeCMS(roa.Encoded)
	require.NoError(t, err)
	assert.Equal(t, SignedDataOID, cms.OID)

	signedData := cms.SignedData
	assert.Equal(t, CMS_SIGNED_DATA_VERSION_3, signedData.Version)
	require.Len(t, signedData.DigestAlgorithms, 1)
	assert.Equal(t, OidDigestSHA256, signedData.DigestAlgorithms[0].Algorithm)
	assert.Equal(t, RoaOID, signedData.EncapContentInfo.EContentType)
	assert.Empty(t, signedData.CRLs.FullBytes)

	require.Len(t, signedData.SignerInfos, 1)
	signer := signedData.SignerInfos[0]
	assert.Equal(t, CMS_SIGNER_INFO_VERSION_3, signer.Version)
	assert.Equal(t, roa.Certificate.SubjectKeyId(), signer.Sid.Bytes)
	assert.Equal(t, OidRSAEncryption, signer.SignatureAlgorithm.Algorithm)
	assert.Empty(t, signer.UnsignedAttrs.FullBytes)

	attributes, err := decodeAttributes(signer.SignedAttrs.Bytes)
	require.NoError(t, err)
	require.Len(t, attributes, 3)
	for _, id := range []asn1.ObjectIdentifier{ContentType, MessageDigest, SigningTime} {
		assert.Len(t, findAttributes(attributes, id), 1, id.String())
	}

	_, err = DecodeCMS(append(roa.Encoded, 0))
	assert.Error(t, err)
}

func TestSignedObjectRoundTrip(t *testing.T) {
	roa, err := testRoaBuilder(t).Build()
	require.NoError(t, err)

	result := NewValidationResult("test.roa")
	parser := &SignedObjectParser{Profile: roaProfile}
	parser.Parse(result, "test.roa", roa.Encoded)
	object, err := parser.SignedObject()
	require.NoError(t, err, result.String())
	assert.False(t, result.HasWarnings(), result.String())

	assert.True(t, object.Equal(roa.SignedObject))
	assert.True(t, object.SigningTime.Equal(testNow))
	assert.True(t, object.Certificate.Equal(roa.Certificate))
	assert.Equal(t, roa.Content, object.Content)
	assert.Nil(t, object.CRL)
	assert.Empty(t, object.CACertificates)

	for _, key := range []string{CMS_DATA_PARSING, CMS_CONTENT_PARSING, SIGNATURE_VERIFICATION, SIGNER_ID_MATCH, CONTENT_TYPE_VALUE} {
		check, ok := result.Result("test.roa", key)
		require.True(t, ok, key)
		assert.Equal(t, VALIDATION_PASSED, check.Status, key)
	}
}

func TestSignedObjectBuilderSelfCheck(t *testing.T) {
	digest, err := marshalAttribute(MessageDigest, make([]byte, 32))
	require.NoError(t, err)
	contentType, err := marshalAttribute(ContentType, ManifestOID)
	require.NoError(t, err)
	signingTime, err := marshalAttribute(SigningTime, testNow)
	require.NoError(t, err)

	tests := []struct {
		name       string
		attributes []Attribute
		key        string
	}{
		{"content type", []Attribute{contentType}, CONTENT_TYPE_VALUE},
		{"message digest", []Attribute{digest}, SIGNATURE_VERIFICATION},
		{"duplicate signing time", []Attribute{signingTime, signingTime}, SIGNED_ATTRS_CORRECT},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			builder := testRoaBuilder(t)
			builder.ExtraSignedAttributes = test.attributes
			_, err := builder.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation of generated ROA object failed")
			assert.Contains(t, err.Error(), test.key)
		})
	}
}

func TestSignedObjectUnknownAttributeWarns(t *testing.T) {
	unknown, err := marshalAttribute(asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1}, asn1.NullRawValue)
	require.NoError(t, err)

	builder := testRoaBuilder(t)
	builder.ExtraSignedAttributes = []Attribute{unknown}
	roa, err := builder.Build()
	require.NoError(t, err)

	_, result, err := ParseRoaCms("test.roa", roa.Encoded)
	require.NoError(t, err)
	check, ok := result.Result("test.roa", SIGNED_ATTRS_CORRECT)
	require.True(t, ok)
	assert.Equal(t, VALIDATION_WARNING, check.Status)
}

func TestSignedObjectBuilderErrors(t *testing.T) {
	keys := CreateKeys(t)
	root := buildRoot(t, keys)
	crl, err := (&CRLBuilder{
		Issuer:     root,
		SigningKey: keys[0],
		ThisUpdate: testNow,
		NextUpdate: testNow.Add(time.Hour),
		Number:     big.NewInt(1),
	}).Build()
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(b *RoaCmsBuilder)
	}{
		{"no certificate", func(b *RoaCmsBuilder) { b.Certificate = nil }},
		{"no signing key", func(b *RoaCmsBuilder) { b.SigningKey = nil }},
		{"no signing time", func(b *RoaCmsBuilder) { b.SigningTime = time.Time{} }},
		{"embedded CRL", func(b *RoaCmsBuilder) { b.CRL = crl }},
		{"embedded CA certificate", func(b *RoaCmsBuilder) { b.CACertificates = []*RPKICertificate{root} }},
		{"no prefixes", func(b *RoaCmsBuilder) { b.Prefixes = nil }},
		{"wrong signing key", func(b *RoaCmsBuilder) { b.SigningKey = keys[2] }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			builder := testRoaBuilder(t)
			test.modify(builder)
			_, err := builder.Build()
			assert.Error(t, err)
		})
	}
}

func TestSignerMatchesIssuerAndSerial(t *testing.T) {
	builder := testRoaBuilder(t)
	cert := builder.Certificate.Certificate

	serial, err := asn1.Marshal(cert.SerialNumber)
	require.NoError(t, err)
	sid, err := asn1.Marshal(issuerAndSerialNumber{
		Issuer:       asn1.RawValue{FullBytes: cert.RawIssuer},
		SerialNumber: asn1.RawValue{FullBytes: serial},
	})
	require.NoError(t, err)

	assert.True(t, signerMatches(asn1.RawValue{FullBytes: sid}, cert))
	assert.True(t, signerMatches(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, Bytes: cert.SubjectKeyId}, cert))
	assert.False(t, signerMatches(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, Bytes: []byte{1, 2, 3}}, cert))

	other := &x509.Certificate{RawIssuer: cert.RawIssuer, SerialNumber: big.NewInt(99)}
	assert.False(t, signerMatches(asn1.RawValue{FullBytes: sid}, other))
}

func TestSignedObjectRejectsGarbage(t *testing.T) {
	garbage, err := asn1.Marshal(pkix.AlgorithmIdentifier{Algorithm: SignedDataOID})
	require.NoError(t, err)

	for name, data := range map[string][]byte{
		"empty":        nil,
		"not sequence": {0x04, 0x00},
		"other oid":    fromHex("30 0b 06 09 2a 86 48 86 f7 0d 01 07 01"),
	} {
		t.Run(name, func(t *testing.T) {
			_, result, err := ParseRoaCms("test.roa", data)
			assert.Error(t, err)
			assert.Equal(t, []string{CMS_DATA_PARSING}, result.FailureKeys())
		})
	}

	_, result, err := ParseRoaCms("test.roa", garbage)
	assert.Error(t, err)
	assert.Equal(t, []string{CMS_CONTENT_PARSING}, result.FailureKeys())
}
