package librpki

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// https://tools.ietf.org/html/rfc6487

var (
	SubjectInfoAccess   = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 11}
	AuthorityInfoAccess = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}

	SubjectKeyIdentifier     = asn1.ObjectIdentifier{2, 5, 29, 14}
	AuthorityKeyIdentifier   = asn1.ObjectIdentifier{2, 5, 29, 35}
	OidKeyUsage              = asn1.ObjectIdentifier{2, 5, 29, 15}
	OidBasicConstraints      = asn1.ObjectIdentifier{2, 5, 29, 19}
	OidCRLDistributionPoints = asn1.ObjectIdentifier{2, 5, 29, 31}
	OidCertificatePolicies   = asn1.ObjectIdentifier{2, 5, 29, 32}

	// https://tools.ietf.org/html/rfc6484#section-1.2
	PolicyRPKI = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 14, 2}

	CAIssuers       = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 2}
	CertRepository  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 5}
	SIAManifest     = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 10}
	SIASignedObject = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 11}
	CertRRDP        = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 13}

	oidCommonName   = asn1.ObjectIdentifier{2, 5, 4, 3}
	oidSerialNumber = asn1.ObjectIdentifier{2, 5, 4, 5}
)

type CertificateKind int

const (
	CERTIFICATE_PLAIN CertificateKind = iota
	CERTIFICATE_RESOURCE
	CERTIFICATE_PROVISIONING_IDENTITY
)

var (
	CertificateKindToName = map[CertificateKind]string{
		CERTIFICATE_PLAIN:                 "plain",
		CERTIFICATE_RESOURCE:              "resource",
		CERTIFICATE_PROVISIONING_IDENTITY: "provisioning-identity",
	}
)

func (k CertificateKind) String() string {
	return CertificateKindToName[k]
}

// SIA is an AccessDescription of the authority and subject information
// access extensions. Only URI general names are supported.
type SIA struct {
	AccessMethod asn1.ObjectIdentifier
	GeneralName  []byte `asn1:"tag:6"`
}

func NewSIA(method asn1.ObjectIdentifier, uri string) SIA {
	return SIA{AccessMethod: method, GeneralName: []byte(uri)}
}

func (sia SIA) URI() string {
	return string(sia.GeneralName)
}

func (sia SIA) String() string {
	return fmt.Sprintf("SIA %v %v", sia.AccessMethod, string(sia.GeneralName))
}

func DecodeSubjectInformationAccess(data []byte) ([]SIA, error) {
	var sias []SIA
	rest, err := asn1.Unmarshal(data, &sias)
	if err != nil {
		return sias, err
	}
	if len(rest) > 0 {
		return sias, errors.New("trailing data after information access")
	}
	return sias, nil
}

func EncodeInformationAccess(sias []SIA) ([]byte, error) {
	for _, sia := range sias {
		if len(sia.GeneralName) == 0 {
			return nil, errors.Errorf("empty URI for access method %v", sia.AccessMethod)
		}
	}
	return asn1.Marshal(sias)
}

// https://tools.ietf.org/html/rfc5280#section-4.2.1.2
func DecodeKeyAuthority(data []byte) ([]byte, error) {
	var key CRLAuthKeyId
	_, err := asn1.Unmarshal(data, &key)
	if err != nil {
		return key.Id, err
	}
	return key.Id, nil
}

func DecodeKeyIdentifier(data []byte) ([]byte, error) {
	var key []byte
	_, err := asn1.Unmarshal(data, &key)
	if err != nil {
		return key, err
	}
	return key, nil
}

// HashRSAPublicKey computes the key identifier of an RSA key: the SHA-1 of
// the DER encoded RSAPublicKey.
func HashRSAPublicKey(key rsa.PublicKey) ([]byte, error) {
	keyBytes, err := asn1.Marshal(key)
	if err != nil {
		return nil, err
	}
	hash := sha1.Sum(keyBytes)
	return hash[:], nil
}

// HashPublicKey computes the key identifier of any public key from the
// subjectPublicKey bit string.
func HashPublicKey(pub crypto.PublicKey) ([]byte, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling public key")
	}
	input := cryptobyte.String(spki)
	var inner cryptobyte.String
	var key asn1.BitString
	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) ||
		!inner.SkipASN1(cbasn1.SEQUENCE) ||
		!inner.ReadASN1BitString(&key) {
		return nil, errors.New("malformed subject public key info")
	}
	hash := sha1.Sum(key.Bytes)
	return hash[:], nil
}

// RPKICertificate is a parsed certificate with its RPKI specific extensions
// decoded. Two certificates are equal when their DER encodings are.
type RPKICertificate struct {
	Kind        CertificateKind
	Certificate *x509.Certificate

	// Zero unless Kind is CERTIFICATE_RESOURCE.
	Resources ResourceExtension

	SubjectInformationAccess   []SIA
	AuthorityInformationAccess []SIA
	Policy                     asn1.ObjectIdentifier
}

func newRPKICertificate(kind CertificateKind, cert *x509.Certificate) (*RPKICertificate, error) {
	rpkiCert := &RPKICertificate{
		Kind:        kind,
		Certificate: cert,
	}
	for _, extension := range cert.Extensions {
		var err error
		switch {
		case extension.Id.Equal(SubjectInfoAccess):
			rpkiCert.SubjectInformationAccess, err = DecodeSubjectInformationAccess(extension.Value)
		case extension.Id.Equal(AuthorityInfoAccess):
			rpkiCert.AuthorityInformationAccess, err = DecodeSubjectInformationAccess(extension.Value)
		}
		if err != nil {
			return rpkiCert, errors.Wrapf(err, "decoding extension %v", extension.Id)
		}
	}
	if len(cert.PolicyIdentifiers) > 0 {
		rpkiCert.Policy = cert.PolicyIdentifiers[0]
	}
	if kind == CERTIFICATE_RESOURCE {
		resources, err := ParseResourceExtension(cert)
		if err != nil {
			return rpkiCert, err
		}
		rpkiCert.Resources = resources
	}
	return rpkiCert, nil
}

func (cert *RPKICertificate) Encoded() []byte {
	return cert.Certificate.Raw
}

func (cert *RPKICertificate) SerialNumber() *big.Int {
	return cert.Certificate.SerialNumber
}

func (cert *RPKICertificate) SubjectKeyId() []byte {
	return cert.Certificate.SubjectKeyId
}

func (cert *RPKICertificate) AuthorityKeyId() []byte {
	return cert.Certificate.AuthorityKeyId
}

func (cert *RPKICertificate) PublicKey() crypto.PublicKey {
	return cert.Certificate.PublicKey
}

func (cert *RPKICertificate) IsCA() bool {
	return cert.Certificate.BasicConstraintsValid && cert.Certificate.IsCA
}

func (cert *RPKICertificate) IsEE() bool {
	return !cert.IsCA()
}

// IsRoot returns true for certificates whose subject equals their issuer.
func (cert *RPKICertificate) IsRoot() bool {
	return bytes.Equal(cert.Certificate.RawSubject, cert.Certificate.RawIssuer)
}

func (cert *RPKICertificate) ValidityPeriod() (time.Time, time.Time) {
	return cert.Certificate.NotBefore, cert.Certificate.NotAfter
}

func (cert *RPKICertificate) IsValidAt(t time.Time) bool {
	return !t.Before(cert.Certificate.NotBefore) && !t.After(cert.Certificate.NotAfter)
}

func (cert *RPKICertificate) CRLDistributionPoints() []string {
	return cert.Certificate.CRLDistributionPoints
}

// CRLURI returns the first rsync CRL distribution point, falling back to
// the first one of any scheme.
func (cert *RPKICertificate) CRLURI() string {
	points := cert.Certificate.CRLDistributionPoints
	for _, uri := range points {
		if strings.HasPrefix(uri, "rsync://") {
			return uri
		}
	}
	if len(points) > 0 {
		return points[0]
	}
	return ""
}

func findAccess(sias []SIA, method asn1.ObjectIdentifier, scheme string) string {
	for _, sia := range sias {
		if sia.AccessMethod.Equal(method) && strings.HasPrefix(sia.URI(), scheme) {
			return sia.URI()
		}
	}
	return ""
}

func (cert *RPKICertificate) RepositoryURI() string {
	return findAccess(cert.SubjectInformationAccess, CertRepository, "rsync://")
}

func (cert *RPKICertificate) ManifestURI() string {
	return findAccess(cert.SubjectInformationAccess, SIAManifest, "rsync://")
}

func (cert *RPKICertificate) RRDPNotifyURI() string {
	return findAccess(cert.SubjectInformationAccess, CertRRDP, "https://")
}

func (cert *RPKICertificate) SignedObjectURI() string {
	return findAccess(cert.SubjectInformationAccess, SIASignedObject, "rsync://")
}

func (cert *RPKICertificate) ParentCertificateURI() string {
	return findAccess(cert.AuthorityInformationAccess, CAIssuers, "rsync://")
}

func (cert *RPKICertificate) Equal(o *RPKICertificate) bool {
	if cert == nil || o == nil {
		return cert == o
	}
	return bytes.Equal(cert.Encoded(), o.Encoded())
}

func (cert *RPKICertificate) String() string {
	s := fmt.Sprintf("RPKI Certificate (%v): ", cert.Kind)

	s += fmt.Sprintf("KeyIdentifier: %v / Emitter: %v",
		hex.EncodeToString(cert.SubjectKeyId()),
		hex.EncodeToString(cert.AuthorityKeyId()))

	sias := make([]string, 0, len(cert.SubjectInformationAccess))
	for _, i := range cert.SubjectInformationAccess {
		sias = append(sias, i.String())
	}
	s += fmt.Sprintf(" SIA: [%v]", strings.Join(sias, ", "))

	if cert.Kind == CERTIFICATE_RESOURCE {
		s += fmt.Sprintf(" Resources: [%v]", cert.Resources)
	}
	return s
}

// A printable string per X.680.
func isPrintableString(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.ContainsRune(" '()+,-./:=?", c):
		default:
			return false
		}
	}
	return true
}

// https://tools.ietf.org/html/rfc6487#section-4.4
func isValidRPKIName(names []pkix.AttributeTypeAndValue) bool {
	cns, serials := 0, 0
	for _, name := range names {
		switch {
		case name.Type.Equal(oidCommonName):
			cns++
			value, ok := name.Value.(string)
			if !ok || !isPrintableString(value) {
				return false
			}
		case name.Type.Equal(oidSerialNumber):
			serials++
		}
	}
	return cns == 1 && serials <= 1
}
