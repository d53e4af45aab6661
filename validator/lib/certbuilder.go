package librpki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"
	"math/big"
	"math/bits"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// CertificateBuilder describes a certificate to sign. Extensions are
// written in a fixed order: subject and authority key identifiers, basic
// constraints, key usage, authority and subject information access, CRL
// distribution points, certificate policies and the RFC3779 extensions.
type CertificateBuilder struct {
	Kind CertificateKind

	Issuer       pkix.Name
	Subject      pkix.Name
	SerialNumber *big.Int
	NotBefore    time.Time
	NotAfter     time.Time

	PublicKey  crypto.PublicKey
	SigningKey crypto.Signer
	// Defaults to SHA256WithRSA for RSA signing keys.
	SignatureAlgorithm x509.SignatureAlgorithm

	CA                bool
	KeyUsage          x509.KeyUsage
	AddSubjectKeyId   bool
	AddAuthorityKeyId bool

	CRLDistributionPoints      []string
	AuthorityInformationAccess []SIA
	SubjectInformationAccess   []SIA
	Policies                   []asn1.ObjectIdentifier

	// Only for CERTIFICATE_RESOURCE.
	Resources          ResourceSet
	InheritedResources []ResourceType

	// Defaults to crypto/rand.
	Rand io.Reader
}

type basicConstraints struct {
	IsCA bool `asn1:"optional"`
}

type policyInformation struct {
	Policy asn1.ObjectIdentifier
}

func isEmptyName(name pkix.Name) bool {
	return len(name.ToRDNSequence()) == 0
}

// https://tools.ietf.org/html/rfc5280#section-4.2.1.3
func marshalKeyUsage(ku x509.KeyUsage) ([]byte, error) {
	var a [2]byte
	a[0] = bits.Reverse8(byte(ku))
	a[1] = bits.Reverse8(byte(ku >> 8))
	l := 1
	if a[1] != 0 {
		l = 2
	}
	bitString := a[:l]
	return asn1.Marshal(asn1.BitString{Bytes: bitString, BitLength: significantBits(bitString, 0)})
}

// A single distribution point with one full name per URI.
// https://tools.ietf.org/html/rfc5280#section-4.2.1.13
func marshalCRLDistributionPoints(uris []string) ([]byte, error) {
	for _, uri := range uris {
		if uri == "" {
			return nil, errors.New("empty CRL distribution point URI")
		}
	}
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1(cbasn1.Tag(0).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
				b.AddASN1(cbasn1.Tag(0).Constructed().ContextSpecific(), func(b *cryptobyte.Builder) {
					for _, uri := range uris {
						b.AddASN1(cbasn1.Tag(6).ContextSpecific(), func(b *cryptobyte.Builder) {
							b.AddBytes([]byte(uri))
						})
					}
				})
			})
		})
	})
	return b.Bytes()
}

func (cb *CertificateBuilder) check() error {
	switch {
	case isEmptyName(cb.Issuer):
		return errors.New("no issuer")
	case isEmptyName(cb.Subject):
		return errors.New("no subject")
	case cb.SerialNumber == nil:
		return errors.New("no serial number")
	case cb.PublicKey == nil:
		return errors.New("no public key")
	case cb.SigningKey == nil:
		return errors.New("no signing key")
	case cb.NotBefore.IsZero() || cb.NotAfter.IsZero():
		return errors.New("no validity period")
	case cb.NotAfter.Before(cb.NotBefore):
		return errors.New("validity period ends before it starts")
	case cb.KeyUsage&x509.KeyUsageCertSign != 0 && !cb.CA:
		return errors.New("key usage keyCertSign requires a CA certificate")
	}
	if cb.Kind != CERTIFICATE_RESOURCE && (!cb.Resources.IsEmpty() || len(cb.InheritedResources) > 0) {
		return errors.Errorf("resources on a %v certificate", cb.Kind)
	}
	return nil
}

func (cb *CertificateBuilder) resourceExtension() (ResourceExtension, error) {
	ext, err := NewResourceExtension(cb.InheritedResources, cb.Resources)
	if err != nil {
		return ext, err
	}
	if !cb.CA && !ext.IsFullyInherited() && cb.Resources.IsEmpty() {
		return ext, errors.New("end-entity resource certificate without resources")
	}
	return ext, nil
}

func (cb *CertificateBuilder) extensions() ([]pkix.Extension, error) {
	extensions := make([]pkix.Extension, 0)
	add := func(id asn1.ObjectIdentifier, critical bool, value []byte, err error) error {
		if err != nil {
			return errors.Wrapf(err, "encoding extension %v", id)
		}
		extensions = append(extensions, pkix.Extension{Id: id, Critical: critical, Value: value})
		return nil
	}

	if cb.AddSubjectKeyId {
		ski, err := HashPublicKey(cb.PublicKey)
		if err != nil {
			return nil, err
		}
		value, err := asn1.Marshal(ski)
		if err := add(SubjectKeyIdentifier, false, value, err); err != nil {
			return nil, err
		}
	}
	if cb.AddAuthorityKeyId {
		aki, err := HashPublicKey(cb.SigningKey.Public())
		if err != nil {
			return nil, err
		}
		value, err := asn1.Marshal(CRLAuthKeyId{Id: aki})
		if err := add(AuthorityKeyIdentifier, false, value, err); err != nil {
			return nil, err
		}
	}
	if cb.CA {
		value, err := asn1.Marshal(basicConstraints{IsCA: true})
		if err := add(OidBasicConstraints, true, value, err); err != nil {
			return nil, err
		}
	}
	if cb.KeyUsage != 0 {
		value, err := marshalKeyUsage(cb.KeyUsage)
		if err := add(OidKeyUsage, true, value, err); err != nil {
			return nil, err
		}
	}
	if len(cb.AuthorityInformationAccess) > 0 {
		value, err := EncodeInformationAccess(cb.AuthorityInformationAccess)
		if err := add(AuthorityInfoAccess, false, value, err); err != nil {
			return nil, err
		}
	}
	if len(cb.SubjectInformationAccess) > 0 {
		value, err := EncodeInformationAccess(cb.SubjectInformationAccess)
		if err := add(SubjectInfoAccess, false, value, err); err != nil {
			return nil, err
		}
	}
	if len(cb.CRLDistributionPoints) > 0 {
		value, err := marshalCRLDistributionPoints(cb.CRLDistributionPoints)
		if err := add(OidCRLDistributionPoints, false, value, err); err != nil {
			return nil, err
		}
	}
	if len(cb.Policies) > 0 {
		policies := make([]policyInformation, len(cb.Policies))
		for i, policy := range cb.Policies {
			policies[i] = policyInformation{Policy: policy}
		}
		value, err := asn1.Marshal(policies)
		if err := add(OidCertificatePolicies, true, value, err); err != nil {
			return nil, err
		}
	}
	if cb.Kind == CERTIFICATE_RESOURCE {
		ext, err := cb.resourceExtension()
		if err != nil {
			return nil, err
		}
		resourceExtensions, err := ext.Extensions()
		if err != nil {
			return nil, err
		}
		extensions = append(extensions, resourceExtensions...)
	}
	return extensions, nil
}

// Build signs the certificate. Errors are structural: the builder was
// misconfigured or signing failed.
func (cb *CertificateBuilder) Build() (*RPKICertificate, error) {
	if err := cb.check(); err != nil {
		return nil, errors.Wrap(err, "invalid certificate builder")
	}
	extensions, err := cb.extensions()
	if err != nil {
		return nil, err
	}

	sigAlg := cb.SignatureAlgorithm
	if _, ok := cb.SigningKey.Public().(*rsa.PublicKey); ok && sigAlg == x509.UnknownSignatureAlgorithm {
		sigAlg = x509.SHA256WithRSA
	}
	random := cb.Rand
	if random == nil {
		random = rand.Reader
	}

	template := &x509.Certificate{
		SerialNumber:       cb.SerialNumber,
		Subject:            cb.Subject,
		NotBefore:          cb.NotBefore,
		NotAfter:           cb.NotAfter,
		SignatureAlgorithm: sigAlg,
		ExtraExtensions:    extensions,
	}
	// Only the issuer name is taken from the parent, every extension
	// comes from ExtraExtensions.
	parent := &x509.Certificate{Subject: cb.Issuer}

	der, err := x509.CreateCertificate(random, template, parent, cb.PublicKey, cb.SigningKey)
	if err != nil {
		return nil, errors.Wrap(err, "signing certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrap(err, "parsing signed certificate")
	}
	return newRPKICertificate(cb.Kind, cert)
}
