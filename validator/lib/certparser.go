package librpki

import (
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// CertificateParser decodes a certificate of a given kind and records its
// structural checks in a ValidationResult.
//
// https://tools.ietf.org/html/rfc6487#section-4
type CertificateParser struct {
	Kind CertificateKind

	result   *ValidationResult
	location ValidationLocation
	cert     *RPKICertificate
}

func findExtension(cert *x509.Certificate, id asn1.ObjectIdentifier) (pkix.Extension, bool) {
	for _, extension := range cert.Extensions {
		if extension.Id.Equal(id) {
			return extension, true
		}
	}
	return pkix.Extension{}, false
}

// Parse decodes data and validates it, recording checks at location.
func (p *CertificateParser) Parse(result *ValidationResult, location ValidationLocation, data []byte) {
	p.result, p.location, p.cert = result, location, nil
	defer result.PushLocation(location)()

	cert, err := x509.ParseCertificate(data)
	if !result.RejectIfFalse(err == nil, CERTIFICATE_PARSED) {
		return
	}
	p.validate(cert)
}

// ValidateCertificate validates an already decoded certificate, such as the
// end-entity certificate embedded in a signed object.
func (p *CertificateParser) ValidateCertificate(result *ValidationResult, location ValidationLocation, cert *x509.Certificate) {
	p.result, p.location, p.cert = result, location, nil
	defer result.PushLocation(location)()
	p.validate(cert)
}

func (p *CertificateParser) validate(cert *x509.Certificate) {
	result := p.result
	if p.Kind == CERTIFICATE_RESOURCE {
		p.validatePolicy(cert)
	}
	p.validateSignatureAlgorithm(cert)
	p.validatePublicKey(cert)

	present := HasResourceExtensions(cert)
	if p.Kind == CERTIFICATE_RESOURCE {
		if result.RejectIfFalse(present, RESOURCE_EXT_PRESENT) {
			p.validateResources(cert)
		}
		result.WarnIfFalse(isValidRPKIName(cert.Issuer.Names), CERT_ISSUER_CORRECT, cert.Issuer.String())
		result.WarnIfFalse(isValidRPKIName(cert.Subject.Names), CERT_SUBJECT_CORRECT, cert.Subject.String())
		if isSelfSigned(cert) {
			result.RejectIfFalse(len(cert.CRLDistributionPoints) == 0, CRLDP_OMITTED)
		} else {
			result.RejectIfFalse(len(cert.CRLDistributionPoints) > 0, CRLDP_PRESENT)
		}
	} else {
		result.RejectIfTrue(present, RESOURCE_EXT_NOT_PRESENT)
	}

	if result.HasFailureForCurrentLocation() {
		return
	}
	rpkiCert, err := newRPKICertificate(p.Kind, cert)
	if err != nil {
		result.Error(OBJECTS_GENERAL_PARSING, err.Error())
		return
	}
	p.cert = rpkiCert
}

func isSelfSigned(cert *x509.Certificate) bool {
	return string(cert.RawSubject) == string(cert.RawIssuer)
}

// https://tools.ietf.org/html/rfc6487#section-4.8.9
func (p *CertificateParser) validatePolicy(cert *x509.Certificate) {
	result := p.result
	criticals := 0
	for _, extension := range cert.Extensions {
		if extension.Critical {
			criticals++
		}
	}
	if !result.RejectIfFalse(criticals > 0, CRITICAL_EXT_PRESENT) {
		return
	}
	extension, found := findExtension(cert, OidCertificatePolicies)
	result.RejectIfFalse(found && extension.Critical, POLICY_EXT_CRITICAL)
	if !result.RejectIfFalse(found, POLICY_EXT_VALUE) {
		return
	}

	input := cryptobyte.String(extension.Value)
	var policies cryptobyte.String
	if !input.ReadASN1(&policies, cbasn1.SEQUENCE) || !input.Empty() {
		result.Error(POLICY_VALIDATION)
		return
	}
	infos := make([]cryptobyte.String, 0, 1)
	for !policies.Empty() {
		var info cryptobyte.String
		if !policies.ReadASN1(&info, cbasn1.SEQUENCE) {
			result.Error(POLICY_VALIDATION)
			return
		}
		infos = append(infos, info)
	}
	if !result.RejectIfFalse(len(infos) == 1, SINGLE_CERT_POLICY) {
		return
	}
	info := infos[0]
	var policy asn1.ObjectIdentifier
	if !result.RejectIfFalse(info.ReadASN1ObjectIdentifier(&policy), POLICY_ID_PRESENT) {
		return
	}
	result.RejectIfFalse(policy.Equal(PolicyRPKI), POLICY_ID_VERSION, policy.String())
	result.RejectIfFalse(info.Empty(), POLICY_QUALIFIER)
}

var allowedSignatureAlgorithms = map[x509.SignatureAlgorithm]bool{
	x509.SHA256WithRSA: true,
	x509.SHA384WithRSA: true,
	x509.SHA512WithRSA: true,
}

func (p *CertificateParser) validateSignatureAlgorithm(cert *x509.Certificate) {
	p.result.RejectIfFalse(allowedSignatureAlgorithms[cert.SignatureAlgorithm], CERTIFICATE_SIGNATURE_ALGORITHM, cert.SignatureAlgorithm.String())
}

func (p *CertificateParser) validatePublicKey(cert *x509.Certificate) {
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if p.result.RejectIfFalse(ok, PUBLIC_KEY_CERT_ALGORITHM, cert.PublicKeyAlgorithm.String()) {
		size := key.N.BitLen()
		p.result.WarnIfFalse(size == 2048, PUBLIC_KEY_CERT_SIZE, strconv.Itoa(size))
	}
}

// Inherited resource types must not also be held directly.
func (p *CertificateParser) validateResources(cert *x509.Certificate) {
	for _, extension := range cert.Extensions {
		if extension.Id.Equal(IpAddrBlock) || extension.Id.Equal(AutonomousSysIds) {
			if !p.result.RejectIfFalse(extension.Critical, RESOURCE_EXT_CRITICAL, extension.Id.String()) {
				return
			}
		}
	}
	inherited, resources, err := decodeResourceExtension(cert)
	if err != nil {
		p.result.Error(AS_OR_IP_RESOURCE_PRESENT, err.Error())
		return
	}
	if !p.result.RejectIfFalse(len(inherited) > 0 || !resources.IsEmpty(), AS_OR_IP_RESOURCE_PRESENT) {
		return
	}
	overlapping := make([]string, 0)
	for _, t := range inherited {
		if resources.ContainsType(t) {
			overlapping = append(overlapping, t.String())
		}
	}
	p.result.RejectIfFalse(len(overlapping) == 0, PARTIAL_INHERITANCE, overlapping...)
}

// Certificate returns the parsed certificate, or an error when any check
// at the parsed location failed.
func (p *CertificateParser) Certificate() (*RPKICertificate, error) {
	if p.result == nil {
		return nil, errors.New("no certificate was parsed")
	}
	if p.result.HasFailureForLocation(p.location) || p.cert == nil {
		failures := make([]string, 0)
		for _, check := range p.result.FailuresForLocation(p.location) {
			failures = append(failures, check.Key)
		}
		return nil, errors.Errorf("certificate %v is not valid: %v", p.location, strings.Join(failures, ", "))
	}
	return p.cert, nil
}

// ParseRPKICertificate parses a certificate into a fresh ValidationResult.
func ParseRPKICertificate(kind CertificateKind, location ValidationLocation, data []byte) (*RPKICertificate, *ValidationResult, error) {
	result := NewValidationResult(location)
	parser := &CertificateParser{Kind: kind}
	parser.Parse(result, location, data)
	cert, err := parser.Certificate()
	return cert, result, err
}
