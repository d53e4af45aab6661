package librpki

import (
	"bufio"
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

// https://tools.ietf.org/html/rfc8630

var (
	RSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
)

type RPKI_TAL struct {
	// First URI of URIs.
	URI       string
	URIs      []string
	Algorithm x509.PublicKeyAlgorithm
	OID       asn1.ObjectIdentifier
	PublicKey interface{}

	// DER encoded SubjectPublicKeyInfo.
	RawPublicKey []byte
}

func (tal *RPKI_TAL) CheckCertificate(cert *x509.Certificate) bool {
	if tal.Algorithm != cert.PublicKeyAlgorithm {
		return false
	}
	switch tal.Algorithm {
	case x509.RSA:
		a, okA := tal.PublicKey.(*rsa.PublicKey)
		b, okB := cert.PublicKey.(*rsa.PublicKey)
		return okA && okB && a.Equal(b)
	}
	return bytes.Equal(tal.RawPublicKey, cert.RawSubjectPublicKeyInfo)
}

// ValidateCertificate records whether cert is the trust anchor the TAL
// points at.
func (tal *RPKI_TAL) ValidateCertificate(result *ValidationResult, location ValidationLocation, cert *RPKICertificate) bool {
	defer result.PushLocation(location)()
	return result.RejectIfFalse(tal.CheckCertificate(cert.Certificate), TRUST_ANCHOR_PUBLIC_KEY_MATCH)
}

// RsyncURI returns the first rsync URI, if any.
func (tal *RPKI_TAL) RsyncURI() string {
	for _, uri := range tal.URIs {
		if strings.HasPrefix(uri, "rsync://") {
			return uri
		}
	}
	return ""
}

func (tal *RPKI_TAL) Encode() []byte {
	var buf bytes.Buffer
	for _, uri := range tal.URIs {
		buf.WriteString(uri)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	encoded := base64.StdEncoding.EncodeToString(tal.RawPublicKey)
	for len(encoded) > 64 {
		buf.WriteString(encoded[:64])
		buf.WriteString("\n")
		encoded = encoded[64:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\n")
	return buf.Bytes()
}

func DeleteLineEnd(line string) string {
	return strings.TrimRight(line, "\r\n")
}

// DecodeTAL parses a TAL: optional comment lines, one or more URIs, an
// empty line and the base64 encoded public key.
func DecodeTAL(data []byte) (*RPKI_TAL, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	tal := &RPKI_TAL{}

	header := true
	inKey := false
	var b64 strings.Builder
	for scanner.Scan() {
		line := DeleteLineEnd(scanner.Text())
		switch {
		case header && strings.HasPrefix(line, "#"):
			continue
		case !inKey && line == "":
			header = false
			if len(tal.URIs) > 0 {
				inKey = true
			}
		case !inKey:
			header = false
			if !strings.HasPrefix(line, "rsync://") && !strings.HasPrefix(line, "https://") {
				return nil, errors.Errorf("unsupported TAL URI %q", line)
			}
			tal.URIs = append(tal.URIs, line)
		default:
			b64.WriteString(strings.TrimSpace(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(tal.URIs) == 0 {
		return nil, errors.New("TAL has no URI")
	}
	if b64.Len() == 0 {
		return nil, errors.New("TAL has no public key")
	}
	tal.URI = tal.URIs[0]

	d, err := base64.StdEncoding.DecodeString(b64.String())
	if err != nil {
		return nil, errors.Wrap(err, "decoding TAL public key")
	}

	type subjectPublicKeyInfo struct {
		Type struct {
			OID asn1.ObjectIdentifier
		}
		BS asn1.BitString
	}

	var inner subjectPublicKeyInfo
	rest, err := asn1.Unmarshal(d, &inner)
	if err != nil {
		return nil, errors.Wrap(err, "decoding TAL subject public key info")
	}
	if len(rest) > 0 {
		return nil, errors.New("trailing data after TAL public key")
	}
	tal.OID = inner.Type.OID
	tal.RawPublicKey = d

	if tal.OID.Equal(RSA) {
		tal.Algorithm = x509.RSA
		key, err := x509.ParsePKIXPublicKey(d)
		if err != nil {
			return nil, errors.Wrap(err, "decoding TAL RSA key")
		}
		tal.PublicKey = key
	} else {
		tal.PublicKey = inner.BS.Bytes
	}
	return tal, nil
}

// NewTAL returns a TAL for the key of a trust anchor certificate.
func NewTAL(cert *RPKICertificate, uris ...string) *RPKI_TAL {
	return &RPKI_TAL{
		URI:          firstOrEmpty(uris),
		URIs:         uris,
		Algorithm:    cert.Certificate.PublicKeyAlgorithm,
		OID:          RSA,
		PublicKey:    cert.Certificate.PublicKey,
		RawPublicKey: cert.Certificate.RawSubjectPublicKeyInfo,
	}
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
