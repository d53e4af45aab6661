package librpki

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// https://tools.ietf.org/html/rfc5652
// https://tools.ietf.org/html/rfc6488

var (
	SignedDataOID = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

	ContentType       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	MessageDigest     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	SigningTime       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
	BinarySigningTime = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 46}

	OidDigestSHA256            = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OidRSAEncryption           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	AllowedSignatureAlgorithms = []asn1.ObjectIdentifier{OidRSAEncryption, OidSignatureSHA256WithRSA}
)

const (
	CMS_SIGNED_DATA_VERSION_3 = 3
	CMS_SIGNER_INFO_VERSION_3 = 3

	// Location of the re-parse done by builders.
	GeneratedLocation ValidationLocation = "generated.cms"
)

type Attribute struct {
	AttrType  asn1.ObjectIdentifier
	AttrValue []asn1.RawValue `asn1:"set"`
}

type SignerInfo struct {
	Version            int
	Sid                asn1.RawValue
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      asn1.RawValue `asn1:"optional,tag:1"`
}

type EncapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type CmsSignedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo EncapsulatedContentInfo
	Certificates     asn1.RawValue `asn1:"tag:0,optional"`
	CRLs             asn1.RawValue `asn1:"tag:1,optional"`
	SignerInfos      []SignerInfo  `asn1:"set"`
}

type CMS struct {
	OID        asn1.ObjectIdentifier
	SignedData CmsSignedData `asn1:"explicit,tag:0"`
}

func DecodeCMS(data []byte) (*CMS, error) {
	var c CMS
	rest, err := asn1.Unmarshal(data, &c)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, errors.New("trailing data after CMS object")
	}
	return &c, nil
}

// isSignedDataEnvelope reads the ContentInfo header only, so truncated
// objects are still recognized as signed data.
func isSignedDataEnvelope(data []byte) bool {
	input := cryptobyte.String(data)
	var length uint8
	if !input.PeekASN1Tag(cbasn1.SEQUENCE) || !input.Skip(1) || !input.ReadUint8(&length) {
		return false
	}
	if length&0x80 != 0 && !input.Skip(int(length&0x7f)) {
		return false
	}
	var oid asn1.ObjectIdentifier
	return input.ReadASN1ObjectIdentifier(&oid) && oid.Equal(SignedDataOID)
}

func splitElements(data []byte) ([]asn1.RawValue, error) {
	elements := make([]asn1.RawValue, 0, 1)
	for len(data) > 0 {
		var element asn1.RawValue
		rest, err := asn1.Unmarshal(data, &element)
		if err != nil {
			return elements, err
		}
		elements = append(elements, element)
		data = rest
	}
	return elements, nil
}

// Signed attributes are signed with their SET OF tag.
// https://tools.ietf.org/html/rfc5652#section-5.4
func signedAttributesDigestInput(attrs asn1.RawValue) ([]byte, error) {
	return asn1.Marshal(asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: attrs.Bytes})
}

func decodeAttributes(data []byte) ([]Attribute, error) {
	attributes := make([]Attribute, 0, 3)
	for len(data) > 0 {
		var attribute Attribute
		rest, err := asn1.Unmarshal(data, &attribute)
		if err != nil {
			return attributes, err
		}
		attributes = append(attributes, attribute)
		data = rest
	}
	return attributes, nil
}

func findAttributes(attributes []Attribute, id asn1.ObjectIdentifier) []Attribute {
	found := make([]Attribute, 0, 1)
	for _, attribute := range attributes {
		if attribute.AttrType.Equal(id) {
			found = append(found, attribute)
		}
	}
	return found
}

func containsOID(oids []asn1.ObjectIdentifier, oid asn1.ObjectIdentifier) bool {
	for _, o := range oids {
		if o.Equal(oid) {
			return true
		}
	}
	return false
}

// SignedObjectProfile holds what differs between kinds of signed objects.
type SignedObjectProfile struct {
	Name        string
	ContentType asn1.ObjectIdentifier
	// Kind of the embedded end-entity certificate.
	CertificateKind CertificateKind
	// Provisioning messages carry exactly one CRL and may carry CA
	// certificates next to the end-entity certificate.
	Provisioning bool
}

// SignedObject is a parsed CMS object. Two objects are equal when their
// encodings are.
type SignedObject struct {
	Encoded        []byte
	ContentType    asn1.ObjectIdentifier
	Content        []byte
	Certificate    *RPKICertificate
	CACertificates []*x509.Certificate
	CRL            *RPKICRL
	SigningTime    time.Time
}

func (o *SignedObject) Equal(other *SignedObject) bool {
	if o == nil || other == nil {
		return o == other
	}
	return bytes.Equal(o.Encoded, other.Encoded)
}

// ContentDecoder decodes the encapsulated content, recording content
// specific checks, and returns the bytes following the decoded object.
type ContentDecoder func(result *ValidationResult, content []byte) ([]byte, error)

// SignedObjectParser runs the checks shared by all CMS signed objects. A
// parser is used for one object.
type SignedObjectParser struct {
	Profile       SignedObjectProfile
	DecodeContent ContentDecoder

	result   *ValidationResult
	location ValidationLocation
	object   *SignedObject
	eeCert   *x509.Certificate
}

func (p *SignedObjectParser) Parse(result *ValidationResult, location ValidationLocation, data []byte) {
	p.result, p.location = result, location
	p.object, p.eeCert = &SignedObject{Encoded: data}, nil
	defer result.PushLocation(location)()

	if !result.RejectIfFalse(isSignedDataEnvelope(data), CMS_DATA_PARSING) {
		return
	}
	cms, err := DecodeCMS(data)
	if err != nil {
		result.Error(CMS_CONTENT_PARSING, err.Error())
		return
	}
	signedData := cms.SignedData
	p.verifySignedData(signedData)
	p.parseContent(signedData.EncapContentInfo)
	p.parseCertificates(signedData.Certificates)
	p.parseCRLs(signedData.CRLs)
	p.verifySignerInfos(signedData)
}

// https://tools.ietf.org/html/rfc6488#section-2.1
func (p *SignedObjectParser) verifySignedData(signedData CmsSignedData) {
	p.result.RejectIfFalse(signedData.Version == CMS_SIGNED_DATA_VERSION_3, CMS_SIGNED_DATA_VERSION)
	p.result.RejectIfFalse(len(signedData.DigestAlgorithms) == 1 && signedData.DigestAlgorithms[0].Algorithm.Equal(OidDigestSHA256), CMS_SIGNED_DATA_DIGEST_ALGORITHM)
}

func (p *SignedObjectParser) parseContent(info EncapsulatedContentInfo) {
	result := p.result
	p.object.ContentType = info.EContentType
	result.RejectIfFalse(info.EContentType.Equal(p.Profile.ContentType), CMS_CONTENT_TYPE, info.EContentType.String())

	// RawValue fields keep their explicit [0] wrapper.
	var eContent asn1.RawValue
	wrapped := info.EContent
	if !result.RejectIfFalse(wrapped.Class == asn1.ClassContextSpecific && wrapped.Tag == 0 && wrapped.IsCompound, DECODE_CONTENT) {
		return
	}
	rest, err := asn1.Unmarshal(wrapped.Bytes, &eContent)
	if !result.RejectIfFalse(err == nil && len(rest) == 0 && eContent.Class == asn1.ClassUniversal && eContent.Tag == asn1.TagOctetString && !eContent.IsCompound, DECODE_CONTENT) {
		return
	}
	p.object.Content = eContent.Bytes
	if p.DecodeContent == nil {
		result.Pass(CMS_CONTENT_PARSING)
		return
	}
	rest, err = p.DecodeContent(result, eContent.Bytes)
	if err != nil {
		result.Error(CMS_CONTENT_PARSING, err.Error())
		return
	}
	result.RejectIfFalse(len(rest) == 0, ONLY_ONE_SIGNED_OBJECT)
	result.Pass(CMS_CONTENT_PARSING)
}

// https://tools.ietf.org/html/rfc6488#section-2.1.4
func (p *SignedObjectParser) parseCertificates(raw asn1.RawValue) {
	result := p.result
	elements, err := splitElements(raw.Bytes)
	if !result.RejectIfFalse(err == nil && len(elements) > 0, GET_CERTS_AND_CRLS) {
		return
	}
	if !p.Profile.Provisioning && !result.RejectIfFalse(len(elements) == 1, ONLY_ONE_EE_CERT_ALLOWED) {
		return
	}
	eeCerts := make([]*x509.Certificate, 0, 1)
	for _, element := range elements {
		cert, err := x509.ParseCertificate(element.FullBytes)
		if !result.RejectIfFalse(err == nil, CERT_IS_X509CERT) {
			continue
		}
		if cert.BasicConstraintsValid && cert.IsCA {
			p.object.CACertificates = append(p.object.CACertificates, cert)
		} else {
			eeCerts = append(eeCerts, cert)
		}
	}
	if !result.RejectIfFalse(len(eeCerts) > 0, CERT_IS_EE_CERT) {
		return
	}
	if !result.RejectIfFalse(len(eeCerts) == 1, ONLY_ONE_EE_CERT_ALLOWED) {
		return
	}
	cert := eeCerts[0]
	p.eeCert = cert
	if !result.RejectIfFalse(len(cert.SubjectKeyId) > 0, CERT_HAS_SKI) {
		return
	}

	parser := &CertificateParser{Kind: p.Profile.CertificateKind}
	parser.ValidateCertificate(result, p.location, cert)
	if rpkiCert, err := parser.Certificate(); err == nil {
		p.object.Certificate = rpkiCert
	}
}

// https://tools.ietf.org/html/rfc6492#section-3.1.1.5
func (p *SignedObjectParser) parseCRLs(raw asn1.RawValue) {
	if !p.Profile.Provisioning {
		return
	}
	result := p.result
	elements, err := splitElements(raw.Bytes)
	if !result.RejectIfFalse(err == nil, GET_CERTS_AND_CRLS) {
		return
	}
	if !result.RejectIfFalse(len(elements) == 1, ONLY_ONE_CRL_ALLOWED) {
		return
	}
	crl, err := DecodeCRL(elements[0].FullBytes)
	if result.RejectIfFalse(err == nil, CRL_IS_X509CRL) {
		p.object.CRL = crl
	}
}

// https://tools.ietf.org/html/rfc6488#section-2.1.6
func (p *SignedObjectParser) verifySignerInfos(signedData CmsSignedData) {
	result := p.result
	if !result.RejectIfFalse(len(signedData.SignerInfos) > 0, GET_SIGNER_INFO) {
		return
	}
	if !result.RejectIfFalse(len(signedData.SignerInfos) == 1, ONLY_ONE_SIGNER) {
		return
	}
	signer := signedData.SignerInfos[0]
	result.RejectIfFalse(signer.Version == CMS_SIGNER_INFO_VERSION_3, CMS_SIGNER_INFO_VERSION)
	p.verifySignerIdentifier(signer)
	result.RejectIfFalse(signer.DigestAlgorithm.Algorithm.Equal(OidDigestSHA256), CMS_SIGNER_INFO_DIGEST_ALGORITHM)
	result.RejectIfFalse(containsOID(AllowedSignatureAlgorithms, signer.SignatureAlgorithm.Algorithm), ENCRYPTION_ALGORITHM, signer.SignatureAlgorithm.Algorithm.String())

	if p.verifySignedAttributes(signer) {
		p.verifySignature(signer, p.object.Content)
	}
	result.RejectIfFalse(len(signer.UnsignedAttrs.FullBytes) == 0, UNSIGNED_ATTRS_OMITTED)
}

// SignerIdentifier ::= CHOICE { issuerAndSerialNumber, [0] subjectKeyIdentifier }
func (p *SignedObjectParser) verifySignerIdentifier(signer SignerInfo) {
	result := p.result
	sid := signer.Sid
	byKeyId := sid.Class == asn1.ClassContextSpecific && sid.Tag == 0 && !sid.IsCompound
	if p.eeCert != nil {
		result.RejectIfFalse(byKeyId && bytes.Equal(sid.Bytes, p.eeCert.SubjectKeyId), CMS_SIGNER_INFO_SKI)
	}
	result.RejectIfFalse(byKeyId, CMS_SIGNER_INFO_SKI_ONLY)
	if p.eeCert != nil {
		result.RejectIfFalse(signerMatches(sid, p.eeCert), SIGNER_ID_MATCH)
	}
}

type issuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber asn1.RawValue
}

func signerMatches(sid asn1.RawValue, cert *x509.Certificate) bool {
	if sid.Class == asn1.ClassContextSpecific && sid.Tag == 0 {
		return bytes.Equal(sid.Bytes, cert.SubjectKeyId)
	}
	var ias issuerAndSerialNumber
	if _, err := asn1.Unmarshal(sid.FullBytes, &ias); err != nil {
		return false
	}
	serial, err := asn1.Marshal(cert.SerialNumber)
	return err == nil && bytes.Equal(ias.Issuer.FullBytes, cert.RawIssuer) && bytes.Equal(ias.SerialNumber.FullBytes, serial)
}

// Returns false when the signature cannot be checked.
// https://tools.ietf.org/html/rfc6488#section-2.1.6.4
func (p *SignedObjectParser) verifySignedAttributes(signer SignerInfo) bool {
	result := p.result
	if !result.RejectIfFalse(len(signer.SignedAttrs.FullBytes) > 0, SIGNED_ATTRS_PRESENT) {
		return false
	}
	attributes, err := decodeAttributes(signer.SignedAttrs.Bytes)
	if !result.RejectIfFalse(err == nil, SIGNED_ATTRS_PRESENT) {
		return false
	}

	unique := true
	known := true
	seen := make(map[string]bool)
	for _, attribute := range attributes {
		id := attribute.AttrType.String()
		if seen[id] {
			unique = false
		}
		seen[id] = true
		known = known && containsOID([]asn1.ObjectIdentifier{ContentType, MessageDigest, SigningTime, BinarySigningTime}, attribute.AttrType)
	}
	result.RejectIfFalse(unique, SIGNED_ATTRS_CORRECT)
	result.WarnIfFalse(known, SIGNED_ATTRS_CORRECT)

	if contentTypes := findAttributes(attributes, ContentType); result.RejectIfFalse(len(contentTypes) > 0, CONTENT_TYPE_ATTR_PRESENT) {
		values := contentTypes[0].AttrValue
		if result.RejectIfFalse(len(values) == 1, CONTENT_TYPE_VALUE_COUNT) {
			var oid asn1.ObjectIdentifier
			_, err := asn1.Unmarshal(values[0].FullBytes, &oid)
			result.RejectIfFalse(err == nil && oid.Equal(p.object.ContentType), CONTENT_TYPE_VALUE, oid.String())
		}
	}
	if digests := findAttributes(attributes, MessageDigest); result.RejectIfFalse(len(digests) > 0, MSG_DIGEST_ATTR_PRESENT) {
		result.RejectIfFalse(len(digests[0].AttrValue) == 1, MSG_DIGEST_VALUE_COUNT)
	}
	if signingTimes := findAttributes(attributes, SigningTime); result.RejectIfFalse(len(signingTimes) > 0, SIGNING_TIME_ATTR_PRESENT) {
		values := signingTimes[0].AttrValue
		if result.RejectIfFalse(len(values) == 1, ONLY_ONE_SIGNING_TIME_ATTR) {
			var signingTime time.Time
			_, err := asn1.Unmarshal(values[0].FullBytes, &signingTime)
			if result.RejectIfFalse(err == nil, SIGNING_TIME_ATTR_PRESENT) {
				p.object.SigningTime = signingTime.UTC()
			}
		}
	}
	return p.eeCert != nil
}

// https://tools.ietf.org/html/rfc5652#section-5.6
func (p *SignedObjectParser) verifySignature(signer SignerInfo, content []byte) {
	result := p.result
	attributes, _ := decodeAttributes(signer.SignedAttrs.Bytes)
	digests := findAttributes(attributes, MessageDigest)
	if len(digests) != 1 || len(digests[0].AttrValue) != 1 {
		result.Error(SIGNATURE_VERIFICATION, "no message digest")
		return
	}
	var messageDigest []byte
	if _, err := asn1.Unmarshal(digests[0].AttrValue[0].FullBytes, &messageDigest); err != nil {
		result.Error(SIGNATURE_VERIFICATION, err.Error())
		return
	}
	contentDigest := sha256.Sum256(content)
	if !bytes.Equal(contentDigest[:], messageDigest) {
		result.Error(SIGNATURE_VERIFICATION, "message digest mismatch")
		return
	}
	input, err := signedAttributesDigestInput(signer.SignedAttrs)
	if err != nil {
		result.Error(SIGNATURE_VERIFICATION, err.Error())
		return
	}
	err = p.eeCert.CheckSignature(x509.SHA256WithRSA, input, signer.Signature)
	if err != nil {
		result.Error(SIGNATURE_VERIFICATION, err.Error())
		return
	}
	result.Pass(SIGNATURE_VERIFICATION)
}

// SignedObject returns the parsed object, or an error when any check at
// the parsed location failed.
func (p *SignedObjectParser) SignedObject() (*SignedObject, error) {
	if p.result == nil {
		return nil, errors.New("no signed object was parsed")
	}
	if p.result.HasFailureForLocation(p.location) || p.object.Certificate == nil {
		return nil, errors.Errorf("%s object %v is not valid: %v", p.Profile.Name, p.location, failureKeys(p.result.FailuresForLocation(p.location)))
	}
	return p.object, nil
}

func failureKeys(checks []ValidationCheck) []string {
	keys := make([]string, 0, len(checks))
	for _, check := range checks {
		keys = append(keys, check.Key)
	}
	return keys
}

// SignedObjectBuilder signs encapsulated content with the key of an
// end-entity certificate.
type SignedObjectBuilder struct {
	Certificate *RPKICertificate
	SigningKey  crypto.Signer
	SigningTime time.Time

	// Embedded next to the end-entity certificate, provisioning only.
	CACertificates []*RPKICertificate
	CRL            *RPKICRL

	// Replace the generated attribute of the same type, or are added.
	ExtraSignedAttributes []Attribute

	// Defaults to crypto/rand.
	Rand io.Reader
}

func marshalAttribute(id asn1.ObjectIdentifier, value interface{}) (Attribute, error) {
	encoded, err := asn1.Marshal(value)
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{AttrType: id, AttrValue: []asn1.RawValue{{FullBytes: encoded}}}, nil
}

func (b *SignedObjectBuilder) signedAttributes(contentType asn1.ObjectIdentifier, content []byte) ([]byte, error) {
	digest := sha256.Sum256(content)
	attributes := make([]Attribute, 0, 3+len(b.ExtraSignedAttributes))
	var errs error
	for _, attr := range []struct {
		id    asn1.ObjectIdentifier
		value interface{}
	}{
		{ContentType, contentType},
		{MessageDigest, digest[:]},
		{SigningTime, b.SigningTime.UTC()},
	} {
		attribute, err := marshalAttribute(attr.id, attr.value)
		errs = multierr.Append(errs, err)
		if len(findAttributes(b.ExtraSignedAttributes, attr.id)) == 0 {
			attributes = append(attributes, attribute)
		}
	}
	if errs != nil {
		return nil, errs
	}
	attributes = append(attributes, b.ExtraSignedAttributes...)

	encoded := make([][]byte, 0, len(attributes))
	for _, attribute := range attributes {
		der, err := asn1.Marshal(attribute)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, der)
	}
	// DER orders SET OF by encoding.
	sort.Slice(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	})
	return bytes.Join(encoded, nil), nil
}

func implicitSet(tag int, elements [][]byte) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: tag, IsCompound: true, Bytes: bytes.Join(elements, nil)}
}

func (b *SignedObjectBuilder) check(provisioning bool) error {
	switch {
	case b.Certificate == nil:
		return errors.New("no end-entity certificate")
	case b.SigningKey == nil:
		return errors.New("no signing key")
	case b.SigningTime.IsZero():
		return errors.New("no signing time")
	case provisioning && b.CRL == nil:
		return errors.New("no CRL")
	case !provisioning && (b.CRL != nil || len(b.CACertificates) > 0):
		return errors.New("only provisioning objects embed a CRL or CA certificates")
	}
	return nil
}

// encode signs content without checking the result.
func (b *SignedObjectBuilder) encode(contentType asn1.ObjectIdentifier, content []byte) ([]byte, error) {
	attrs, err := b.signedAttributes(contentType, content)
	if err != nil {
		return nil, errors.Wrap(err, "encoding signed attributes")
	}
	signedAttrs := implicitSet(0, [][]byte{attrs})
	input, err := signedAttributesDigestInput(signedAttrs)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(input)
	random := b.Rand
	if random == nil {
		random = rand.Reader
	}
	signature, err := b.SigningKey.Sign(random, digest[:], crypto.SHA256)
	if err != nil {
		return nil, errors.Wrap(err, "signing signed attributes")
	}

	octets, err := asn1.Marshal(content)
	if err != nil {
		return nil, err
	}
	eContent := asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: octets}

	certificates := [][]byte{b.Certificate.Encoded()}
	for _, ca := range b.CACertificates {
		certificates = append(certificates, ca.Encoded())
	}
	signedData := CmsSignedData{
		Version:          CMS_SIGNED_DATA_VERSION_3,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{{Algorithm: OidDigestSHA256}},
		EncapContentInfo: EncapsulatedContentInfo{
			EContentType: contentType,
			EContent:     eContent,
		},
		Certificates: implicitSet(0, certificates),
		SignerInfos: []SignerInfo{
			{
				Version:            CMS_SIGNER_INFO_VERSION_3,
				Sid:                asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, Bytes: b.Certificate.SubjectKeyId()},
				DigestAlgorithm:    pkix.AlgorithmIdentifier{Algorithm: OidDigestSHA256},
				SignedAttrs:        signedAttrs,
				SignatureAlgorithm: pkix.AlgorithmIdentifier{Algorithm: OidRSAEncryption, Parameters: asn1.NullRawValue},
				Signature:          signature,
			},
		},
	}
	if b.CRL != nil {
		signedData.CRLs = implicitSet(1, [][]byte{b.CRL.Encoded()})
	}
	return asn1.Marshal(CMS{OID: SignedDataOID, SignedData: signedData})
}

// selfCheck fails with every failure key when the object does not pass
// its own parser.
func selfCheck(name string, result *ValidationResult) error {
	if !result.HasFailures() {
		return nil
	}
	var errs error
	for _, key := range result.FailureKeys() {
		errs = multierr.Append(errs, errors.New(key))
	}
	return errors.Wrapf(errs, "validation of generated %s object failed", name)
}

// sign checks the builder and signs content. Callers re-parse the result
// at GeneratedLocation and pass it to selfCheck.
func (b *SignedObjectBuilder) sign(name string, provisioning bool, contentType asn1.ObjectIdentifier, content []byte) ([]byte, error) {
	if err := b.check(provisioning); err != nil {
		return nil, errors.Wrapf(err, "invalid %s builder", name)
	}
	encoded, err := b.encode(contentType, content)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s object", name)
	}
	return encoded, nil
}
