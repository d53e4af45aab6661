package librpki

import (
	"bytes"
	"encoding/asn1"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// https://tools.ietf.org/html/rfc6492

const (
	PROVISIONING_NAMESPACE       = "http://www.apnic.net/specs/rescerts/up-down/"
	PROVISIONING_PAYLOAD_VERSION = 1
)

var (
	XMLOID = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 28}

	provisioningProfile = SignedObjectProfile{
		Name:            "provisioning",
		ContentType:     XMLOID,
		CertificateKind: CERTIFICATE_PLAIN,
		Provisioning:    true,
	}
)

type PayloadMessageType string

const (
	PAYLOAD_LIST            PayloadMessageType = "list"
	PAYLOAD_LIST_RESPONSE   PayloadMessageType = "list_response"
	PAYLOAD_ISSUE           PayloadMessageType = "issue"
	PAYLOAD_ISSUE_RESPONSE  PayloadMessageType = "issue_response"
	PAYLOAD_REVOKE          PayloadMessageType = "revoke"
	PAYLOAD_REVOKE_RESPONSE PayloadMessageType = "revoke_response"
	PAYLOAD_ERROR_RESPONSE  PayloadMessageType = "error_response"
)

var (
	PayloadMessageTypes = []PayloadMessageType{
		PAYLOAD_LIST, PAYLOAD_LIST_RESPONSE,
		PAYLOAD_ISSUE, PAYLOAD_ISSUE_RESPONSE,
		PAYLOAD_REVOKE, PAYLOAD_REVOKE_RESPONSE,
		PAYLOAD_ERROR_RESPONSE,
	}
)

func (t PayloadMessageType) IsValid() bool {
	for _, known := range PayloadMessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ProvisioningPayload is the message element of an up-down exchange. The
// body of the message is kept as raw XML.
type ProvisioningPayload struct {
	XMLName   xml.Name           `xml:"http://www.apnic.net/specs/rescerts/up-down/ message"`
	Version   int                `xml:"version,attr"`
	Sender    string             `xml:"sender,attr"`
	Recipient string             `xml:"recipient,attr"`
	Type      PayloadMessageType `xml:"type,attr"`
	Inner     string             `xml:",innerxml"`
}

func NewProvisioningPayload(t PayloadMessageType, sender, recipient string) *ProvisioningPayload {
	return &ProvisioningPayload{
		Version:   PROVISIONING_PAYLOAD_VERSION,
		Sender:    sender,
		Recipient: recipient,
		Type:      t,
	}
}

func (p *ProvisioningPayload) String() string {
	return fmt.Sprintf("%v message from %v to %v", p.Type, p.Sender, p.Recipient)
}

func EncodeProvisioningPayload(payload *ProvisioningPayload) ([]byte, error) {
	buf := bytes.NewBuffer([]byte(xml.Header))
	enc := xml.NewEncoder(buf)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type provisioningDecoder struct {
	payload *ProvisioningPayload
}

func (d *provisioningDecoder) decode(result *ValidationResult, content []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	var payload ProvisioningPayload
	if err := dec.Decode(&payload); err != nil {
		if err == io.EOF {
			err = errors.New("empty payload")
		}
		result.Error(FOUND_PAYLOAD_TYPE)
		return nil, err
	}
	if !result.RejectIfFalse(payload.Type != "", FOUND_PAYLOAD_TYPE) {
		return nil, nil
	}
	if !result.RejectIfFalse(payload.Type.IsValid(), VALID_PAYLOAD_TYPE, string(payload.Type)) {
		return nil, nil
	}
	if !result.RejectIfFalse(payload.Version == PROVISIONING_PAYLOAD_VERSION, VALID_PAYLOAD_VERSION, fmt.Sprint(payload.Version)) {
		return nil, nil
	}
	d.payload = &payload
	rest := bytes.TrimLeft(content[dec.InputOffset():], " \t\r\n")
	if len(rest) == 0 {
		return nil, nil
	}
	return rest, nil
}

// ProvisioningCmsObject is a validated up-down protocol message.
type ProvisioningCmsObject struct {
	*SignedObject
	Payload *ProvisioningPayload
}

type ProvisioningCmsParser struct {
	parser  SignedObjectParser
	decoder provisioningDecoder
}

func (p *ProvisioningCmsParser) Parse(result *ValidationResult, location ValidationLocation, data []byte) {
	p.decoder = provisioningDecoder{}
	p.parser = SignedObjectParser{Profile: provisioningProfile, DecodeContent: p.decoder.decode}
	p.parser.Parse(result, location, data)
}

// ProvisioningCmsObject errors once any check failed.
func (p *ProvisioningCmsParser) ProvisioningCmsObject() (*ProvisioningCmsObject, error) {
	if p.parser.result != nil && p.parser.result.HasFailures() {
		return nil, errors.Errorf("provisioning cms object validation failed: %v", failureKeys(p.parser.result.FailuresForAllLocations()))
	}
	object, err := p.parser.SignedObject()
	if err != nil {
		return nil, err
	}
	if p.decoder.payload == nil {
		return nil, errors.New("provisioning cms object has no payload")
	}
	return &ProvisioningCmsObject{SignedObject: object, Payload: p.decoder.payload}, nil
}

func ParseProvisioningCmsObject(location ValidationLocation, data []byte) (*ProvisioningCmsObject, *ValidationResult, error) {
	result := NewValidationResult(location)
	parser := &ProvisioningCmsParser{}
	parser.Parse(result, location, data)
	object, err := parser.ProvisioningCmsObject()
	return object, result, err
}

type ProvisioningCmsBuilder struct {
	SignedObjectBuilder

	Payload *ProvisioningPayload
}

func (b *ProvisioningCmsBuilder) Build() (*ProvisioningCmsObject, error) {
	if b.Payload == nil {
		return nil, errors.New("no payload")
	}
	content, err := EncodeProvisioningPayload(b.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "encoding payload")
	}
	encoded, err := b.sign(provisioningProfile.Name, true, XMLOID, content)
	if err != nil {
		return nil, err
	}
	result := NewValidationResult(GeneratedLocation)
	parser := &ProvisioningCmsParser{}
	parser.Parse(result, GeneratedLocation, encoded)
	if err := selfCheck(provisioningProfile.Name, result); err != nil {
		return nil, err
	}
	return parser.ProvisioningCmsObject()
}
