package librpki

import (
	"encoding/asn1"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// https://tools.ietf.org/html/rfc6482

var (
	RoaOID = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 24}

	roaProfile = SignedObjectProfile{
		Name:            "ROA",
		ContentType:     RoaOID,
		CertificateKind: CERTIFICATE_RESOURCE,
	}
)

type ROAIPAddresses struct {
	Address   asn1.BitString
	MaxLength int `asn1:"optional,default:-1"`
}

type ROAAddressFamily struct {
	AddressFamily []byte
	Addresses     []ROAIPAddresses
}

type ROAContent struct {
	Version      int `asn1:"optional,explicit,default:0,tag:0"`
	ASID         int64
	IpAddrBlocks []ROAAddressFamily
}

// RoaPrefix is an authorized prefix. A zero MaxLength means only the prefix
// itself is authorized.
type RoaPrefix struct {
	Prefix    netip.Prefix
	MaxLength int
}

func (p RoaPrefix) EffectiveMaxLength() int {
	if p.MaxLength < p.Prefix.Bits() {
		return p.Prefix.Bits()
	}
	return p.MaxLength
}

// https://tools.ietf.org/html/rfc6482#section-4
func (p RoaPrefix) Validate() error {
	if !p.Prefix.IsValid() {
		return errors.New("invalid prefix")
	}
	if p.Prefix.Masked() != p.Prefix {
		return errors.Errorf("prefix %v has host bits set", p.Prefix)
	}
	if p.MaxLength != 0 && (p.MaxLength < p.Prefix.Bits() || p.MaxLength > p.Prefix.Addr().BitLen()) {
		return errors.Errorf("max length %d out of range for %v", p.MaxLength, p.Prefix)
	}
	return nil
}

func (p RoaPrefix) String() string {
	if p.MaxLength == 0 {
		return p.Prefix.String()
	}
	return fmt.Sprintf("%v-%d", p.Prefix, p.MaxLength)
}

func RoaPrefixesToResources(prefixes []RoaPrefix) ResourceSet {
	var b ResourceSetBuilder
	for _, p := range prefixes {
		b.AddPrefix(p.Prefix)
	}
	rs, _ := b.ResourceSet()
	return rs
}

// EncodeROAContent encodes a RouteOriginAttestation, IPv4 before IPv6.
func EncodeROAContent(asn uint32, prefixes []RoaPrefix) ([]byte, error) {
	if len(prefixes) == 0 {
		return nil, errors.New("no prefixes")
	}
	groups := make(map[uint16][]ROAIPAddresses)
	for _, p := range prefixes {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		afi := AFI_IPV4
		if p.Prefix.Addr().Is6() {
			afi = AFI_IPV6
		}
		maxLength := p.MaxLength
		if maxLength == 0 {
			maxLength = -1
		}
		bits := p.Prefix.Bits()
		groups[afi] = append(groups[afi], ROAIPAddresses{
			Address: asn1.BitString{
				Bytes:     p.Prefix.Addr().AsSlice()[:(bits+7)/8],
				BitLength: bits,
			},
			MaxLength: maxLength,
		})
	}

	afis := make([]int, 0, len(groups))
	for afi := range groups {
		afis = append(afis, int(afi))
	}
	sort.Ints(afis)

	content := ROAContent{ASID: int64(asn)}
	for _, afi := range afis {
		content.IpAddrBlocks = append(content.IpAddrBlocks, ROAAddressFamily{
			AddressFamily: AddressFamily{AFI: uint16(afi)}.Bytes(),
			Addresses:     groups[uint16(afi)],
		})
	}
	return asn1.Marshal(content)
}

type roaDecoder struct {
	asn      uint32
	prefixes []RoaPrefix
}

func (d *roaDecoder) decodeFamily(result *ValidationResult, block ROAAddressFamily) error {
	af, err := DecodeAddressFamily(block.AddressFamily)
	if err != nil || af.HasSAFI() {
		result.Error(ADDR_FAMILY)
		return errors.New("address family is neither IPv4 nor IPv6")
	}
	t, err := af.ResourceType()
	if err != nil {
		result.Error(ADDR_FAMILY, af.String())
		return err
	}
	if !result.RejectIfFalse(len(block.Addresses) > 0, ADDR_FAMILY_AND_ADDR_IN_DER_SEQ) {
		return errors.New("address family without addresses")
	}
	for _, address := range block.Addresses {
		addr, err := bitStringToAddr(t, address.Address, false)
		if !result.RejectIfFalse(err == nil, PREFIX_IN_ADDR_FAMILY, af.String()) {
			continue
		}
		prefix := RoaPrefix{Prefix: netip.PrefixFrom(addr, address.Address.BitLength)}
		if address.MaxLength != -1 {
			prefix.MaxLength = address.MaxLength
		}
		if !result.RejectIfFalse(prefix.Validate() == nil, PREFIX_LENGTH, prefix.String()) {
			continue
		}
		d.prefixes = append(d.prefixes, prefix)
	}
	return nil
}

func (d *roaDecoder) decode(result *ValidationResult, content []byte) ([]byte, error) {
	var roa ROAContent
	rest, err := asn1.Unmarshal(content, &roa)
	if !result.RejectIfFalse(err == nil, ASN_AND_PREFIXES_IN_DER_SEQ) {
		result.Error(ROA_CONTENT_STRUCTURE)
		return rest, err
	}
	if !result.RejectIfFalse(roa.Version == 0, ROA_ATTESTATION_VERSION, fmt.Sprint(roa.Version)) {
		return rest, nil
	}
	if !result.RejectIfFalse(roa.ASID >= 0 && roa.ASID <= 0xffffffff, ROA_CONTENT_STRUCTURE, fmt.Sprint(roa.ASID)) {
		return rest, nil
	}
	d.asn = uint32(roa.ASID)

	failed := false
	seen := make(map[string]bool)
	for _, block := range roa.IpAddrBlocks {
		family := string(block.AddressFamily)
		if seen[family] {
			result.Error(ADDR_FAMILY, "duplicate address family")
			failed = true
			continue
		}
		seen[family] = true
		if err := d.decodeFamily(result, block); err != nil {
			failed = true
		}
	}
	if !failed {
		result.Pass(ADDR_FAMILY_AND_ADDR_IN_DER_SEQ)
		result.Pass(ADDR_FAMILY)
	}
	result.RejectIfFalse(len(d.prefixes) > 0, ROA_PREFIX_LIST)
	return rest, nil
}

// RoaCms is a validated route origin authorization.
type RoaCms struct {
	*SignedObject
	ASN      uint32
	Prefixes []RoaPrefix
}

func (roa *RoaCms) Resources() ResourceSet {
	return RoaPrefixesToResources(roa.Prefixes)
}

func (roa *RoaCms) String() string {
	prefixes := make([]string, 0, len(roa.Prefixes))
	for _, p := range roa.Prefixes {
		prefixes = append(prefixes, p.String())
	}
	return fmt.Sprintf("ROA AS%d [%v]", roa.ASN, strings.Join(prefixes, ", "))
}

type RoaCmsParser struct {
	parser  SignedObjectParser
	decoder roaDecoder
}

func (p *RoaCmsParser) Parse(result *ValidationResult, location ValidationLocation, data []byte) {
	p.decoder = roaDecoder{}
	p.parser = SignedObjectParser{Profile: roaProfile, DecodeContent: p.decoder.decode}
	p.parser.Parse(result, location, data)

	defer result.PushLocation(location)()
	if result.HasFailureForCurrentLocation() {
		return
	}
	object := p.parser.object
	if !result.RejectIfFalse(object.ContentType.Equal(RoaOID), ROA_CONTENT_TYPE, object.ContentType.String()) {
		return
	}
	// The end-entity certificate must hold the prefixes itself.
	resources := object.Certificate.Resources.Resources()
	result.RejectIfFalse(resources.Contains(RoaPrefixesToResources(p.decoder.prefixes)), ROA_RESOURCES)
}

func (p *RoaCmsParser) RoaCms() (*RoaCms, error) {
	object, err := p.parser.SignedObject()
	if err != nil {
		return nil, err
	}
	return &RoaCms{SignedObject: object, ASN: p.decoder.asn, Prefixes: p.decoder.prefixes}, nil
}

func ParseRoaCms(location ValidationLocation, data []byte) (*RoaCms, *ValidationResult, error) {
	result := NewValidationResult(location)
	parser := &RoaCmsParser{}
	parser.Parse(result, location, data)
	roa, err := parser.RoaCms()
	return roa, result, err
}

type RoaCmsBuilder struct {
	SignedObjectBuilder

	ASN      uint32
	Prefixes []RoaPrefix
}

func (b *RoaCmsBuilder) Build() (*RoaCms, error) {
	content, err := EncodeROAContent(b.ASN, b.Prefixes)
	if err != nil {
		return nil, errors.Wrap(err, "encoding ROA content")
	}
	encoded, err := b.sign(roaProfile.Name, false, RoaOID, content)
	if err != nil {
		return nil, err
	}
	result := NewValidationResult(GeneratedLocation)
	parser := &RoaCmsParser{}
	parser.Parse(result, GeneratedLocation, encoded)
	if err := selfCheck(roaProfile.Name, result); err != nil {
		return nil, err
	}
	return parser.RoaCms()
}
