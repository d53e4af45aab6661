package librpki

import (
	"encoding/asn1"
	"math"
	"net/netip"
	"sort"

	"github.com/pkg/errors"
	"go4.org/netipx"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// https://tools.ietf.org/html/rfc3779#section-2.2.3
// https://tools.ietf.org/html/rfc3779#section-3.2.3

var (
	IpAddrBlock      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 7}
	AutonomousSysIds = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 8}

	tagASNum = cbasn1.Tag(0).Constructed().ContextSpecific()
	tagRDI   = cbasn1.Tag(1).Constructed().ContextSpecific()
)

// IPAddressFamilyBlock is one IPAddressFamily entry of the IPAddrBlocks
// extension. Resources only holds addresses of the block's family.
type IPAddressFamilyBlock struct {
	Family    AddressFamily
	Inherited bool
	Resources ResourceSet
}

type IPAddressBlocks []IPAddressFamilyBlock

// Block returns the entry for a family.
func (blocks IPAddressBlocks) Block(af AddressFamily) (IPAddressFamilyBlock, bool) {
	for _, blk := range blocks {
		if blk.Family.Equal(af) {
			return blk, true
		}
	}
	return IPAddressFamilyBlock{}, false
}

// The number of leading bits left once the trailing bits equal to bit are
// stripped.
func significantBits(data []byte, bit byte) int {
	n := len(data) * 8
	for n > 0 {
		i := n - 1
		if (data[i/8]>>(7-uint(i%8)))&1 != bit {
			break
		}
		n--
	}
	return n
}

func addBitString(b *cryptobyte.Builder, data []byte, bits int) {
	n := (bits + 7) / 8
	out := make([]byte, n)
	copy(out, data[:n])
	unused := n*8 - bits
	if unused > 0 {
		out[n-1] &= 0xff << uint(unused)
	}
	b.AddASN1(cbasn1.BIT_STRING, func(b *cryptobyte.Builder) {
		b.AddUint8(uint8(unused))
		b.AddBytes(out)
	})
}

// IPAddress ::= BIT STRING
func marshalIPPrefix(b *cryptobyte.Builder, p netip.Prefix) {
	addBitString(b, p.Masked().Addr().AsSlice(), p.Bits())
}

// IPAddressRange ::= SEQUENCE { min IPAddress, max IPAddress }
func marshalIPRange(b *cryptobyte.Builder, r netipx.IPRange) {
	min := r.From().AsSlice()
	max := r.To().AsSlice()
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addBitString(b, min, significantBits(min, 0))
		addBitString(b, max, significantBits(max, 1))
	})
}

// IPAddressOrRange ::= CHOICE { addressPrefix IPAddress, addressRange IPAddressRange }
func marshalIPAddressOrRange(b *cryptobyte.Builder, r netipx.IPRange) {
	if p, ok := r.Prefix(); ok {
		marshalIPPrefix(b, p)
		return
	}
	marshalIPRange(b, r)
}

func sortBlocks(blocks []IPAddressFamilyBlock) []IPAddressFamilyBlock {
	sorted := make([]IPAddressFamilyBlock, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Family.Compare(sorted[j].Family) < 0
	})
	return sorted
}

// Encodes IPAddrBlocks. Blocks may carry a SAFI.
func marshalIPAddressBlocks(blocks []IPAddressFamilyBlock) ([]byte, error) {
	sorted := sortBlocks(blocks)
	for i, blk := range sorted {
		if i > 0 && sorted[i-1].Family.Equal(blk.Family) {
			return nil, errors.Errorf("duplicate address family %v", blk.Family)
		}
		t, err := blk.Family.ResourceType()
		if err != nil {
			return nil, err
		}
		if !blk.Inherited && !blk.Resources.ContainsType(t) {
			return nil, errors.Errorf("empty address choice for %v", blk.Family)
		}
	}

	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for _, blk := range sorted {
			blk := blk
			t, _ := blk.Family.ResourceType()
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
				blk.Family.marshal(b)
				if blk.Inherited {
					b.AddASN1NULL()
					return
				}
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					for _, r := range blk.Resources.IPRanges(t) {
						marshalIPAddressOrRange(b, r)
					}
				})
			})
		}
	})
	return b.Bytes()
}

// EncodeIPAddressBlocks returns the value of the IP address delegation
// extension, or nil when there is nothing to encode.
func EncodeIPAddressBlocks(inheritIPv4, inheritIPv6 bool, resources ResourceSet) ([]byte, error) {
	blocks := make([]IPAddressFamilyBlock, 0, 2)
	families := []struct {
		family  AddressFamily
		t       ResourceType
		inherit bool
	}{
		{IPV4_ADDRESS_FAMILY, RESOURCE_IPV4, inheritIPv4},
		{IPV6_ADDRESS_FAMILY, RESOURCE_IPV6, inheritIPv6},
	}
	for _, f := range families {
		if f.inherit {
			blocks = append(blocks, IPAddressFamilyBlock{Family: f.family, Inherited: true})
		} else if resources.ContainsType(f.t) {
			blocks = append(blocks, IPAddressFamilyBlock{Family: f.family, Resources: resources.RestrictTo(f.t)})
		}
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	return marshalIPAddressBlocks(blocks)
}

func marshalASIdentifierChoice(b *cryptobyte.Builder, inherit bool, resources ResourceSet) {
	if inherit {
		b.AddASN1NULL()
		return
	}
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for _, r := range resources.ASRanges() {
			if r.IsSingle() {
				b.AddASN1Int64(int64(r.Start))
				continue
			}
			r := r
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1Int64(int64(r.Start))
				b.AddASN1Int64(int64(r.End))
			})
		}
	})
}

// ASIdentifiers ::= SEQUENCE { asnum [0] EXPLICIT ASIdentifierChoice OPTIONAL,
// rdi [1] EXPLICIT ASIdentifierChoice OPTIONAL }
func marshalASIdentifiers(inheritASN bool, asn ResourceSet, inheritRDI bool, rdi ResourceSet) ([]byte, error) {
	hasASN := inheritASN || asn.ContainsType(RESOURCE_ASN)
	hasRDI := inheritRDI || rdi.ContainsType(RESOURCE_ASN)
	if !hasASN && !hasRDI {
		return nil, nil
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		if hasASN {
			b.AddASN1(tagASNum, func(b *cryptobyte.Builder) {
				marshalASIdentifierChoice(b, inheritASN, asn)
			})
		}
		if hasRDI {
			b.AddASN1(tagRDI, func(b *cryptobyte.Builder) {
				marshalASIdentifierChoice(b, inheritRDI, rdi)
			})
		}
	})
	return b.Bytes()
}

// EncodeASIdentifiers returns the value of the AS identifier delegation
// extension, or nil when there is nothing to encode. Routing domain
// identifiers are never emitted.
func EncodeASIdentifiers(inherit bool, resources ResourceSet) ([]byte, error) {
	return marshalASIdentifiers(inherit, resources, false, ResourceSet{})
}

func readBitString(s *cryptobyte.String) (asn1.BitString, error) {
	var bs asn1.BitString
	if !s.ReadASN1BitString(&bs) {
		return bs, errors.New("malformed bit string")
	}
	return bs, nil
}

func bitStringToAddr(t ResourceType, bs asn1.BitString, fill bool) (netip.Addr, error) {
	size := 4
	if t == RESOURCE_IPV6 {
		size = 16
	}
	if len(bs.Bytes) > size {
		return netip.Addr{}, errors.Errorf("address of %d bits is too long for %v", bs.BitLength, t)
	}
	buf := make([]byte, size)
	copy(buf, bs.Bytes)
	if fill {
		for i := bs.BitLength; i < size*8; i++ {
			buf[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	addr, _ := netip.AddrFromSlice(buf)
	return addr, nil
}

func readIPAddressOrRange(s *cryptobyte.String, t ResourceType) (netipx.IPRange, error) {
	switch {
	case s.PeekASN1Tag(cbasn1.BIT_STRING):
		bs, err := readBitString(s)
		if err != nil {
			return netipx.IPRange{}, err
		}
		addr, err := bitStringToAddr(t, bs, false)
		if err != nil {
			return netipx.IPRange{}, err
		}
		return netipx.RangeOfPrefix(netip.PrefixFrom(addr, bs.BitLength)), nil
	case s.PeekASN1Tag(cbasn1.SEQUENCE):
		var seq cryptobyte.String
		if !s.ReadASN1(&seq, cbasn1.SEQUENCE) {
			return netipx.IPRange{}, errors.New("malformed address range")
		}
		minBs, err := readBitString(&seq)
		if err != nil {
			return netipx.IPRange{}, err
		}
		maxBs, err := readBitString(&seq)
		if err != nil {
			return netipx.IPRange{}, err
		}
		if !seq.Empty() {
			return netipx.IPRange{}, errors.New("address range must have exactly two entries")
		}
		min, err := bitStringToAddr(t, minBs, false)
		if err != nil {
			return netipx.IPRange{}, err
		}
		max, err := bitStringToAddr(t, maxBs, true)
		if err != nil {
			return netipx.IPRange{}, err
		}
		r := netipx.IPRangeFrom(min, max)
		if !r.IsValid() {
			return netipx.IPRange{}, errors.Errorf("invalid address range %v-%v", min, max)
		}
		return r, nil
	}
	return netipx.IPRange{}, errors.New("expected an address prefix or an address range")
}

// IPAddressChoice ::= CHOICE { inherit NULL, addressesOrRanges SEQUENCE OF IPAddressOrRange }
func readIPAddressChoice(s *cryptobyte.String, t ResourceType) (bool, ResourceSet, error) {
	if s.PeekASN1Tag(cbasn1.NULL) {
		var null cryptobyte.String
		if !s.ReadASN1(&null, cbasn1.NULL) || !null.Empty() {
			return false, ResourceSet{}, errors.New("malformed inherit choice")
		}
		return true, ResourceSet{}, nil
	}
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cbasn1.SEQUENCE) {
		return false, ResourceSet{}, errors.New("expected inherit or a sequence of addresses")
	}
	var b ResourceSetBuilder
	var prev netipx.IPRange
	for first := true; !seq.Empty(); first = false {
		r, err := readIPAddressOrRange(&seq, t)
		if err != nil {
			return false, ResourceSet{}, err
		}
		if !first {
			if IPRangesAdjacent(prev, r) {
				return false, ResourceSet{}, errors.Errorf("adjacent resources %v and %v must be merged", ipRangeString(prev), ipRangeString(r))
			}
			if !prev.To().Less(r.From()) {
				return false, ResourceSet{}, errors.Errorf("resources %v and %v are not in ascending order", ipRangeString(prev), ipRangeString(r))
			}
		}
		b.AddRange(r)
		prev = r
	}
	rs, err := b.ResourceSet()
	return false, rs, err
}

// Decodes IPAddrBlocks, optionally accepting SAFI.
func unmarshalIPAddressBlocks(data []byte, allowSAFI bool) (IPAddressBlocks, error) {
	s := cryptobyte.String(data)
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cbasn1.SEQUENCE) || !s.Empty() {
		return nil, errors.New("IP address blocks must be a single sequence")
	}
	if seq.Empty() {
		return nil, errors.New("IP address blocks must not be empty")
	}
	blocks := make(IPAddressBlocks, 0, 2)
	for !seq.Empty() {
		var fam, octets cryptobyte.String
		if !seq.ReadASN1(&fam, cbasn1.SEQUENCE) || !fam.ReadASN1(&octets, cbasn1.OCTET_STRING) {
			return nil, errors.New("malformed IP address family")
		}
		af, err := DecodeAddressFamily(octets)
		if err != nil {
			return nil, err
		}
		if af.HasSAFI() && !allowSAFI {
			return nil, errors.Errorf("SAFI not supported: %v", af)
		}
		if n := len(blocks); n > 0 && blocks[n-1].Family.Compare(af) >= 0 {
			return nil, errors.Errorf("address family %v is out of order or duplicated", af)
		}
		t, err := af.ResourceType()
		if err != nil {
			return nil, err
		}
		inherited, resources, err := readIPAddressChoice(&fam, t)
		if err != nil {
			return nil, err
		}
		if !fam.Empty() {
			return nil, errors.New("IP address family must have exactly two entries")
		}
		blocks = append(blocks, IPAddressFamilyBlock{Family: af, Inherited: inherited, Resources: resources})
	}
	return blocks, nil
}

// DecodeIPAddressBlocks parses the value of the IP address delegation
// extension. Subsequent address family identifiers are rejected.
func DecodeIPAddressBlocks(data []byte) (IPAddressBlocks, error) {
	return unmarshalIPAddressBlocks(data, false)
}

type asIdentifierChoice struct {
	Present   bool
	Inherited bool
	Resources ResourceSet
}

func readASId(s *cryptobyte.String) (uint32, error) {
	var v int64
	if !s.ReadASN1Integer(&v) {
		return 0, errors.New("malformed AS identifier")
	}
	if v < 0 || v > math.MaxUint32 {
		return 0, errors.Errorf("AS identifier %d out of range", v)
	}
	return uint32(v), nil
}

// ASIdOrRange ::= CHOICE { id ASId, range ASRange }
func readASIdOrRange(s *cryptobyte.String) (ASRange, error) {
	if s.PeekASN1Tag(cbasn1.INTEGER) {
		id, err := readASId(s)
		return ASRange{Start: id, End: id}, err
	}
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cbasn1.SEQUENCE) {
		return ASRange{}, errors.New("expected an AS identifier or an AS range")
	}
	min, err := readASId(&seq)
	if err != nil {
		return ASRange{}, err
	}
	max, err := readASId(&seq)
	if err != nil {
		return ASRange{}, err
	}
	if !seq.Empty() {
		return ASRange{}, errors.New("AS range must have exactly two entries")
	}
	if max < min {
		return ASRange{}, errors.Errorf("invalid AS range AS%d-AS%d", min, max)
	}
	return ASRange{Start: min, End: max}, nil
}

// ASIdentifierChoice ::= CHOICE { inherit NULL, asIdsOrRanges SEQUENCE OF ASIdOrRange }
func readASIdentifierChoice(data cryptobyte.String) (asIdentifierChoice, error) {
	choice := asIdentifierChoice{Present: true}
	if data.PeekASN1Tag(cbasn1.NULL) {
		var null cryptobyte.String
		if !data.ReadASN1(&null, cbasn1.NULL) || !null.Empty() || !data.Empty() {
			return choice, errors.New("malformed inherit choice")
		}
		choice.Inherited = true
		return choice, nil
	}
	var seq cryptobyte.String
	if !data.ReadASN1(&seq, cbasn1.SEQUENCE) || !data.Empty() {
		return choice, errors.New("expected inherit or a sequence of AS identifiers")
	}
	var b ResourceSetBuilder
	var prev ASRange
	for first := true; !seq.Empty(); first = false {
		r, err := readASIdOrRange(&seq)
		if err != nil {
			return choice, err
		}
		if !first {
			if prev.Adjacent(r) {
				return choice, errors.Errorf("adjacent resources %v and %v must be merged", prev, r)
			}
			if r.Start <= prev.End {
				return choice, errors.Errorf("resources %v and %v are not in ascending order", prev, r)
			}
		}
		b.AddASRange(r)
		prev = r
	}
	rs, err := b.ResourceSet()
	choice.Resources = rs
	return choice, err
}

func unmarshalASIdentifiers(data []byte) (asnum, rdi asIdentifierChoice, err error) {
	s := cryptobyte.String(data)
	var seq, asnumData, rdiData cryptobyte.String
	var hasASNum, hasRDI bool
	if !s.ReadASN1(&seq, cbasn1.SEQUENCE) || !s.Empty() {
		return asnum, rdi, errors.New("AS identifiers must be a single sequence")
	}
	if !seq.ReadOptionalASN1(&asnumData, &hasASNum, tagASNum) ||
		!seq.ReadOptionalASN1(&rdiData, &hasRDI, tagRDI) ||
		!seq.Empty() {
		return asnum, rdi, errors.New("malformed AS identifiers")
	}
	if hasASNum {
		if asnum, err = readASIdentifierChoice(asnumData); err != nil {
			return asnum, rdi, err
		}
	}
	if hasRDI {
		if rdi, err = readASIdentifierChoice(rdiData); err != nil {
			return asnum, rdi, err
		}
	}
	return asnum, rdi, nil
}

// DecodeASIdentifiers parses the value of the AS identifier delegation
// extension. The inherited flag is set when asnum is the inherit choice.
// Routing domain identifiers must be absent or empty.
func DecodeASIdentifiers(data []byte) (bool, ResourceSet, error) {
	asnum, rdi, err := unmarshalASIdentifiers(data)
	if err != nil {
		return false, ResourceSet{}, err
	}
	if rdi.Inherited || !rdi.Resources.IsEmpty() {
		return false, ResourceSet{}, errors.New("routing domain identifiers (RDI) not supported")
	}
	return asnum.Inherited, asnum.Resources, nil
}
