package librpki

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go4.org/netipx"
)

type ResourceType int

const (
	RESOURCE_ASN ResourceType = iota
	RESOURCE_IPV4
	RESOURCE_IPV6
)

var (
	ResourceTypes = []ResourceType{RESOURCE_ASN, RESOURCE_IPV4, RESOURCE_IPV6}

	ResourceTypeToName = map[ResourceType]string{
		RESOURCE_ASN:  "ASN",
		RESOURCE_IPV4: "IPv4",
		RESOURCE_IPV6: "IPv6",
	}

	ALL_ASN_RESOURCES  = MustParseResourceSet("AS0-AS4294967295")
	ALL_IPV4_RESOURCES = MustParseResourceSet("0.0.0.0/0")
	ALL_IPV6_RESOURCES = MustParseResourceSet("::/0")
	ALL_RESOURCES      = MustParseResourceSet("AS0-AS4294967295, 0.0.0.0/0, ::/0")
)

func (t ResourceType) String() string {
	return ResourceTypeToName[t]
}

// Every resource of the type.
func (t ResourceType) Resources() ResourceSet {
	switch t {
	case RESOURCE_ASN:
		return ALL_ASN_RESOURCES
	case RESOURCE_IPV4:
		return ALL_IPV4_RESOURCES
	default:
		return ALL_IPV6_RESOURCES
	}
}

type ASRange struct {
	Start uint32
	End   uint32
}

func (r ASRange) IsSingle() bool {
	return r.Start == r.End
}

func (r ASRange) Adjacent(o ASRange) bool {
	return r.End != ^uint32(0) && r.End+1 == o.Start
}

func (r ASRange) String() string {
	if r.IsSingle() {
		return fmt.Sprintf("AS%d", r.Start)
	}
	return fmt.Sprintf("AS%d-AS%d", r.Start, r.End)
}

// AS numbers are stored as IPv4 addresses so the interval arithmetic of
// netipx applies to both kinds of resources.
func asnToAddr(asn uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], asn)
	return netip.AddrFrom4(b)
}

func addrToASN(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

// IPRangesAdjacent returns true when b starts right after a ends.
func IPRangesAdjacent(a, b netipx.IPRange) bool {
	next := a.To().Next()
	return next.IsValid() && next == b.From()
}

// ResourceSet is an immutable set of AS numbers, IPv4 and IPv6 addresses.
// The zero value is the empty set.
type ResourceSet struct {
	ip  *netipx.IPSet
	asn *netipx.IPSet
}

type ResourceSetBuilder struct {
	ip  netipx.IPSetBuilder
	asn netipx.IPSetBuilder
}

func (b *ResourceSetBuilder) AddPrefix(p netip.Prefix) {
	b.ip.AddPrefix(p)
}

func (b *ResourceSetBuilder) AddRange(r netipx.IPRange) {
	b.ip.AddRange(r)
}

func (b *ResourceSetBuilder) AddASN(asn uint32) {
	b.asn.Add(asnToAddr(asn))
}

func (b *ResourceSetBuilder) AddASRange(r ASRange) {
	b.asn.AddRange(netipx.IPRangeFrom(asnToAddr(r.Start), asnToAddr(r.End)))
}

func (b *ResourceSetBuilder) AddSet(rs ResourceSet) {
	b.ip.AddSet(rs.ipSet())
	b.asn.AddSet(rs.asnSet())
}

func (b *ResourceSetBuilder) RemoveSet(rs ResourceSet) {
	b.ip.RemoveSet(rs.ipSet())
	b.asn.RemoveSet(rs.asnSet())
}

func (b *ResourceSetBuilder) Intersect(rs ResourceSet) {
	b.ip.Intersect(rs.ipSet())
	b.asn.Intersect(rs.asnSet())
}

func (b *ResourceSetBuilder) ResourceSet() (ResourceSet, error) {
	ip, err := b.ip.IPSet()
	if err != nil {
		return ResourceSet{}, err
	}
	asn, err := b.asn.IPSet()
	if err != nil {
		return ResourceSet{}, err
	}
	return ResourceSet{ip: ip, asn: asn}, nil
}

func (rs ResourceSet) ipSet() *netipx.IPSet {
	if rs.ip == nil {
		return &netipx.IPSet{}
	}
	return rs.ip
}

func (rs ResourceSet) asnSet() *netipx.IPSet {
	if rs.asn == nil {
		return &netipx.IPSet{}
	}
	return rs.asn
}

// Operations below only combine valid sets, the builder cannot fail.
func (rs ResourceSet) combine(fn func(b *ResourceSetBuilder)) ResourceSet {
	var b ResourceSetBuilder
	b.AddSet(rs)
	fn(&b)
	res, _ := b.ResourceSet()
	return res
}

func (rs ResourceSet) Union(o ResourceSet) ResourceSet {
	return rs.combine(func(b *ResourceSetBuilder) { b.AddSet(o) })
}

func (rs ResourceSet) Intersect(o ResourceSet) ResourceSet {
	return rs.combine(func(b *ResourceSetBuilder) { b.Intersect(o) })
}

func (rs ResourceSet) Subtract(o ResourceSet) ResourceSet {
	return rs.combine(func(b *ResourceSetBuilder) { b.RemoveSet(o) })
}

// RestrictTo returns the resources of a single type.
func (rs ResourceSet) RestrictTo(t ResourceType) ResourceSet {
	return rs.Intersect(t.Resources())
}

// Contains returns true if every resource of o is in rs.
func (rs ResourceSet) Contains(o ResourceSet) bool {
	ip := rs.ipSet()
	for _, r := range o.ipSet().Ranges() {
		if !ip.ContainsRange(r) {
			return false
		}
	}
	asn := rs.asnSet()
	for _, r := range o.asnSet().Ranges() {
		if !asn.ContainsRange(r) {
			return false
		}
	}
	return true
}

func (rs ResourceSet) ContainsType(t ResourceType) bool {
	switch t {
	case RESOURCE_ASN:
		return len(rs.asnSet().Ranges()) > 0
	default:
		return len(rs.IPRanges(t)) > 0
	}
}

func (rs ResourceSet) IsEmpty() bool {
	return len(rs.ipSet().Ranges()) == 0 && len(rs.asnSet().Ranges()) == 0
}

func (rs ResourceSet) Equal(o ResourceSet) bool {
	return rs.ipSet().Equal(o.ipSet()) && rs.asnSet().Equal(o.asnSet())
}

// IPRanges returns the merged address ranges of one family in ascending order.
func (rs ResourceSet) IPRanges(t ResourceType) []netipx.IPRange {
	var ranges []netipx.IPRange
	for _, r := range rs.ipSet().Ranges() {
		if (t == RESOURCE_IPV4 && r.From().Is4()) || (t == RESOURCE_IPV6 && r.From().Is6()) {
			ranges = append(ranges, r)
		}
	}
	return ranges
}

// ASRanges returns the merged AS number ranges in ascending order.
func (rs ResourceSet) ASRanges() []ASRange {
	var ranges []ASRange
	for _, r := range rs.asnSet().Ranges() {
		ranges = append(ranges, ASRange{Start: addrToASN(r.From()), End: addrToASN(r.To())})
	}
	return ranges
}

func ipRangeString(r netipx.IPRange) string {
	if p, ok := r.Prefix(); ok {
		return p.String()
	}
	return r.String()
}

func (rs ResourceSet) String() string {
	parts := make([]string, 0)
	for _, r := range rs.ASRanges() {
		parts = append(parts, r.String())
	}
	for _, t := range []ResourceType{RESOURCE_IPV4, RESOURCE_IPV6} {
		for _, r := range rs.IPRanges(t) {
			parts = append(parts, ipRangeString(r))
		}
	}
	return strings.Join(parts, ", ")
}

func (rs ResourceSet) MarshalText() ([]byte, error) {
	return []byte(rs.String()), nil
}

func parseASN(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "AS")
	if hi, lo, ok := strings.Cut(s, "."); ok {
		h, err := strconv.ParseUint(hi, 10, 16)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid AS number %q", s)
		}
		l, err := strconv.ParseUint(lo, 10, 16)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid AS number %q", s)
		}
		return uint32(h<<16 | l), nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid AS number %q", s)
	}
	return uint32(n), nil
}

func parseResource(b *ResourceSetBuilder, s string) error {
	switch {
	case strings.HasPrefix(strings.ToUpper(s), "AS"):
		start, end, isRange := strings.Cut(s, "-")
		min, err := parseASN(start)
		if err != nil {
			return err
		}
		max := min
		if isRange {
			max, err = parseASN(end)
			if err != nil {
				return err
			}
		}
		if max < min {
			return errors.Errorf("invalid AS range %q", s)
		}
		b.AddASRange(ASRange{Start: min, End: max})
	case strings.Contains(s, "/"):
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return errors.Wrapf(err, "invalid prefix %q", s)
		}
		if p.Masked() != p {
			return errors.Errorf("prefix %q has host bits set", s)
		}
		b.AddPrefix(p)
	case strings.Contains(s, "-"):
		r, err := netipx.ParseIPRange(s)
		if err != nil {
			return errors.Wrapf(err, "invalid range %q", s)
		}
		b.AddRange(r)
	default:
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return errors.Wrapf(err, "invalid address %q", s)
		}
		b.AddPrefix(netip.PrefixFrom(addr, addr.BitLen()))
	}
	return nil
}

// ParseResourceSet parses a comma separated list of resources, for instance
// "AS3333, AS64496-AS64511, 10.0.0.0/8, 192.168.0.0-192.168.2.255, 2001:db8::/32".
func ParseResourceSet(s string) (ResourceSet, error) {
	var b ResourceSetBuilder
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := parseResource(&b, part); err != nil {
			return ResourceSet{}, err
		}
	}
	return b.ResourceSet()
}

func MustParseResourceSet(s string) ResourceSet {
	rs, err := ParseResourceSet(s)
	if err != nil {
		panic(err)
	}
	return rs
}
