// Route origin validation against validated ROA payloads (RFC 6811)

package ov

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/kentik/patricia"
	"github.com/kentik/patricia/int64_tree"
	"go4.org/netipx"
)

type RouteState int

const (
	STATE_UNKNOWN RouteState = iota
	STATE_INVALID_ASN
	STATE_INVALID_LENGTH
	STATE_VALID
)

var (
	StateToName = map[RouteState]string{
		STATE_UNKNOWN:        "NotFound",
		STATE_INVALID_ASN:    "InvalidASN",
		STATE_INVALID_LENGTH: "InvalidLength",
		STATE_VALID:          "Valid",
	}
)

func (s RouteState) String() string {
	return StateToName[s]
}

func (s RouteState) Invalid() bool {
	return s == STATE_INVALID_ASN || s == STATE_INVALID_LENGTH
}

// AbstractROA is satisfied by VRP and by gortr's prefixfile.ROAJson.
type AbstractROA interface {
	GetASN() uint32
	GetMaxLen() int
	GetPrefix() *net.IPNet
}

type AbstractRoute interface {
	GetPrefix() *net.IPNet
	GetASN() uint32
}

// VRP is a validated ROA payload: one prefix of a valid ROA.
type VRP struct {
	ASN       uint32
	Prefix    netip.Prefix
	MaxLength int
}

func (v VRP) GetASN() uint32 {
	return v.ASN
}

func (v VRP) GetMaxLen() int {
	return v.MaxLength
}

func (v VRP) GetPrefix() *net.IPNet {
	return netipx.PrefixIPNet(v.Prefix.Masked())
}

func (v VRP) String() string {
	return fmt.Sprintf("AS%d %v-%d", v.ASN, v.Prefix, v.MaxLength)
}

// VRPsFromROA expands a ROA into one payload per prefix. An absent max
// length becomes the prefix length.
func VRPsFromROA(roa *librpki.RoaCms) []VRP {
	vrps := make([]VRP, 0, len(roa.Prefixes))
	for _, prefix := range roa.Prefixes {
		vrps = append(vrps, VRP{
			ASN:       roa.ASN,
			Prefix:    prefix.Prefix.Masked(),
			MaxLength: prefix.EffectiveMaxLength(),
		})
	}
	return vrps
}

// Route is a (prefix, origin) pair as announced in BGP.
type Route struct {
	Prefix netip.Prefix
	ASN    uint32
}

func (r Route) GetPrefix() *net.IPNet {
	return netipx.PrefixIPNet(r.Prefix.Masked())
}

func (r Route) GetASN() uint32 {
	return r.ASN
}

func ParseRoute(prefix string, asn uint32) (Route, error) {
	p, err := netip.ParsePrefix(prefix)
	if err != nil {
		return Route{}, err
	}
	return Route{Prefix: p.Masked(), ASN: asn}, nil
}

type OriginValidator struct {
	vrp []AbstractROA
	t4  *int64_tree.TreeV4
	t6  *int64_tree.TreeV6
}

// vrp: Validated ROA Payload https://tools.ietf.org/html/rfc6811
func NewOV(vrp []AbstractROA) *OriginValidator {
	t4 := int64_tree.NewTreeV4()
	t6 := int64_tree.NewTreeV6()

	for i, r := range vrp {
		ip4, ip6, _ := patricia.ParseFromIPAddr(r.GetPrefix())
		if ip4 != nil {
			t4.Add(*ip4, int64(i), nil)
		} else if ip6 != nil {
			t6.Add(*ip6, int64(i), nil)
		}
	}

	return &OriginValidator{vrp: vrp, t4: t4, t6: t6}
}

func NewOVFromVRPs(vrps []VRP) *OriginValidator {
	roas := make([]AbstractROA, len(vrps))
	for i := range vrps {
		roas[i] = vrps[i]
	}
	return NewOV(roas)
}

func (ov *OriginValidator) Len() int {
	return len(ov.vrp)
}

type curValidation struct {
	state    RouteState
	route    AbstractRoute
	length   int
	ov       *OriginValidator
	matching []AbstractROA
}

// Filter is called for every payload covering the route. A VRP for AS0
// never matches a route.
func (cv *curValidation) Filter(payload int64) bool {
	roa := cv.ov.vrp[payload]
	asnMatch := roa.GetASN() != 0 && cv.route.GetASN() == roa.GetASN()
	switch {
	case asnMatch && cv.length <= roa.GetMaxLen():
		cv.state = STATE_VALID
	case asnMatch && cv.state != STATE_VALID:
		cv.state = STATE_INVALID_LENGTH
	case cv.state == STATE_UNKNOWN:
		cv.state = STATE_INVALID_ASN
	}
	cv.matching = append(cv.matching, roa)
	return true
}

// Validate returns the payloads covering the route and the route state.
// Invalid routes are INVALID_LENGTH when a covering payload has the
// route's origin, INVALID_ASN otherwise.
func (ov *OriginValidator) Validate(route AbstractRoute) ([]AbstractROA, RouteState, error) {
	matching := make([]AbstractROA, 0)
	prefix := route.GetPrefix()
	if prefix == nil {
		return matching, STATE_UNKNOWN, errors.New("Route has no prefix")
	}
	ip4, ip6, err := patricia.ParseFromIPAddr(prefix)

	if err != nil {
		return matching, STATE_UNKNOWN, err
	}

	length, _ := prefix.Mask.Size()
	cv := curValidation{
		route:    route,
		length:   length,
		ov:       ov,
		state:    STATE_UNKNOWN,
		matching: matching,
	}
	if ip4 != nil {
		ov.t4.FindTagsWithFilter(*ip4, cv.Filter)
	} else if ip6 != nil {
		ov.t6.FindTagsWithFilter(*ip6, cv.Filter)
	} else {
		return cv.matching, cv.state, errors.New("Unknown IP type")
	}

	return cv.matching, cv.state, nil
}
