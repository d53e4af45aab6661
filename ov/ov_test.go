package ov

import (
	"net/netip"
	"testing"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/cloudflare/gortr/prefixfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func MakeData() ([]VRP, Route) {
	vrp := []VRP{
		{65001, netip.MustParsePrefix("10.0.0.0/16"), 24},
		{65002, netip.MustParsePrefix("10.0.0.0/22"), 23},
		{65003, netip.MustParsePrefix("10.0.0.0/24"), 24},
		{65004, netip.MustParsePrefix("10.0.0.0/25"), 26},
	}
	route := Route{
		Prefix: netip.MustParsePrefix("10.0.0.0/24"),
		ASN:    65003,
	}
	return vrp, route
}

func TestValid(t *testing.T) {
	vrp, route := MakeData()
	ov := NewOVFromVRPs(vrp)
	matching, state, err := ov.Validate(route)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(matching))
	assert.Equal(t, STATE_VALID, state)
	assert.Equal(t, "Valid", state.String())
}

func TestInvalidASN(t *testing.T) {
	vrp, route := MakeData()
	ov := NewOVFromVRPs(vrp[0:2])
	matching, state, err := ov.Validate(route)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(matching))
	assert.Equal(t, STATE_INVALID_ASN, state)
	assert.True(t, state.Invalid())
}

func TestInvalidLength(t *testing.T) {
	vrp, _ := MakeData()
	ov := NewOVFromVRPs(vrp)
	matching, state, err := ov.Validate(Route{Prefix: netip.MustParsePrefix("10.0.0.0/25"), ASN: 65001})
	assert.Nil(t, err)
	assert.Equal(t, 4, len(matching))
	assert.Equal(t, STATE_INVALID_LENGTH, state)
}

func TestUnknown(t *testing.T) {
	vrp, route := MakeData()
	ov := NewOVFromVRPs(vrp[3:3])
	matching, state, err := ov.Validate(route)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(matching))
	assert.Equal(t, STATE_UNKNOWN, state)

	ov = NewOVFromVRPs(vrp)
	_, state, err = ov.Validate(Route{Prefix: netip.MustParsePrefix("192.168.0.0/24"), ASN: 65001})
	assert.Nil(t, err)
	assert.Equal(t, STATE_UNKNOWN, state)
}

func TestAS0NeverMatches(t *testing.T) {
	ov := NewOVFromVRPs([]VRP{{0, netip.MustParsePrefix("2001:db8::/32"), 48}})
	_, state, err := ov.Validate(Route{Prefix: netip.MustParsePrefix("2001:db8:1::/48"), ASN: 0})
	assert.Nil(t, err)
	assert.Equal(t, STATE_INVALID_ASN, state)
}

func TestIPv6(t *testing.T) {
	ov := NewOVFromVRPs([]VRP{{64496, netip.MustParsePrefix("2001:db8::/32"), 48}})
	route, err := ParseRoute("2001:db8:1::/48", 64496)
	require.NoError(t, err)
	_, state, err := ov.Validate(route)
	assert.Nil(t, err)
	assert.Equal(t, STATE_VALID, state)

	route.Prefix = netip.MustParsePrefix("2001:db8:1::/56")
	_, state, err = ov.Validate(route)
	assert.Nil(t, err)
	assert.Equal(t, STATE_INVALID_LENGTH, state)
}

func TestParseRoute(t *testing.T) {
	route, err := ParseRoute("10.0.1.7/16", 64496)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParsePrefix("10.0.0.0/16"), route.Prefix)

	_, err = ParseRoute("10.0.0.0", 64496)
	assert.Error(t, err)
}

func TestValidateNoPrefix(t *testing.T) {
	ov := NewOVFromVRPs(nil)
	_, state, err := ov.Validate(Route{ASN: 64496})
	assert.Error(t, err)
	assert.Equal(t, STATE_UNKNOWN, state)
}

func TestPrefixFileROAs(t *testing.T) {
	roas := []AbstractROA{
		&prefixfile.ROAJson{Prefix: "10.0.0.0/16", ASN: "AS65001", Length: 24},
	}
	ov := NewOV(roas)
	assert.Equal(t, 1, ov.Len())
	_, state, err := ov.Validate(Route{Prefix: netip.MustParsePrefix("10.0.4.0/24"), ASN: 65001})
	assert.Nil(t, err)
	assert.Equal(t, STATE_VALID, state)
}

func TestVRPsFromROA(t *testing.T) {
	roa := &librpki.RoaCms{
		ASN: 64496,
		Prefixes: []librpki.RoaPrefix{
			{Prefix: netip.MustParsePrefix("10.0.0.0/16"), MaxLength: 24},
			{Prefix: netip.MustParsePrefix("2001:db8::/32")},
		},
	}
	vrps := VRPsFromROA(roa)
	assert.Equal(t, []VRP{
		{64496, netip.MustParsePrefix("10.0.0.0/16"), 24},
		{64496, netip.MustParsePrefix("2001:db8::/32"), 32},
	}, vrps)
	assert.Equal(t, "AS64496 10.0.0.0/16-24", vrps[0].String())
}
