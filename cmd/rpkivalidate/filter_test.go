package main

import (
	"net/netip"
	"testing"

	"github.com/cloudflare/gortr/prefixfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roaList() []prefixfile.ROAJson {
	return []prefixfile.ROAJson{
		{
			Prefix: "10.0.0.0/16",
			ASN:    "AS64496",
			Length: 24,
		},
		{
			Prefix: "2001:db8::/32",
			ASN:    "AS64497",
			Length: 48,
		},
		{
			Prefix: "192.168.0.0/24",
			ASN:    "AS64496",
			Length: 24,
		},
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		asns     []uint32
		prefixes []netip.Prefix
		expected []prefixfile.ROAJson
	}{
		{
			name:     "No filters",
			expected: roaList(),
		},
		{
			name:     "By ASN",
			asns:     []uint32{64496},
			expected: []prefixfile.ROAJson{roaList()[0], roaList()[2]},
		},
		{
			name:     "By prefix",
			prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("2001:db8::/32")},
			expected: []prefixfile.ROAJson{roaList()[0], roaList()[1]},
		},
		{
			name:     "More specific prefix does not cover",
			prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/24")},
			expected: []prefixfile.ROAJson{},
		},
		{
			name:     "By ASN and prefix",
			asns:     []uint32{64497},
			prefixes: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
			expected: []prefixfile.ROAJson{},
		},
	}

	for _, test := range tests {
		res := FilterPrefix(FilterASN(roaList(), test.asns), test.prefixes)
		assert.Equal(t, test.expected, res, test.name)
	}
}

func TestFilterDuplicates(t *testing.T) {
	input := append(roaList(), roaList()[0])
	assert.Equal(t, roaList(), FilterDuplicates(input))
}

func TestParseLists(t *testing.T) {
	asns, err := ParseASNList("AS64496, 64497,as64498,")
	require.NoError(t, err)
	assert.Equal(t, []uint32{64496, 64497, 64498}, asns)

	_, err = ParseASNList("AS-1")
	assert.Error(t, err)

	prefixes, err := ParsePrefixList("10.0.0.1/8, 2001:db8::/32")
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("2001:db8::/32")}, prefixes)

	_, err = ParsePrefixList("10.0.0.0")
	assert.Error(t, err)
}
