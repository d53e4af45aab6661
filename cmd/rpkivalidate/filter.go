package main

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/cloudflare/gortr/prefixfile"
	"github.com/pkg/errors"
)

func FilterDuplicates(roalist []prefixfile.ROAJson) []prefixfile.ROAJson {
	roalistNodup := make([]prefixfile.ROAJson, 0)
	existingsROAs := make(map[string]struct{})
	for _, roa := range roalist {
		k := roa.String()
		_, present := existingsROAs[k]
		if !present {
			roalistNodup = append(roalistNodup, roa)
			existingsROAs[k] = struct{}{}
		}
	}

	return roalistNodup
}

// FilterASN keeps the entries whose origin is one of asns. An empty list
// keeps everything.
func FilterASN(roalist []prefixfile.ROAJson, asns []uint32) []prefixfile.ROAJson {
	if len(asns) == 0 {
		return roalist
	}
	keep := make(map[uint32]struct{}, len(asns))
	for _, asn := range asns {
		keep[asn] = struct{}{}
	}
	filtered := make([]prefixfile.ROAJson, 0)
	for _, roa := range roalist {
		if _, ok := keep[roa.GetASN()]; ok {
			filtered = append(filtered, roa)
		}
	}
	return filtered
}

// FilterPrefix keeps the entries whose prefix lies within one of prefixes.
// An empty list keeps everything.
func FilterPrefix(roalist []prefixfile.ROAJson, prefixes []netip.Prefix) []prefixfile.ROAJson {
	if len(prefixes) == 0 {
		return roalist
	}
	filtered := make([]prefixfile.ROAJson, 0)
	for _, roa := range roalist {
		p, err := netip.ParsePrefix(roa.Prefix)
		if err != nil {
			continue
		}
		for _, within := range prefixes {
			if within.Bits() <= p.Bits() && within.Contains(p.Addr()) {
				filtered = append(filtered, roa)
				break
			}
		}
	}
	return filtered
}

func ParseASN(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "AS")
	asn, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid ASN %q", s)
	}
	return uint32(asn), nil
}

func ParseASNList(list string) ([]uint32, error) {
	asns := make([]uint32, 0)
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		asn, err := ParseASN(item)
		if err != nil {
			return nil, err
		}
		asns = append(asns, asn)
	}
	return asns, nil
}

func ParsePrefixList(list string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		p, err := netip.ParsePrefix(item)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid prefix %q", item)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, nil
}
