package main

import (
	"math/big"
	"net/netip"
	"testing"
	"time"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/RIPE-NCC/rpki-commons-sub001/validator/pki"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testManager() *pki.SimpleManager {
	manager := pki.NewSimpleManager(nil, nil)
	manager.Log = nil

	repo := "rsync://example.net/repo/"
	mftFile := &pki.PKIFile{Repo: repo, Path: repo + "root.mft", Type: pki.TYPE_MFT}
	manager.Valid = append(manager.Valid,
		&pki.Resource{
			Type: pki.TYPE_MFT,
			File: mftFile,
			Manifest: &librpki.ManifestCms{
				Number:     big.NewInt(7),
				ThisUpdate: testNow.Add(-time.Hour),
				NextUpdate: testNow.Add(time.Hour),
			},
		},
		&pki.Resource{
			Type: pki.TYPE_ROA,
			File: &pki.PKIFile{Parent: mftFile, Repo: repo, Path: "a.roa", Type: pki.TYPE_ROA},
			ROA: &librpki.RoaCms{
				ASN: 64496,
				Prefixes: []librpki.RoaPrefix{
					{Prefix: netip.MustParsePrefix("10.0.0.0/16"), MaxLength: 24},
					{Prefix: netip.MustParsePrefix("2001:db8::/32")},
				},
			},
		},
	)

	manager.Result.SetLocation(librpki.ValidationLocation(repo + "a.roa"))
	manager.Result.Pass(librpki.SIGNATURE_VALID)
	manager.Result.Warn(librpki.KNOWN_OBJECT_TYPE, "b.txt")
	manager.Result.SetLocation(librpki.ValidationLocation(repo + "c.roa"))
	manager.Result.Error(librpki.VALIDATOR_MANIFEST_ENTRY_HASH_MATCHES, "c.roa")
	if err := pki.NewValidationError(manager.Result, librpki.ValidationLocation(repo+"c.roa"), nil); err != nil {
		manager.Errors = append(manager.Errors, err)
	}
	return manager
}

func TestBuildReport(t *testing.T) {
	manager := testManager()
	report := BuildReport(manager, "test", 3, testNow)

	assert.Equal(t, int(testNow.Unix()), report.Metadata.Generated)
	assert.Equal(t, 3, report.Metadata.Explored)
	assert.Equal(t, 2, report.Metadata.Valid)
	assert.Equal(t, 1, report.Metadata.Failures)
	assert.Equal(t, 1, report.Metadata.Warnings)

	require.Len(t, report.Checks, 3)
	assert.Equal(t, "rsync://example.net/repo/a.roa", report.Checks[0].Location)
	assert.Equal(t, librpki.SIGNATURE_VALID, report.Checks[0].Key)
	assert.Equal(t, []string{"b.txt"}, report.Checks[1].Params)
	assert.Equal(t, librpki.VALIDATOR_MANIFEST_ENTRY_HASH_MATCHES, report.Checks[2].Key)

	require.Len(t, report.Resources, 2)
	assert.Equal(t, "manifest", report.Resources[0].Type)
	assert.Equal(t, "7", report.Resources[0].ManifestNumber)
	roa := report.Resources[1]
	assert.Equal(t, "rsync://example.net/repo/a.roa", roa.Path)
	assert.Equal(t, uint32(64496), roa.ASN)
	require.Len(t, roa.ROAs, 2)
	assert.Equal(t, 32, roa.ROAs[1].MaxLength)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, []string{librpki.VALIDATOR_MANIFEST_ENTRY_HASH_MATCHES}, report.Errors[0].Keys)
}

func TestGenerateROAList(t *testing.T) {
	manager := testManager()
	vrps := ValidatedPayloads(manager)
	require.Len(t, vrps, 2)

	roalist := GenerateROAList(append(vrps, vrps[0]), "test", testNow, time.Hour)
	assert.Equal(t, 2, roalist.Metadata.Counts)
	assert.Equal(t, int(testNow.Add(time.Hour).Unix()), roalist.Metadata.Valid)
	require.Len(t, roalist.Data, 2)
	assert.Equal(t, "10.0.0.0/16", roalist.Data[0].Prefix)
	assert.Equal(t, uint32(64496), roalist.Data[0].GetASN())
	assert.Equal(t, uint8(24), roalist.Data[0].Length)
	assert.Equal(t, "test", roalist.Data[1].TA)
}

func TestValidateRoute(t *testing.T) {
	vrps := ValidatedPayloads(testManager())

	tests := []struct {
		route string
		state string
		count int
	}{
		{"10.0.1.0/24,AS64496", "Valid", 1},
		{"10.0.1.0/25,AS64496", "InvalidLength", 1},
		{"10.0.1.0/24,AS64497", "InvalidASN", 1},
		{"192.168.0.0/24,AS64496", "NotFound", 0},
		{"2001:db8::/32,64496", "Valid", 1},
	}
	for _, test := range tests {
		route, err := ParseRouteFlag(test.route)
		require.NoError(t, err, test.route)
		out, err := ValidateRoute(vrps, route)
		require.NoError(t, err, test.route)
		assert.Equal(t, test.state, out.State, test.route)
		assert.Len(t, out.Matching, test.count, test.route)
	}

	for _, bad := range []string{"10.0.0.0/24", "10.0.0.0/24,ASX", "10.0.0.0,AS1"} {
		_, err := ParseRouteFlag(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewValidation(t *testing.T) {
	v, err := NewValidation(&pki.LocalFetch{}, librpki.DefaultValidationOptions(), clockwork.NewFakeClockAt(testNow))
	require.NoError(t, err)
	families, err := v.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
	assert.NotNil(t, v.Manager.Result.Observer)
}
