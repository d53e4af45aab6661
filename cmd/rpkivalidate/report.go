package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/RIPE-NCC/rpki-commons-sub001/api/schemas"
	"github.com/RIPE-NCC/rpki-commons-sub001/ov"
	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/RIPE-NCC/rpki-commons-sub001/validator/pki"
	"github.com/cloudflare/gortr/prefixfile"
)

func outputChecks(result *librpki.ValidationResult) ([]*schemas.OutputCheck, int, int) {
	checks := make([]*schemas.OutputCheck, 0)
	var failures, warnings int
	for _, location := range result.Locations() {
		for _, check := range result.AllChecksForLocation(location) {
			switch check.Status {
			case librpki.VALIDATION_ERROR:
				failures++
			case librpki.VALIDATION_WARNING:
				warnings++
			}
			checks = append(checks, &schemas.OutputCheck{
				Location: location.String(),
				Key:      check.Key,
				Status:   check.Status.String(),
				Params:   check.Params,
			})
		}
	}
	return checks, failures, warnings
}

func outputCertificate(res *pki.Resource, out *schemas.OutputRes) {
	cert := res.Certificate.Certificate
	out.SubjectKeyId = hex.EncodeToString(cert.SubjectKeyId)
	out.AuthorityKeyId = hex.EncodeToString(cert.AuthorityKeyId)
	out.ValidFrom = int(cert.NotBefore.Unix())
	out.ValidTo = int(cert.NotAfter.Unix())
	out.Serial = cert.SerialNumber.String()
	out.Resources = res.Certificate.Resources.String()
}

func outputResource(res *pki.Resource) *schemas.OutputRes {
	out := &schemas.OutputRes{
		Type: pki.TypeToName[res.Type],
		Path: res.File.ComputePath(),
	}
	switch {
	case res.Certificate != nil:
		outputCertificate(res, out)
	case res.ROA != nil:
		out.ASN = res.ROA.ASN
		out.Resources = res.ROA.Resources().String()
		for _, prefix := range res.ROA.Prefixes {
			out.ROAs = append(out.ROAs, &schemas.OutputROA{
				Prefix:    prefix.Prefix.String(),
				MaxLength: prefix.EffectiveMaxLength(),
			})
		}
	case res.Manifest != nil:
		out.FileList = res.Manifest.FileNames()
		out.ManifestNumber = res.Manifest.Number.String()
		out.ThisUpdate = int(res.Manifest.ThisUpdate.Unix())
		out.NextUpdate = int(res.Manifest.NextUpdate.Unix())
	}
	return out
}

func outputError(err error) *schemas.OutputError {
	out := &schemas.OutputError{
		Type:    "other",
		Message: err.Error(),
	}
	if verr, ok := err.(*pki.ValidationError); ok {
		out.Type = pki.ErrorTypeToName[verr.EType]
		out.Location = verr.Location.String()
		out.Keys = verr.Keys()
	}
	return out
}

// BuildReport lists every recorded check and every valid object.
func BuildReport(manager *pki.SimpleManager, ta string, explored int, now time.Time) *schemas.ReportJSON {
	checks, failures, warnings := outputChecks(manager.Result)
	report := &schemas.ReportJSON{
		Metadata: schemas.ReportMetadata{
			Generated: int(now.Unix()),
			TA:        ta,
			Explored:  explored,
			Valid:     len(manager.Valid),
			Failures:  failures,
			Warnings:  warnings,
		},
		Checks:    checks,
		Resources: make([]*schemas.OutputRes, 0),
	}
	for _, res := range manager.Valid {
		report.Resources = append(report.Resources, outputResource(res))
	}
	for _, err := range manager.Errors {
		report.Errors = append(report.Errors, outputError(err))
	}
	return report
}

// ValidatedPayloads returns one payload per prefix of every valid ROA.
func ValidatedPayloads(manager *pki.SimpleManager) []ov.VRP {
	vrps := make([]ov.VRP, 0)
	for _, res := range manager.ROAs() {
		vrps = append(vrps, ov.VRPsFromROA(res.ROA)...)
	}
	return vrps
}

func GenerateROAList(vrps []ov.VRP, ta string, now time.Time, validity time.Duration) *prefixfile.ROAList {
	roalist := &prefixfile.ROAList{
		Data: make([]prefixfile.ROAJson, 0),
	}
	for _, vrp := range vrps {
		roalist.Data = append(roalist.Data, prefixfile.ROAJson{
			ASN:    fmt.Sprintf("AS%v", vrp.ASN),
			Prefix: vrp.Prefix.String(),
			Length: uint8(vrp.MaxLength),
			TA:     ta,
		})
	}
	roalist.Data = FilterDuplicates(roalist.Data)
	roalist.Metadata = prefixfile.MetaData{
		Counts:    len(roalist.Data),
		Generated: int(now.Unix()),
		Valid:     int(now.Add(validity).Unix()),
	}
	return roalist
}

func ValidateRoute(vrps []ov.VRP, route ov.Route) (*schemas.OutputRoute, error) {
	validator := ov.NewOVFromVRPs(vrps)
	matching, state, err := validator.Validate(route)
	if err != nil {
		return nil, err
	}
	out := &schemas.OutputRoute{
		Prefix:   route.Prefix.String(),
		ASN:      route.ASN,
		State:    state.String(),
		Matching: make([]*schemas.OutputVRP, 0, len(matching)),
	}
	for _, roa := range matching {
		out.Matching = append(out.Matching, &schemas.OutputVRP{
			Prefix:    roa.GetPrefix().String(),
			MaxLength: roa.GetMaxLen(),
			ASN:       roa.GetASN(),
		})
	}
	return out, nil
}
