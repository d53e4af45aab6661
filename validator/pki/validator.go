package pki

import (
	"bytes"
	"crypto/x509"
	"time"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

const timeFormat = time.RFC3339

// ResourceCertificateValidator checks a certificate against the context of
// its issuer. The checks are recorded at the location of the certificate.
type ResourceCertificateValidator struct {
	Options librpki.ValidationOptions
	Clock   clockwork.Clock
	Locator CRLLocator
	Log     log.FieldLogger
}

func NewResourceCertificateValidator(options librpki.ValidationOptions, locator CRLLocator) *ResourceCertificateValidator {
	return &ResourceCertificateValidator{
		Options: options,
		Clock:   clockwork.NewRealClock(),
		Locator: locator,
		Log:     log.StandardLogger(),
	}
}

func (v *ResourceCertificateValidator) now() time.Time {
	if v.Clock == nil {
		return time.Now().UTC()
	}
	return v.Clock.Now().UTC()
}

// Validate checks child against ctx and returns false when any check
// recorded at location failed. A self-signed child is validated against
// itself and ctx.Certificate must then be child.
func (v *ResourceCertificateValidator) Validate(result *librpki.ValidationResult, location librpki.ValidationLocation, ctx *ValidationContext, child *librpki.RPKICertificate) bool {
	defer result.PushLocation(location)()
	parent := ctx.Certificate
	now := v.now()

	v.verifySignature(result, parent, child)
	v.verifyValidity(result, now, child)
	if !child.IsRoot() {
		v.verifyCrl(result, ctx, child, now)
	}
	v.verifyIssuer(result, parent, child)
	v.verifyKeyUsage(result, child)
	if !child.IsRoot() {
		v.verifyAuthorityKeyId(result, parent, child)
	}
	v.verifyResources(result, ctx, child)

	valid := !result.HasFailureForCurrentLocation()
	if v.Log != nil {
		v.Log.Debugf("Validated certificate %v against %v: %v", location, ctx.Location, valid)
	}
	return valid
}

func (v *ResourceCertificateValidator) verifySignature(result *librpki.ValidationResult, parent, child *librpki.RPKICertificate) {
	result.RejectIfFalse(parent.IsCA(), librpki.ISSUER_IS_CA)
	err := parent.Certificate.CheckSignature(child.Certificate.SignatureAlgorithm, child.Certificate.RawTBSCertificate, child.Certificate.Signature)
	result.RejectIfFalse(err == nil, librpki.SIGNATURE_VALID)
}

func (v *ResourceCertificateValidator) verifyValidity(result *librpki.ValidationResult, now time.Time, child *librpki.RPKICertificate) {
	notBefore, notAfter := child.ValidityPeriod()
	result.RejectIfTrue(now.Before(notBefore), librpki.NOT_VALID_BEFORE, notBefore.Format(timeFormat))
	result.RejectIfTrue(now.After(notAfter), librpki.NOT_VALID_AFTER, notAfter.Format(timeFormat))
}

func (v *ResourceCertificateValidator) verifyCrl(result *librpki.ValidationResult, ctx *ValidationContext, child *librpki.RPKICertificate, now time.Time) {
	uri := child.CRLURI()
	var crl *librpki.RPKICRL
	if v.Locator != nil {
		crl = v.Locator.GetCRL(uri, ctx, result)
	}
	if result.RejectIfNil(crl, librpki.OBJECTS_CRL_VALID, uri) {
		return
	}
	parent := ctx.Certificate
	result.RejectIfFalse(crl.VerifySignature(parent) == nil, librpki.CRL_SIGNATURE_VALID, uri)
	if aki := crl.AuthorityKeyId(); len(aki) > 0 {
		result.RejectIfFalse(bytes.Equal(aki, parent.SubjectKeyId()), librpki.CRL_AKI_MISMATCH, uri)
	}
	CheckNextUpdate(result, v.Options.StrictManifestCRLValidityChecks, v.Options.CRLMaxStalePeriod,
		crl.NextUpdate(), now, librpki.CRL_NEXT_UPDATE_BEFORE_NOW)
	result.RejectIfTrue(crl.IsRevoked(child.SerialNumber(), now), librpki.CERT_NOT_REVOKED, child.SerialNumber().String())
}

// CheckNextUpdate records key as passed until nextUpdate. Past it, key is
// a warning during the grace period unless strict, and an error after.
func CheckNextUpdate(result *librpki.ValidationResult, strict bool, grace time.Duration, nextUpdate, now time.Time, key string) bool {
	param := nextUpdate.Format(timeFormat)
	switch {
	case !now.After(nextUpdate):
		result.Pass(key, param)
		return true
	case !strict && !now.After(nextUpdate.Add(grace)):
		result.Warn(key, param)
		return true
	}
	result.Error(key, param)
	return false
}

func (v *ResourceCertificateValidator) verifyIssuer(result *librpki.ValidationResult, parent, child *librpki.RPKICertificate) {
	result.RejectIfFalse(bytes.Equal(child.Certificate.RawIssuer, parent.Certificate.RawSubject), librpki.PREV_SUBJECT_EQ_ISSUER)
}

func (v *ResourceCertificateValidator) verifyKeyUsage(result *librpki.ValidationResult, child *librpki.RPKICertificate) {
	usage := child.Certificate.KeyUsage
	if !result.WarnIfFalse(usage != 0, librpki.KEY_USAGE_EXT_PRESENT) {
		return
	}
	if child.IsCA() {
		result.WarnIfFalse(usage&x509.KeyUsageCertSign != 0, librpki.KEY_CERT_SIGN)
		result.WarnIfFalse(usage&x509.KeyUsageCRLSign != 0, librpki.CRL_SIGN)
	} else {
		result.WarnIfFalse(usage&x509.KeyUsageDigitalSignature != 0, librpki.DIG_SIGN)
	}
}

func (v *ResourceCertificateValidator) verifyAuthorityKeyId(result *librpki.ValidationResult, parent, child *librpki.RPKICertificate) {
	result.RejectIfFalse(len(child.SubjectKeyId()) > 0, librpki.SKI_PRESENT)
	if result.RejectIfFalse(len(child.AuthorityKeyId()) > 0, librpki.AKI_PRESENT) {
		result.RejectIfFalse(bytes.Equal(child.AuthorityKeyId(), parent.SubjectKeyId()), librpki.PREV_SKI_EQ_AKI)
	}
}

func (v *ResourceCertificateValidator) verifyResources(result *librpki.ValidationResult, ctx *ValidationContext, child *librpki.RPKICertificate) {
	if child.Kind != librpki.CERTIFICATE_RESOURCE {
		return
	}
	extension := child.Resources
	if child.IsRoot() {
		result.RejectIfFalse(len(extension.InheritedTypes()) == 0, librpki.ROOT_INHERITS_RESOURCES)
		return
	}

	owned := extension.Resources()
	effective := ctx.EffectiveResources()
	if effective.Contains(owned) {
		result.Pass(librpki.RESOURCE_RANGE)
		return
	}
	overclaimed := owned.Subtract(effective)
	if v.Options.AllowOverclaimParentChild {
		result.Warn(librpki.RESOURCE_RANGE, overclaimed.String())
		ctx.AddOverclaiming(overclaimed)
		return
	}
	result.Error(librpki.RESOURCE_RANGE, overclaimed.String())
}

// SignedObjectValidator checks the EE certificate of a signed object against
// the context of the CA that issued it.
type SignedObjectValidator struct {
	Certificates *ResourceCertificateValidator
}

// embeddedCRL serves the CRL carried inside a signed object.
type embeddedCRL struct {
	crl *librpki.RPKICRL
}

func (e embeddedCRL) GetCRL(uri string, ctx *ValidationContext, result *librpki.ValidationResult) *librpki.RPKICRL {
	return e.crl
}

// Validate validates the EE certificate of object. Objects carrying their
// own CRL are checked for revocation against it, the others through the
// locator.
func (v *SignedObjectValidator) Validate(result *librpki.ValidationResult, location librpki.ValidationLocation, ctx *ValidationContext, object *librpki.SignedObject) bool {
	validator := *v.Certificates
	if object.CRL != nil {
		validator.Locator = embeddedCRL{crl: object.CRL}
	}
	return validator.Validate(result, location, ctx, object.Certificate)
}

// ValidateManifest also checks the manifest is not past its next update
// time, with the manifest grace period.
func (v *SignedObjectValidator) ValidateManifest(result *librpki.ValidationResult, location librpki.ValidationLocation, ctx *ValidationContext, mft *librpki.ManifestCms) bool {
	valid := v.Validate(result, location, ctx, mft.SignedObject)
	defer result.PushLocation(location)()
	options := v.Certificates.Options
	fresh := CheckNextUpdate(result, options.StrictManifestCRLValidityChecks, options.ManifestMaxStalePeriod,
		mft.NextUpdate, v.Certificates.now(), librpki.MANIFEST_PAST_NEXT_UPDATE_TIME)
	return valid && fresh
}
