package pki

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/getsentry/sentry-go"
)

const (
	ERROR_CERTIFICATE_VALIDITY = iota
	ERROR_CERTIFICATE_PARENT
	ERROR_CERTIFICATE_REVOCATION
	ERROR_CERTIFICATE_RESOURCE
	ERROR_OBJECT_CONTENT
	ERROR_OBJECT_FETCH
)

type stack []uintptr
type Frame uintptr

var (
	ErrorTypeToName = map[int]string{
		ERROR_CERTIFICATE_VALIDITY:   "validity",
		ERROR_CERTIFICATE_PARENT:     "parent",
		ERROR_CERTIFICATE_REVOCATION: "revocation",
		ERROR_CERTIFICATE_RESOURCE:   "resource",
		ERROR_OBJECT_CONTENT:         "content",
		ERROR_OBJECT_FETCH:           "fetch",
	}

	keyToErrorType = map[string]int{
		librpki.NOT_VALID_BEFORE:           ERROR_CERTIFICATE_VALIDITY,
		librpki.NOT_VALID_AFTER:            ERROR_CERTIFICATE_VALIDITY,
		librpki.CRL_NEXT_UPDATE_BEFORE_NOW: ERROR_CERTIFICATE_VALIDITY,
		librpki.ISSUER_IS_CA:               ERROR_CERTIFICATE_PARENT,
		librpki.SIGNATURE_VALID:            ERROR_CERTIFICATE_PARENT,
		librpki.PREV_SUBJECT_EQ_ISSUER:     ERROR_CERTIFICATE_PARENT,
		librpki.PREV_SKI_EQ_AKI:            ERROR_CERTIFICATE_PARENT,
		librpki.CERT_NOT_REVOKED:           ERROR_CERTIFICATE_REVOCATION,
		librpki.CRL_SIGNATURE_VALID:        ERROR_CERTIFICATE_REVOCATION,
		librpki.OBJECTS_CRL_VALID:          ERROR_CERTIFICATE_REVOCATION,
		librpki.RESOURCE_RANGE:             ERROR_CERTIFICATE_RESOURCE,
		librpki.ROOT_INHERITS_RESOURCES:    ERROR_CERTIFICATE_RESOURCE,
		librpki.ROA_RESOURCES:              ERROR_CERTIFICATE_RESOURCE,
		librpki.RESOURCE_EXT_CRITICAL:      ERROR_CERTIFICATE_RESOURCE,
		librpki.VALIDATOR_READ_FILE:        ERROR_OBJECT_FETCH,
		librpki.VALIDATOR_URI_RSYNC_SCHEME: ERROR_OBJECT_FETCH,
	}
)

// ValidationError reports the failed checks of one location as a Go error,
// with the stack of the caller that gave up on the object.
type ValidationError struct {
	EType    int
	Location librpki.ValidationLocation
	Failures []librpki.ValidationCheck

	Certificate *librpki.RPKICertificate

	Stack *stack

	File *PKIFile
}

func callers() *stack {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	var st stack = pcs[0:n]
	return &st
}

// StackTrace follows the naming Sentry looks for when extracting a stack
// trace from an error.
func StackTrace(s *stack) []Frame {
	f := make([]Frame, len(*s))
	for i := 0; i < len(f); i++ {
		f[i] = Frame((*s)[i])
	}
	return f
}

func (e *ValidationError) StackTrace() []Frame {
	return StackTrace(e.Stack)
}

// NewValidationError collects the failures recorded at location. It returns
// nil when there are none.
func NewValidationError(result *librpki.ValidationResult, location librpki.ValidationLocation, cert *librpki.RPKICertificate) *ValidationError {
	failures := result.FailuresForLocation(location)
	if len(failures) == 0 {
		return nil
	}
	etype := ERROR_OBJECT_CONTENT
	if t, ok := keyToErrorType[failures[0].Key]; ok {
		etype = t
	}
	return &ValidationError{
		EType:       etype,
		Location:    location,
		Failures:    failures,
		Certificate: cert,
		Stack:       callers(),
	}
}

func (e *ValidationError) AddFileErrorInfo(file *PKIFile) {
	e.File = file
}

func (e *ValidationError) Keys() []string {
	keys := make([]string, len(e.Failures))
	for i, check := range e.Failures {
		keys[i] = check.Key
	}
	return keys
}

func (e *ValidationError) Error() string {
	certinfo := ""
	if e.Certificate != nil {
		certinfo = fmt.Sprintf(" for certificate ski:%x aki:%x", e.Certificate.SubjectKeyId(), e.Certificate.AuthorityKeyId())
	}
	return fmt.Sprintf("%s issue at %v%s: [%s]", ErrorTypeToName[e.EType], e.Location, certinfo, strings.Join(e.Keys(), ", "))
}

func (e *ValidationError) SetSentryScope(scope *sentry.Scope) {
	scope.SetTag("Type", ErrorTypeToName[e.EType])
	scope.SetTag("Location", e.Location.String())
	scope.SetExtra("Failures", e.Keys())

	if e.Certificate != nil {
		cert := e.Certificate.Certificate
		scope.SetTag("Certificate.SubjectKeyId", hex.EncodeToString(cert.SubjectKeyId))
		scope.SetTag("Certificate.AuthorityKeyId", hex.EncodeToString(cert.AuthorityKeyId))

		scope.SetExtra("Certificate.NotBefore", cert.NotBefore)
		scope.SetExtra("Certificate.NotAfter", cert.NotAfter)
		scope.SetTag("Certificate.SerialNumber", cert.SerialNumber.String())

		scope.SetExtra("Certificate.SIAs", e.Certificate.SubjectInformationAccess)
		scope.SetExtra("Certificate.Resources", e.Certificate.Resources.String())
	}
	if e.File != nil {
		scope.SetTag("File.Repository", e.File.Repo)
		scope.SetTag("File.Path", e.File.Path)
		scope.SetTag("File.Type", TypeToName[e.File.Type])
		scope.SetExtra("File.Trust", e.File.Trust)
	}
}
