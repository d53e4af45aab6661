package pki

import (
	"strings"
	"sync"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	log "github.com/sirupsen/logrus"
)

// CRLLocator finds the CRL published at uri by the issuer of ctx. It
// returns nil when there is none, recording why in result.
type CRLLocator interface {
	GetCRL(uri string, ctx *ValidationContext, result *librpki.ValidationResult) *librpki.RPKICRL
}

// MapCRLLocator serves CRLs that are already parsed, keyed by URI.
type MapCRLLocator map[string]*librpki.RPKICRL

func (m MapCRLLocator) GetCRL(uri string, ctx *ValidationContext, result *librpki.ValidationResult) *librpki.RPKICRL {
	return m[uri]
}

// LocalCRLLocator reads CRLs from a local mirror of the repositories.
// Parsed CRLs are cached by URI. It is safe for concurrent use.
type LocalCRLLocator struct {
	Seeker FileSeeker
	Log    log.FieldLogger

	mu    sync.Mutex
	cache map[string]*librpki.RPKICRL
}

func NewLocalCRLLocator(seeker FileSeeker) *LocalCRLLocator {
	return &LocalCRLLocator{
		Seeker: seeker,
		Log:    log.StandardLogger(),
		cache:  make(map[string]*librpki.RPKICRL),
	}
}

func (l *LocalCRLLocator) cached(uri string) (*librpki.RPKICRL, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	crl, ok := l.cache[uri]
	return crl, ok
}

// GetCRL records the fetch and parse checks at the location of the CRL.
// Relative URIs are resolved against the repository of the issuer.
func (l *LocalCRLLocator) GetCRL(uri string, ctx *ValidationContext, result *librpki.ValidationResult) *librpki.RPKICRL {
	if uri == "" {
		return nil
	}
	if !strings.Contains(uri, "://") && ctx != nil {
		uri = ctx.RepositoryURI() + uri
	}
	if crl, ok := l.cached(uri); ok {
		return crl
	}

	location := librpki.ValidationLocation(uri)
	defer result.PushLocation(location)()
	if !result.RejectIfFalse(strings.HasPrefix(uri, "rsync://"), librpki.VALIDATOR_URI_RSYNC_SCHEME, uri) {
		return nil
	}
	file, err := l.Seeker.GetFile(&PKIFile{Path: uri, Type: TYPE_CRL})
	if err != nil && l.Log != nil {
		l.Log.Debugf("Could not read CRL %v: %v", uri, err)
	}
	if !result.RejectIfFalse(err == nil, librpki.VALIDATOR_READ_FILE, uri) {
		return nil
	}
	crl := librpki.ParseCRL(result, location, file.Data)
	if !result.RejectIfNil(crl, librpki.VALIDATOR_FETCHED_OBJECT_IS_CRL, uri) {
		l.mu.Lock()
		if l.cache == nil {
			l.cache = make(map[string]*librpki.RPKICRL)
		}
		l.cache[uri] = crl
		l.mu.Unlock()
	}
	return crl
}
