package pki

import (
	"bytes"

	librpki "github.com/RIPE-NCC/rpki-commons-sub001/validator/lib"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Resource is a validated repository object.
type Resource struct {
	Type     int
	File     *PKIFile
	Location librpki.ValidationLocation
	Context  *ValidationContext

	Certificate *librpki.RPKICertificate
	ROA         *librpki.RoaCms
	Manifest    *librpki.ManifestCms
}

type exploreItem struct {
	file *PKIFile
	data *SeekFile
	ctx  *ValidationContext
	tal  *librpki.RPKI_TAL
}

// SimpleManager walks a repository tree top-down: from a trust anchor to
// the manifest of every valid CA certificate, then to the objects listed on
// the manifest.
type SimpleManager struct {
	FileSeeker   FileSeeker
	Certificates *ResourceCertificateValidator
	Objects      *SignedObjectValidator
	Result       *librpki.ValidationResult
	Log          log.FieldLogger

	ToExplore []*exploreItem
	Explored  map[string]bool

	Valid  []*Resource
	Errors []error
}

func NewSimpleManager(seeker FileSeeker, validator *ResourceCertificateValidator) *SimpleManager {
	return &SimpleManager{
		FileSeeker:   seeker,
		Certificates: validator,
		Objects:      &SignedObjectValidator{Certificates: validator},
		Result:       librpki.NewValidationResult(""),
		Log:          log.StandardLogger(),
		Explored:     make(map[string]bool),
	}
}

// AddTAL queues the trust anchor certificate a TAL points at. The local
// mirror is expected to hold it under its rsync URI.
func (sm *SimpleManager) AddTAL(tal *librpki.RPKI_TAL) error {
	uri := tal.RsyncURI()
	if uri == "" {
		return errors.Errorf("TAL %v has no rsync URI", tal.URI)
	}
	sm.ToExplore = append(sm.ToExplore, &exploreItem{
		file: &PKIFile{Path: uri, Type: TYPE_CER, Trust: true},
		tal:  tal,
	})
	return nil
}

// AddRoot queues a self-signed certificate trusted as is.
func (sm *SimpleManager) AddRoot(path string) {
	sm.ToExplore = append(sm.ToExplore, &exploreItem{
		file: &PKIFile{Path: path, Type: TYPE_CER, Trust: true},
	})
}

func (sm *SimpleManager) HasMore() bool {
	return len(sm.ToExplore) > 0
}

func (sm *SimpleManager) next() *exploreItem {
	item := sm.ToExplore[0]
	sm.ToExplore = sm.ToExplore[1:]
	return item
}

func (sm *SimpleManager) reportFailures(file *PKIFile, location librpki.ValidationLocation, cert *librpki.RPKICertificate) {
	if verr := NewValidationError(sm.Result, location, cert); verr != nil {
		verr.AddFileErrorInfo(file)
		sm.Errors = append(sm.Errors, verr)
		if sm.Log != nil {
			sm.Log.Warnf("Resource %v is invalid: %v", file.ComputePath(), verr)
		}
	}
}

// Explore validates everything reachable from the queued trust anchors and
// returns the number of objects processed.
func (sm *SimpleManager) Explore() int {
	var count int
	for sm.HasMore() {
		item := sm.next()
		path := item.file.ComputePath()
		if sm.Explored[path] {
			if sm.Log != nil {
				sm.Log.Debugf("Skipping %v, already been explored", path)
			}
			continue
		}
		sm.Explored[path] = true
		count++

		location := librpki.ValidationLocation(path)
		if item.data == nil {
			data, err := sm.FileSeeker.GetFile(item.file)
			if err != nil && sm.Log != nil {
				sm.Log.Errorf("Error exploring file: %v", err)
			}
			if !sm.readResult(location, err == nil, path) {
				sm.reportFailures(item.file, location, nil)
				continue
			}
			item.data = data
		}

		switch item.file.Type {
		case TYPE_CER:
			sm.exploreCertificate(item, location)
		case TYPE_ROA:
			sm.exploreROA(item, location)
		}
	}
	return count
}

func (sm *SimpleManager) readResult(location librpki.ValidationLocation, ok bool, path string) bool {
	defer sm.Result.PushLocation(location)()
	return sm.Result.RejectIfFalse(ok, librpki.VALIDATOR_READ_FILE, path)
}

func (sm *SimpleManager) exploreCertificate(item *exploreItem, location librpki.ValidationLocation) {
	parser := &librpki.CertificateParser{Kind: librpki.CERTIFICATE_RESOURCE}
	parser.Parse(sm.Result, location, item.data.Data)
	cert, err := parser.Certificate()
	if err != nil {
		sm.reportFailures(item.file, location, nil)
		return
	}

	ctx := item.ctx
	if item.file.Trust {
		if item.tal != nil && !item.tal.ValidateCertificate(sm.Result, location, cert) {
			sm.reportFailures(item.file, location, cert)
			return
		}
		ctx = NewValidationContext(location, cert, cert.Resources.Resources())
	}
	if !sm.Certificates.Validate(sm.Result, location, ctx, cert) || !sm.manifestPresent(location, cert) {
		sm.reportFailures(item.file, location, cert)
		return
	}

	resource := &Resource{Type: TYPE_CER, File: item.file, Location: location, Context: ctx, Certificate: cert}
	sm.Valid = append(sm.Valid, resource)
	if !cert.IsCA() {
		return
	}
	childCtx := ctx
	if !item.file.Trust {
		childCtx = ctx.CreateChildContext(location, cert)
	}
	sm.exploreManifest(childCtx)
}

// A CA must publish an rsync manifest URI in its SIA.
func (sm *SimpleManager) manifestPresent(location librpki.ValidationLocation, cert *librpki.RPKICertificate) bool {
	if !cert.IsCA() {
		return true
	}
	defer sm.Result.PushLocation(location)()
	return sm.Result.RejectIfFalse(cert.ManifestURI() != "", librpki.CERT_SIA_IS_PRESENT, librpki.SIAManifest.String())
}

// exploreManifest validates the manifest of the CA of ctx and queues the
// objects it lists, with their contents checked against the manifest.
func (sm *SimpleManager) exploreManifest(ctx *ValidationContext) {
	uri := ctx.ManifestURI()
	repo := ctx.RepositoryURI()
	location := librpki.ValidationLocation(uri)
	file := &PKIFile{Path: uri, Repo: repo, Type: TYPE_MFT}
	if sm.Explored[uri] {
		return
	}
	sm.Explored[uri] = true

	data, err := sm.FileSeeker.GetFile(file)
	if !sm.readResult(location, err == nil, uri) {
		sm.reportFailures(file, location, nil)
		return
	}

	parser := &librpki.ManifestCmsParser{}
	parser.Parse(sm.Result, location, data.Data)
	mft, err := parser.ManifestCms()
	if err != nil || !sm.Objects.ValidateManifest(sm.Result, location, ctx, mft) {
		sm.reportFailures(file, location, nil)
		return
	}
	sm.Valid = append(sm.Valid, &Resource{Type: TYPE_MFT, File: file, Location: location, Context: ctx, Manifest: mft})

	for _, name := range mft.FileNames() {
		entry := &PKIFile{Parent: file, Repo: repo, Path: name, Type: DetermineType(name)}
		path := entry.ComputePath()
		entryLocation := librpki.ValidationLocation(path)
		seek, err := sm.FileSeeker.GetFile(entry)
		if !sm.checkManifestEntry(entry, err == nil, entryLocation) {
			sm.reportFailures(entry, entryLocation, nil)
			continue
		}
		if !sm.checkEntryHash(mft, name, seek, entryLocation) {
			sm.reportFailures(entry, entryLocation, nil)
			continue
		}
		if entry.Type == TYPE_CER || entry.Type == TYPE_ROA {
			sm.ToExplore = append(sm.ToExplore, &exploreItem{file: entry, data: seek, ctx: ctx})
		}
	}
}

func (sm *SimpleManager) checkManifestEntry(entry *PKIFile, found bool, location librpki.ValidationLocation) bool {
	defer sm.Result.PushLocation(location)()
	sm.Result.WarnIfFalse(entry.Type != TYPE_UNKNOWN, librpki.KNOWN_OBJECT_TYPE, entry.Path)
	return sm.Result.RejectIfFalse(found, librpki.VALIDATOR_MANIFEST_ENTRY_FOUND, entry.Path)
}

func (sm *SimpleManager) checkEntryHash(mft *librpki.ManifestCms, name string, seek *SeekFile, location librpki.ValidationLocation) bool {
	defer sm.Result.PushLocation(location)()
	hash, _ := mft.Hash(name)
	matches := seek != nil && bytes.Equal(hash, seek.Sha256)
	return sm.Result.RejectIfFalse(matches, librpki.VALIDATOR_MANIFEST_ENTRY_HASH_MATCHES, name)
}

func (sm *SimpleManager) exploreROA(item *exploreItem, location librpki.ValidationLocation) {
	parser := &librpki.RoaCmsParser{}
	parser.Parse(sm.Result, location, item.data.Data)
	roa, err := parser.RoaCms()
	if err != nil {
		sm.reportFailures(item.file, location, nil)
		return
	}
	if !sm.Objects.Validate(sm.Result, location, item.ctx, roa.SignedObject) {
		sm.reportFailures(item.file, location, roa.Certificate)
		return
	}
	sm.Valid = append(sm.Valid, &Resource{Type: TYPE_ROA, File: item.file, Location: location, Context: item.ctx, ROA: roa})
}

// ROAs returns the ROAs that passed validation.
func (sm *SimpleManager) ROAs() []*Resource {
	roas := make([]*Resource, 0)
	for _, res := range sm.Valid {
		if res.Type == TYPE_ROA {
			roas = append(roas, res)
		}
	}
	return roas
}
