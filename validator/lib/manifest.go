package librpki

import (
	"bytes"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// https://tools.ietf.org/html/rfc6486

var (
	ManifestOID = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 26}

	manifestProfile = SignedObjectProfile{
		Name:            "manifest",
		ContentType:     ManifestOID,
		CertificateKind: CERTIFICATE_RESOURCE,
	}
)

type File struct {
	Name string `asn1:"ia5"`
	Hash asn1.BitString
}

func (f File) GetHash() []byte {
	return f.Hash.Bytes
}

type ManifestContent struct {
	Version        int `asn1:"optional,explicit,default:0,tag:0"`
	ManifestNumber *big.Int
	ThisUpdate     time.Time `asn1:"generalized"`
	NextUpdate     time.Time `asn1:"generalized"`
	FileHashAlg    asn1.ObjectIdentifier
	FileList       []File
}

func HashContents(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// EncodeManifestContent encodes a manifest with its files sorted by name.
func EncodeManifestContent(number *big.Int, thisUpdate, nextUpdate time.Time, hashes map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	content := ManifestContent{
		ManifestNumber: number,
		ThisUpdate:     thisUpdate.UTC(),
		NextUpdate:     nextUpdate.UTC(),
		FileHashAlg:    OidDigestSHA256,
		FileList:       make([]File, 0, len(names)),
	}
	for _, name := range names {
		hash := hashes[name]
		content.FileList = append(content.FileList, File{
			Name: name,
			Hash: asn1.BitString{Bytes: hash, BitLength: len(hash) * 8},
		})
	}
	return asn1.Marshal(content)
}

type manifestDecoder struct {
	content ManifestContent
	hashes  map[string][]byte
}

func (d *manifestDecoder) decode(result *ValidationResult, data []byte) ([]byte, error) {
	rest, err := asn1.Unmarshal(data, &d.content)
	if !result.RejectIfFalse(err == nil, MANIFEST_CONTENT_STRUCTURE) {
		return rest, err
	}
	content := d.content
	result.RejectIfFalse(content.Version == 0, MANIFEST_CONTENT_STRUCTURE, fmt.Sprint(content.Version))
	result.RejectIfFalse(content.ManifestNumber != nil && content.ManifestNumber.Sign() >= 0 && content.ManifestNumber.BitLen() <= 160, MANIFEST_CONTENT_STRUCTURE, fmt.Sprint(content.ManifestNumber))
	result.RejectIfFalse(content.NextUpdate.After(content.ThisUpdate), MANIFEST_TIME_FORMAT)
	result.RejectIfFalse(content.FileHashAlg.Equal(OidDigestSHA256), MANIFEST_FILE_HASH_ALGORITHM, content.FileHashAlg.String())

	d.hashes = make(map[string][]byte, len(content.FileList))
	valid := true
	for _, file := range content.FileList {
		if _, duplicate := d.hashes[file.Name]; duplicate || file.Name == "" || file.Hash.BitLength%8 != 0 {
			valid = false
			break
		}
		d.hashes[file.Name] = file.GetHash()
	}
	result.RejectIfFalse(valid, MANIFEST_DECODE_FILELIST)
	return rest, nil
}

// ManifestCms is a validated manifest.
type ManifestCms struct {
	*SignedObject
	Number            *big.Int
	ThisUpdate        time.Time
	NextUpdate        time.Time
	FileHashAlgorithm asn1.ObjectIdentifier

	hashes map[string][]byte
}

func (mft *ManifestCms) Size() int {
	return len(mft.hashes)
}

// FileNames returns the listed file names, sorted.
func (mft *ManifestCms) FileNames() []string {
	names := make([]string, 0, len(mft.hashes))
	for name := range mft.hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (mft *ManifestCms) ContainsFile(name string) bool {
	_, ok := mft.hashes[name]
	return ok
}

func (mft *ManifestCms) Hash(name string) ([]byte, bool) {
	hash, ok := mft.hashes[name]
	return hash, ok
}

// VerifyFileContents returns true when name is listed with the hash of data.
func (mft *ManifestCms) VerifyFileContents(name string, data []byte) bool {
	hash, ok := mft.hashes[name]
	return ok && bytes.Equal(hash, HashContents(data))
}

// MatchesFiles returns true when files holds exactly the listed files with
// matching contents.
func (mft *ManifestCms) MatchesFiles(files map[string][]byte) bool {
	if len(files) != len(mft.hashes) {
		return false
	}
	for name, data := range files {
		if !mft.VerifyFileContents(name, data) {
			return false
		}
	}
	return true
}

func (mft *ManifestCms) IsPastValidityTime(now time.Time) bool {
	return now.After(mft.NextUpdate)
}

func (mft *ManifestCms) CRLURI() string {
	return mft.Certificate.CRLURI()
}

func (mft *ManifestCms) ParentCertificateURI() string {
	return mft.Certificate.ParentCertificateURI()
}

type ManifestCmsParser struct {
	parser  SignedObjectParser
	decoder manifestDecoder
}

func (p *ManifestCmsParser) Parse(result *ValidationResult, location ValidationLocation, data []byte) {
	p.decoder = manifestDecoder{}
	p.parser = SignedObjectParser{Profile: manifestProfile, DecodeContent: p.decoder.decode}
	p.parser.Parse(result, location, data)

	defer result.PushLocation(location)()
	if result.HasFailureForCurrentLocation() {
		return
	}
	object := p.parser.object
	result.RejectIfFalse(object.ContentType.Equal(ManifestOID), MANIFEST_CONTENT_TYPE)
	result.RejectIfFalse(object.Certificate.Resources.IsFullyInherited(), MANIFEST_RESOURCE_INHERIT)
}

func (p *ManifestCmsParser) ManifestCms() (*ManifestCms, error) {
	object, err := p.parser.SignedObject()
	if err != nil {
		return nil, err
	}
	content := p.decoder.content
	return &ManifestCms{
		SignedObject:      object,
		Number:            content.ManifestNumber,
		ThisUpdate:        content.ThisUpdate.UTC(),
		NextUpdate:        content.NextUpdate.UTC(),
		FileHashAlgorithm: content.FileHashAlg,
		hashes:            p.decoder.hashes,
	}, nil
}

func ParseManifestCms(location ValidationLocation, data []byte) (*ManifestCms, *ValidationResult, error) {
	result := NewValidationResult(location)
	parser := &ManifestCmsParser{}
	parser.Parse(result, location, data)
	mft, err := parser.ManifestCms()
	return mft, result, err
}

type ManifestCmsBuilder struct {
	SignedObjectBuilder

	Number     *big.Int
	ThisUpdate time.Time
	NextUpdate time.Time
	// File names to SHA-256 hashes.
	Files map[string][]byte
}

// AddFile lists a file with the hash of its contents.
func (b *ManifestCmsBuilder) AddFile(name string, data []byte) *ManifestCmsBuilder {
	if b.Files == nil {
		b.Files = make(map[string][]byte)
	}
	b.Files[name] = HashContents(data)
	return b
}

func (b *ManifestCmsBuilder) Build() (*ManifestCms, error) {
	if b.Number == nil {
		return nil, errors.New("no manifest number")
	}
	content, err := EncodeManifestContent(b.Number, b.ThisUpdate, b.NextUpdate, b.Files)
	if err != nil {
		return nil, errors.Wrap(err, "encoding manifest content")
	}
	encoded, err := b.sign(manifestProfile.Name, false, ManifestOID, content)
	if err != nil {
		return nil, err
	}
	result := NewValidationResult(GeneratedLocation)
	parser := &ManifestCmsParser{}
	parser.Parse(result, GeneratedLocation, encoded)
	if err := selfCheck(manifestProfile.Name, result); err != nil {
		return nil, err
	}
	return parser.ManifestCms()
}
