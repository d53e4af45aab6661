package pki

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	TYPE_UNKNOWN = iota
	TYPE_CER
	TYPE_MFT
	TYPE_ROA
	TYPE_CRL
	TYPE_TAL
)

var (
	TypeToName = map[int]string{
		TYPE_UNKNOWN: "unknown",
		TYPE_CER:     "certificate",
		TYPE_MFT:     "manifest",
		TYPE_ROA:     "roa",
		TYPE_CRL:     "crl",
		TYPE_TAL:     "tal",
	}
)

// PKIFile is a repository object to be fetched, identified by its rsync URI.
type PKIFile struct {
	Parent *PKIFile
	Repo   string
	Path   string
	Type   int
	Trust  bool
}

// ComputePath returns the URI of the file. Manifest entries are relative to
// the repository of the manifest.
func (f *PKIFile) ComputePath() string {
	pathRep := f.Path
	if f.Parent != nil && f.Parent.Type == TYPE_MFT && !strings.Contains(pathRep, "://") {
		if strings.HasSuffix(f.Parent.Repo, "/") {
			pathRep = f.Parent.Repo + pathRep
		} else {
			pathRep = f.Parent.Repo + "/" + pathRep
		}
	}
	return pathRep
}

func (f *PKIFile) String() string {
	return fmt.Sprintf("%v (%v)", f.ComputePath(), TypeToName[f.Type])
}

func DetermineType(path string) int {
	switch {
	case strings.HasSuffix(path, ".cer"):
		return TYPE_CER
	case strings.HasSuffix(path, ".mft"):
		return TYPE_MFT
	case strings.HasSuffix(path, ".crl"):
		return TYPE_CRL
	case strings.HasSuffix(path, ".roa"):
		return TYPE_ROA
	case strings.HasSuffix(path, ".tal"):
		return TYPE_TAL
	}
	return TYPE_UNKNOWN
}

type SeekFile struct {
	File   string
	Data   []byte
	Sha256 []byte
}

type FileSeeker interface {
	GetFile(*PKIFile) (*SeekFile, error)
}

// LocalFetch reads repository objects from local directories mirroring rsync
// modules, for instance the output of rsync runs.
type LocalFetch struct {
	MapDirectory map[string]string
	Log          log.FieldLogger
}

func NewLocalFetch(mapDirectory map[string]string) *LocalFetch {
	return &LocalFetch{
		MapDirectory: mapDirectory,
		Log:          log.StandardLogger(),
	}
}

// GetLocalPath rewrites the longest matching URI prefix of pathRep with its
// directory.
func GetLocalPath(pathRep string, replace map[string]string) string {
	sep := fmt.Sprintf("%c", os.PathSeparator)

	var best string
	for repKey := range replace {
		if strings.HasPrefix(pathRep, repKey) && len(repKey) > len(best) {
			best = repKey
		}
	}
	if best == "" {
		return pathRep
	}
	repVal := replace[best]
	if !strings.HasSuffix(repVal, sep) {
		repVal += sep
	}
	return repVal + strings.TrimPrefix(strings.TrimPrefix(pathRep, best), "/")
}

// ParseMapDirectory parses a comma separated list of uri=directory pairs.
func ParseMapDirectory(mapdir string) map[string]string {
	mapDirectoryFinal := make(map[string]string)
	for _, pair := range strings.Split(mapdir, ",") {
		split := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(split) == 2 && split[0] != "" {
			mapDirectoryFinal[split[0]] = split[1]
		}
	}
	return mapDirectoryFinal
}

func FetchFile(path string) ([]byte, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	hash := sha256.Sum256(data)
	return data, hash[:], nil
}

func (s *LocalFetch) LocalPath(uri string) (string, error) {
	if !strings.HasPrefix(uri, "rsync://") {
		return "", errors.Errorf("%v is not an rsync URI", uri)
	}
	path := GetLocalPath(uri, s.MapDirectory)
	if path == uri {
		return "", errors.Errorf("no directory mapped for %v", uri)
	}
	return path, nil
}

func (s *LocalFetch) GetFile(file *PKIFile) (*SeekFile, error) {
	uri := file.ComputePath()
	newPath, err := s.LocalPath(uri)
	if file.Trust && err != nil {
		// trust anchors may be given as plain paths
		newPath, err = uri, nil
	}
	if err != nil {
		return nil, err
	}
	if s.Log != nil {
		s.Log.Debugf("Fetching %v->%v", uri, newPath)
	}
	data, hash, err := FetchFile(newPath)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", uri)
	}
	return &SeekFile{
		File:   uri,
		Data:   data,
		Sha256: hash,
	}, nil
}
