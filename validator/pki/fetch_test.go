package pki

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMapDirectory(t *testing.T) {
	mapDir := ParseMapDirectory("rsync://rpki.ripe.net/repository/=./ripe/, rsync://example.net/=/tmp/example,invalid")
	assert.Equal(t, map[string]string{
		"rsync://rpki.ripe.net/repository/": "./ripe/",
		"rsync://example.net/":              "/tmp/example",
	}, mapDir)
}

func TestGetLocalPath(t *testing.T) {
	replace := map[string]string{
		"rsync://example.net/":      "/mirror",
		"rsync://example.net/repo/": "/repo/",
	}
	assert.Equal(t, "/repo/a.roa", GetLocalPath("rsync://example.net/repo/a.roa", replace))
	assert.Equal(t, "/mirror/ta/root.cer", GetLocalPath("rsync://example.net/ta/root.cer", replace))
	assert.Equal(t, "rsync://other.net/a.roa", GetLocalPath("rsync://other.net/a.roa", replace))
}

func TestDetermineType(t *testing.T) {
	for path, expected := range map[string]int{
		"a.cer":   TYPE_CER,
		"a.mft":   TYPE_MFT,
		"a.crl":   TYPE_CRL,
		"a.roa":   TYPE_ROA,
		"a.tal":   TYPE_TAL,
		"a.gbr":   TYPE_UNKNOWN,
		".cer.gz": TYPE_UNKNOWN,
	} {
		assert.Equal(t, expected, DetermineType(path), path)
	}
}

func TestComputePath(t *testing.T) {
	mft := &PKIFile{Repo: "rsync://example.net/repo", Path: "rsync://example.net/repo/root.mft", Type: TYPE_MFT}
	assert.Equal(t, "rsync://example.net/repo/root.mft", mft.ComputePath())
	entry := &PKIFile{Parent: mft, Path: "a.roa", Type: TYPE_ROA}
	assert.Equal(t, "rsync://example.net/repo/a.roa", entry.ComputePath())
	assert.Equal(t, "rsync://example.net/repo/a.roa (roa)", entry.String())
}

func TestLocalFetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "repo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "repo", "a.roa"), []byte("roa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.cer"), []byte("cer"), 0o644))

	fetch := NewLocalFetch(map[string]string{"rsync://example.net/": dir})
	file, err := fetch.GetFile(&PKIFile{Path: "rsync://example.net/repo/a.roa", Type: TYPE_ROA})
	require.NoError(t, err)
	assert.Equal(t, []byte("roa"), file.Data)
	assert.Equal(t, "rsync://example.net/repo/a.roa", file.File)
	assert.Len(t, file.Sha256, 32)

	_, err = fetch.GetFile(&PKIFile{Path: "rsync://example.net/repo/b.roa", Type: TYPE_ROA})
	assert.Error(t, err)
	_, err = fetch.GetFile(&PKIFile{Path: "rsync://other.net/repo/a.roa", Type: TYPE_ROA})
	assert.Error(t, err)
	_, err = fetch.GetFile(&PKIFile{Path: filepath.Join(dir, "root.cer"), Type: TYPE_ROA})
	assert.Error(t, err)

	file, err = fetch.GetFile(&PKIFile{Path: filepath.Join(dir, "root.cer"), Type: TYPE_CER, Trust: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("cer"), file.Data)
}
