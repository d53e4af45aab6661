package librpki

import (
	"crypto/x509"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTAL(t *testing.T) {
	keys := CreateKeys(t)
	root := buildRoot(t, keys)
	spki := base64.StdEncoding.EncodeToString(root.Certificate.RawSubjectPublicKeyInfo)

	data := "# test trust anchor\r\n" +
		"https://example.net/ta/root.cer\r\n" +
		"rsync://example.net/ta/root.cer\r\n" +
		"\r\n" +
		spki[:64] + "\r\n" +
		spki[64:] + "\r\n"
	tal, err := DecodeTAL([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "https://example.net/ta/root.cer", tal.URI)
	assert.Equal(t, []string{"https://example.net/ta/root.cer", "rsync://example.net/ta/root.cer"}, tal.URIs)
	assert.Equal(t, "rsync://example.net/ta/root.cer", tal.RsyncURI())
	assert.Equal(t, x509.RSA, tal.Algorithm)
	assert.Equal(t, RSA, tal.OID)
	assert.True(t, tal.CheckCertificate(root.Certificate))

	result := NewValidationResult("root.cer")
	assert.True(t, tal.ValidateCertificate(result, "root.cer", root))

	other := rootBuilder(keys)
	other.PublicKey = &keys[2].PublicKey
	other.SigningKey = keys[2]
	otherRoot, err := other.Build()
	require.NoError(t, err)
	assert.False(t, tal.ValidateCertificate(result, "other.cer", otherRoot))
	assert.Equal(t, []string{TRUST_ANCHOR_PUBLIC_KEY_MATCH}, result.FailureKeys())
	assert.False(t, result.HasFailureForLocation("root.cer"))

	reparsed, err := DecodeTAL(tal.Encode())
	require.NoError(t, err)
	assert.Equal(t, tal.URIs, reparsed.URIs)
	assert.Equal(t, tal.RawPublicKey, reparsed.RawPublicKey)

	created := NewTAL(root, "rsync://example.net/ta/root.cer")
	assert.True(t, created.CheckCertificate(root.Certificate))
	assert.Equal(t, tal.RawPublicKey, created.RawPublicKey)
}

func TestDecodeTALErrors(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"no key":         "rsync://example.net/ta/root.cer\n\n",
		"no uri":         "\nMIIB\n",
		"ftp uri":        "ftp://example.net/ta/root.cer\n\nMIIB\n",
		"invalid base64": "rsync://example.net/ta/root.cer\n\n!!!\n",
		"not a key":      "rsync://example.net/ta/root.cer\n\nMAA=\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTAL([]byte(data))
			assert.Error(t, err)
		})
	}
}
