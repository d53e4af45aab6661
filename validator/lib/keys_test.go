package librpki

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateKeys loads the 2048 bit RSA keys shared by the tests.
func CreateKeys(t *testing.T) []*rsa.PrivateKey {
	data, err := os.ReadFile("../testdata/keys.pem")
	require.NoError(t, err)
	keys := make([]*rsa.PrivateKey, 0)
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		require.NoError(t, err)
		keys = append(keys, key)
	}
	require.Len(t, keys, 5)
	return keys
}
