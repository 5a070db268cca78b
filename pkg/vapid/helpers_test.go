package vapid_test

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

type userAgentKeys struct {
	p256dh string
	auth   string
}

func newUserAgentKeys(t *testing.T) userAgentKeys {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return userAgentKeys{
		p256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		auth:   base64.RawURLEncoding.EncodeToString(auth),
	}
}
