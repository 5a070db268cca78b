package vapid_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/vapid"
)

func TestParseAuthorization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		header    string
		wantToken string
		wantKey   string
		wantErr   bool
	}{
		{name: "canonical", header: "vapid t=aaa.bbb.ccc, k=BKey", wantToken: "aaa.bbb.ccc", wantKey: "BKey"},
		{name: "no space after comma", header: "vapid t=aaa.bbb.ccc,k=BKey", wantToken: "aaa.bbb.ccc", wantKey: "BKey"},
		{name: "scheme case", header: "VAPID k=BKey, t=aaa.bbb.ccc", wantToken: "aaa.bbb.ccc", wantKey: "BKey"},
		{name: "bearer scheme", header: "Bearer aaa.bbb.ccc", wantErr: true},
		{name: "missing key", header: "vapid t=aaa.bbb.ccc", wantErr: true},
		{name: "missing token", header: "vapid k=BKey", wantErr: true},
		{name: "garbage params", header: "vapid nonsense", wantErr: true},
		{name: "empty", header: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			token, key, err := vapid.ParseAuthorization(tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, vapid.ErrInvalidAuthorization)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	signer, keys := newSigner(t)
	other, err := vapid.GenerateKeys(subject)
	require.NoError(t, err)

	token, err := signer.Token("https://fcm.googleapis.com")
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		_, err := vapid.Verify(token.Value, other.PublicKey(), "")
		assert.ErrorIs(t, err, vapid.ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		t.Parallel()
		_, err := vapid.Verify(token.Value, keys.PublicKey(), "https://updates.push.services.mozilla.com")
		assert.ErrorIs(t, err, vapid.ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()
		past := func() time.Time { return time.Now().Add(-13 * time.Hour) }
		stale, _ := newSigner(t, vapid.WithClock(past))
		tok, err := stale.Token("https://fcm.googleapis.com")
		require.NoError(t, err)

		_, err = vapid.Verify(tok.Value, stale.PublicKey(), "")
		assert.ErrorIs(t, err, vapid.ErrInvalidToken)
	})

	t.Run("tampered signature", func(t *testing.T) {
		t.Parallel()
		bad := token.Value[:len(token.Value)-2] + "AA"
		if bad == token.Value {
			bad = token.Value[:len(token.Value)-2] + "BB"
		}
		_, err := vapid.Verify(bad, keys.PublicKey(), "")
		assert.ErrorIs(t, err, vapid.ErrInvalidToken)
	})

	t.Run("invalid public key", func(t *testing.T) {
		t.Parallel()
		_, err := vapid.Verify(token.Value, "Zm9v", "")
		assert.ErrorIs(t, err, vapid.ErrInvalidPublicKey)
	})
}

// webpush-go is an independent signer; its headers must pass Verify.
func TestVerifyWebpushGoHeader(t *testing.T) {
	t.Parallel()

	headers := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	priv, pub, err := webpushgo.GenerateVAPIDKeys()
	require.NoError(t, err)

	ua := newUserAgentKeys(t)
	resp, err := webpushgo.SendNotification([]byte("ping"), &webpushgo.Subscription{
		Endpoint: srv.URL + "/push/1",
		Keys:     webpushgo.Keys{P256dh: ua.p256dh, Auth: ua.auth},
	}, &webpushgo.Options{
		Subscriber:      "ops@example.com",
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		TTL:             60,
	})
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	token, key, err := vapid.ParseAuthorization(<-headers)
	require.NoError(t, err)
	assert.Equal(t, pub, key)

	audience, err := vapid.Audience(srv.URL)
	require.NoError(t, err)
	claims, err := vapid.Verify(token, key, audience)
	require.NoError(t, err)
	assert.Equal(t, audience, claims.Audience)
}
