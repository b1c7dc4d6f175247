package drive

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveops/gdrive-go/creds"
)

// tokenEndpoint is a fake exchange endpoint that counts exchanges and
// records the last submitted form.
type tokenEndpoint struct {
	exchanges atomic.Int32

	mu            sync.Mutex
	lastGrantType string
	lastAssertion string

	status    int   // 0 means 200
	expiresIn int64 // 0 means 3600
}

func (te *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := te.exchanges.Add(1)

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	te.mu.Lock()
	te.lastGrantType = r.PostFormValue("grant_type")
	te.lastAssertion = r.PostFormValue("assertion")
	te.mu.Unlock()

	if te.status != 0 {
		w.WriteHeader(te.status)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)

		return
	}

	expiresIn := te.expiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%d}`, n, expiresIn)
}

func testCredentials(t *testing.T) (*creds.Credentials, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return &creds.Credentials{
		Email:      "robot@example.iam.gserviceaccount.com",
		PrivateKey: key,
	}, key
}

func newTestAssertionSource(t *testing.T, tokenURL string) (*assertionSource, *rsa.PrivateKey) {
	t.Helper()

	cs, key := testCredentials(t)

	src := newAssertionSource(cs, &options{
		scope:      DefaultScope,
		tokenURL:   tokenURL,
		margin:     DefaultSafetyMargin,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	})

	return src, key
}

func TestToken_RefreshOncePerBurst(t *testing.T) {
	te := &tokenEndpoint{}
	srv := httptest.NewServer(te)
	defer srv.Close()

	src, _ := newTestAssertionSource(t, srv.URL)

	for i := 0; i < 5; i++ {
		tok, err := src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", tok)
	}

	assert.Equal(t, int32(1), te.exchanges.Load())
}

func TestToken_ConcurrentBurstSingleExchange(t *testing.T) {
	te := &tokenEndpoint{}
	srv := httptest.NewServer(te)
	defer srv.Close()

	src, _ := newTestAssertionSource(t, srv.URL)

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := src.Token(context.Background())
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), te.exchanges.Load())
}

func TestToken_RefreshAfterForceExpiry(t *testing.T) {
	te := &tokenEndpoint{}
	srv := httptest.NewServer(te)
	defer srv.Close()

	src, _ := newTestAssertionSource(t, srv.URL)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	src.ForceExpiry()

	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, int32(2), te.exchanges.Load())
}

func TestToken_RefreshInsideSafetyMargin(t *testing.T) {
	te := &tokenEndpoint{}
	srv := httptest.NewServer(te)
	defer srv.Close()

	src, _ := newTestAssertionSource(t, srv.URL)

	base := time.Now()
	src.now = func() time.Time { return base }

	_, err := src.Token(context.Background())
	require.NoError(t, err)

	// Plenty of life left: no refresh.
	src.now = func() time.Time { return base.Add(100 * time.Second) }
	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), te.exchanges.Load())

	// 299s remaining, inside the 300s margin: refresh.
	src.now = func() time.Time { return base.Add(3301 * time.Second) }
	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), te.exchanges.Load())
}

func TestToken_ExchangeRejected(t *testing.T) {
	te := &tokenEndpoint{status: http.StatusForbidden}
	srv := httptest.NewServer(te)
	defer srv.Close()

	src, _ := newTestAssertionSource(t, srv.URL)

	_, err := src.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Contains(t, err.Error(), "403")
}

func TestToken_AssertionClaims(t *testing.T) {
	te := &tokenEndpoint{}
	srv := httptest.NewServer(te)
	defer srv.Close()

	src, key := newTestAssertionSource(t, srv.URL)
	src.subject = "user@example.com"

	base := time.Now().Truncate(time.Second)
	src.now = func() time.Time { return base }

	_, err := src.Token(context.Background())
	require.NoError(t, err)

	te.mu.Lock()
	grantType := te.lastGrantType
	assertion := te.lastAssertion
	te.mu.Unlock()

	assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", grantType)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(assertion, claims, func(tok *jwt.Token) (any, error) {
		assert.Equal(t, jwt.SigningMethodRS256, tok.Method)
		return &key.PublicKey, nil
	})
	require.NoError(t, err)

	assert.Equal(t, "robot@example.iam.gserviceaccount.com", claims["iss"])
	assert.Equal(t, srv.URL, claims["aud"])
	assert.Equal(t, DefaultScope, claims["scope"])
	assert.Equal(t, "user@example.com", claims["sub"])
	assert.Equal(t, float64(base.Unix()), claims["iat"])
	assert.Equal(t, float64(base.Add(time.Hour).Unix()), claims["exp"])
}

func TestToken_NoAccessTokenInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"expires_in":3600}`)
	}))
	defer srv.Close()

	src, _ := newTestAssertionSource(t, srv.URL)

	_, err := src.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
}
