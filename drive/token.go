package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/driveops/gdrive-go/creds"
)

// Token exchange defaults.
const (
	// DefaultTokenURL is the token exchange endpoint.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	// DefaultScope grants full access to the file store.
	DefaultScope = "https://www.googleapis.com/auth/drive"

	// DefaultSafetyMargin is how much remaining token life is required
	// before a refresh is forced.
	DefaultSafetyMargin = 300 * time.Second

	// assertionLifetime is the exp-iat window of the signed assertion.
	assertionLifetime = time.Hour

	grantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// TokenSource provides bearer tokens for the HTTP envelope. Defined at
// the consumer per Go convention "accept interfaces, return structs".
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// tokenResponse mirrors the token endpoint's JSON response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// assertionSource implements TokenSource via the JWT-bearer flow:
// sign a claim set with the service account's key, exchange it for a
// short-lived access token, and cache the token until fewer than
// margin seconds of life remain.
//
// The (token, expiry) pair is guarded by mu so no partial update is
// observable; concurrent refreshes collapse into one exchange via
// singleflight.
type assertionSource struct {
	creds      *creds.Credentials
	subject    string // impersonation target, optional
	scope      string
	tokenURL   string
	margin     time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	// now is the clock. Tests override it to steer expiry.
	now func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newAssertionSource(c *creds.Credentials, o *options) *assertionSource {
	return &assertionSource{
		creds:      c,
		subject:    o.subject,
		scope:      o.scope,
		tokenURL:   o.tokenURL,
		margin:     o.margin,
		httpClient: o.httpClient,
		logger:     o.logger,
		now:        time.Now,
	}
}

// Token returns a cached token with at least margin of life remaining,
// refreshing first when there is none.
func (s *assertionSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}

	// Concurrent stale callers share a single exchange.
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		// Re-check under the flight: an earlier flight may have
		// refreshed while this caller waited.
		if tok, ok := s.cached(); ok {
			return tok, nil
		}

		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// ForceExpiry drops the cached token so the next Token call performs a
// fresh exchange. Used before long uploads that must not start with a
// token about to expire mid-transfer.
func (s *assertionSource) ForceExpiry() {
	s.mu.Lock()
	s.token = ""
	s.expiry = time.Time{}
	s.mu.Unlock()

	s.logger.Debug("token expiry forced")
}

// cached returns the current token if it still has at least margin of
// life remaining.
func (s *assertionSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" || s.now().Add(s.margin).After(s.expiry) {
		return "", false
	}

	return s.token, true
}

// refresh signs a fresh assertion, exchanges it at the token endpoint,
// and stores the resulting (token, expiry) pair. A non-2xx exchange is
// an authentication failure — fatal to the caller, never retried by
// the data-plane retry loop.
func (s *assertionSource) refresh(ctx context.Context) (string, error) {
	assertion, err := s.signAssertion()
	if err != nil {
		return "", fmt.Errorf("drive: signing assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {grantType},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("drive: creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("drive: token exchange request: %w: %w", err, ErrAuthentication)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
		s.logger.Error("token exchange rejected",
			slog.Int("status", resp.StatusCode),
		)

		return "", fmt.Errorf("drive: token exchange rejected (HTTP %d): %s: %w",
			resp.StatusCode, strings.TrimSpace(string(body)), ErrAuthentication)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("drive: decoding token response: %w: %w", err, ErrAuthentication)
	}

	if tr.AccessToken == "" {
		return "", fmt.Errorf("drive: token response carried no access_token: %w", ErrAuthentication)
	}

	expiry := s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)

	s.mu.Lock()
	s.token = tr.AccessToken
	s.expiry = expiry
	s.mu.Unlock()

	s.logger.Info("token refreshed",
		slog.Time("expiry", expiry),
	)

	return tr.AccessToken, nil
}

// signAssertion builds and signs the JWT claim set for the exchange:
// issuer is the service account, audience is the token endpoint, and
// the optional subject names the impersonation target. MapClaims is
// used because the endpoint requires aud as a singular string, which
// RegisteredClaims would marshal as an array.
func (s *assertionSource) signAssertion() (string, error) {
	now := s.now()

	claims := jwt.MapClaims{
		"iss":   s.creds.Email,
		"scope": s.scope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}

	if s.subject != "" {
		claims["sub"] = s.subject
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.creds.PrivateKey)
}

// oauthBridge adapts an oauth2.TokenSource to TokenSource, for callers
// that already hold tokens from another flow. The source does its own
// refreshing; ForceTokenExpiry is a no-op for clients built this way.
type oauthBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *oauthBridge) Token(_ context.Context) (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("drive: obtaining token: %w: %w", err, ErrAuthentication)
	}

	return t.AccessToken, nil
}
