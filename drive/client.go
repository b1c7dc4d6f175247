package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/driveops/gdrive-go/creds"
)

// API endpoint defaults.
const (
	// DefaultBaseURL is the metadata and listing endpoint root.
	DefaultBaseURL = "https://www.googleapis.com/drive/v2"

	// DefaultUploadURL is the content upload endpoint root.
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v2"

	// DefaultRetryInterval is the fixed delay between retry attempts.
	DefaultRetryInterval = 5 * time.Second

	userAgent = "gdrive-go/0.1"
)

// Client is a client for the remote file store. It is safe for
// concurrent use: token state and the last-error field are guarded
// internally, and concurrent token refreshes collapse into one.
type Client struct {
	baseURL    string
	uploadURL  string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger

	retryCount    int
	retryInterval time.Duration

	// sleepFunc waits between retry attempts. Tests override it to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	showTrashed bool
	lastErr     string
}

// options collects construction-time settings.
type options struct {
	httpClient    *http.Client
	logger        *slog.Logger
	retryCount    int
	retryInterval time.Duration
	showTrashed   bool
	subject       string
	scope         string
	baseURL       string
	uploadURL     string
	tokenURL      string
	margin        time.Duration
	tokenSource   TokenSource
}

// Option configures a Client at construction.
type Option func(*options)

// WithHTTPClient sets the underlying HTTP transport. Connect and read
// timeouts come from this client; there is no other timeout primitive.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.httpClient = h }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRetry configures the retry budget for data-plane requests:
// count attempts beyond the first, with a fixed interval between
// attempts. No backoff, no jitter. The default is zero retries.
func WithRetry(count int, interval time.Duration) Option {
	return func(o *options) {
		o.retryCount = count
		o.retryInterval = interval
	}
}

// WithShowTrashed includes trashed items in listing results.
func WithShowTrashed(show bool) Option {
	return func(o *options) { o.showTrashed = show }
}

// WithImpersonation sets the end-user identity the service account
// acts on behalf of.
func WithImpersonation(subject string) Option {
	return func(o *options) { o.subject = subject }
}

// WithScope overrides DefaultScope in the signed assertion.
func WithScope(scope string) Option {
	return func(o *options) { o.scope = scope }
}

// WithBaseURL overrides the metadata endpoint root.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithUploadURL overrides the content upload endpoint root.
func WithUploadURL(u string) Option {
	return func(o *options) { o.uploadURL = u }
}

// WithTokenURL overrides the token exchange endpoint.
func WithTokenURL(u string) Option {
	return func(o *options) { o.tokenURL = u }
}

// WithSafetyMargin sets how much remaining token life is required
// before a request triggers a refresh. Default 300s.
func WithSafetyMargin(d time.Duration) Option {
	return func(o *options) { o.margin = d }
}

// WithTokenSource runs the client off an externally managed
// oauth2.TokenSource instead of the signed-assertion flow. Credentials
// may be nil when this option is given.
func WithTokenSource(src oauth2.TokenSource) Option {
	return func(o *options) {
		o.tokenSource = &oauthBridge{src: src}
	}
}

// New constructs a Client from service-account credentials.
// cs may be nil only when WithTokenSource is given.
func New(cs *creds.Credentials, opts ...Option) (*Client, error) {
	o := &options{
		httpClient:    http.DefaultClient,
		logger:        slog.Default(),
		retryInterval: DefaultRetryInterval,
		scope:         DefaultScope,
		baseURL:       DefaultBaseURL,
		uploadURL:     DefaultUploadURL,
		tokenURL:      DefaultTokenURL,
		margin:        DefaultSafetyMargin,
	}

	for _, opt := range opts {
		opt(o)
	}

	token := o.tokenSource
	switch {
	case token == nil && cs == nil:
		return nil, fmt.Errorf("drive: credentials required: %w", ErrInvalidArgument)
	case token == nil:
		token = newAssertionSource(cs, o)
	default:
		if bridge, ok := token.(*oauthBridge); ok {
			bridge.logger = o.logger
		}
	}

	return &Client{
		baseURL:       o.baseURL,
		uploadURL:     o.uploadURL,
		httpClient:    o.httpClient,
		token:         token,
		logger:        o.logger,
		retryCount:    o.retryCount,
		retryInterval: o.retryInterval,
		showTrashed:   o.showTrashed,
		sleepFunc:     timeSleep,
	}, nil
}

// LastError returns the message of the most recent surfaced failure,
// or the empty string when no operation has failed yet.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// SetShowTrashed toggles inclusion of trashed items in results.
func (c *Client) SetShowTrashed(show bool) {
	c.mu.Lock()
	c.showTrashed = show
	c.mu.Unlock()
}

// ForceTokenExpiry drops the cached access token so the next request
// performs a fresh exchange. No-op for clients built WithTokenSource.
func (c *Client) ForceTokenExpiry() {
	if e, ok := c.token.(interface{ ForceExpiry() }); ok {
		e.ForceExpiry()
	}
}

func (c *Client) setLastError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}

func (c *Client) trashedVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.showTrashed
}

// doRetry executes one logical request. build is called per attempt so
// a retry re-reads its body source; the bearer token is re-fetched per
// attempt too. Non-2xx responses and transport errors are retried up
// to the configured count with a fixed sleep in between; the last
// failure is classified, recorded as the client's last error, and
// returned. Token-source failures and build failures abort
// immediately — retrying cannot fix either.
func (c *Client) doRetry(ctx context.Context, method, url string, build func() (*http.Request, error)) (*http.Response, error) {
	var attempt int
	for {
		resp, err := c.doOnce(ctx, build)
		if err != nil {
			if errors.Is(err, ErrAuthentication) || errors.Is(err, errBuild) {
				c.setLastError(err.Error())
				return nil, err
			}

			if ctx.Err() != nil {
				return nil, fmt.Errorf("drive: request canceled: %w", ctx.Err())
			}

			if attempt < c.retryCount {
				c.logRetry(method, url, attempt, 0, err)

				if sleepErr := c.sleepFunc(ctx, c.retryInterval); sleepErr != nil {
					return nil, fmt.Errorf("drive: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			wrapped := fmt.Errorf("drive: %s %s failed after %d attempts: %w", method, url, attempt+1, err)
			c.setLastError(wrapped.Error())

			return nil, wrapped
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if attempt < c.retryCount {
			c.logRetry(method, url, attempt, resp.StatusCode, nil)

			if sleepErr := c.sleepFunc(ctx, c.retryInterval); sleepErr != nil {
				return nil, fmt.Errorf("drive: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		c.setLastError(statusErr.Error())

		return nil, statusErr
	}
}

// errBuild marks request-construction failures (including local file
// opens for uploads) so doRetry surfaces them without retrying.
var errBuild = errors.New("drive: building request")

// doOnce executes a single attempt: build the request, attach auth and
// identification headers, send.
func (c *Client) doOnce(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	req, err := build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBuild, err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	return c.httpClient.Do(req)
}

func (c *Client) logRetry(method, url string, attempt, status int, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("attempt", attempt+1),
		slog.Duration("interval", c.retryInterval),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	} else {
		attrs = append(attrs, slog.Int("status", status))
	}

	c.logger.Warn("retrying request", attrs...)
}

// doGet issues a bodyless GET through the retry envelope.
func (c *Client) doGet(ctx context.Context, url string) (*http.Response, error) {
	return c.doRetry(ctx, http.MethodGet, url, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

// doJSON issues a request with a JSON-encoded body through the retry
// envelope. The body is marshaled once; each attempt re-reads it.
func (c *Client) doJSON(ctx context.Context, method, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("drive: marshaling request body: %w", err)
	}

	return c.doRetry(ctx, method, url, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/json")

		return req, nil
	})
}

// decodeItem decodes a single-item response body and closes it.
func (c *Client) decodeItem(resp *http.Response) (*Item, error) {
	defer resp.Body.Close()

	var raw itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("drive: decoding item response: %w", err)
	}

	item := raw.toItem(c.logger)

	return &item, nil
}

// timeSleep waits for the given duration or until the context is
// canceled. It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
