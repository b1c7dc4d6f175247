// Package config loads client configuration from a TOML file and
// bridges it to drive client options. A config file is optional —
// the defaults produce a working client given only a credential file.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/driveops/gdrive-go/creds"
	"github.com/driveops/gdrive-go/drive"
)

// Default values. Layer 0 of the defaults -> config file -> code
// override chain.
const (
	defaultRetryInterval = "5s"
	defaultSafetyMargin  = "5m"
)

// Config is the on-disk client configuration.
type Config struct {
	// CredentialsFile points at the service-account JSON document.
	CredentialsFile string `toml:"credentials_file"`

	// Impersonate is the end-user identity the service account acts
	// on behalf of. Empty means no impersonation.
	Impersonate string `toml:"impersonate"`

	// Scope overrides the default access scope of the token exchange.
	Scope string `toml:"scope"`

	// HTTPRetryCount is the number of retries after a failed
	// data-plane request. 0 means no retries.
	HTTPRetryCount int `toml:"http_retry_count"`

	// HTTPRetryInterval is the fixed delay between attempts, as a Go
	// duration string.
	HTTPRetryInterval string `toml:"http_retry_interval"`

	// ShowTrashed includes trashed items in listings.
	ShowTrashed bool `toml:"show_trashed"`

	// TokenSafetyMargin is the minimum remaining token life before a
	// refresh, as a Go duration string.
	TokenSafetyMargin string `toml:"token_safety_margin"`

	// Endpoint overrides, normally left empty.
	BaseURL   string `toml:"base_url"`
	UploadURL string `toml:"upload_url"`
	TokenURL  string `toml:"token_url"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		HTTPRetryInterval: defaultRetryInterval,
		TokenSafetyMargin: defaultSafetyMargin,
	}
}

// Load reads and parses a TOML config file, rejects unknown keys, and
// validates the result. Unknown keys are fatal — silently ignoring a
// typo leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise
// returns the defaults. Supports the zero-config case.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Validate checks field values that cannot be verified by decoding
// alone.
func (c *Config) Validate() error {
	if c.HTTPRetryCount < 0 {
		return fmt.Errorf("http_retry_count must be >= 0, got %d", c.HTTPRetryCount)
	}

	if _, err := c.retryInterval(); err != nil {
		return err
	}

	if _, err := c.safetyMargin(); err != nil {
		return err
	}

	return nil
}

// Options converts the configuration into drive client options.
func (c *Config) Options() ([]drive.Option, error) {
	interval, err := c.retryInterval()
	if err != nil {
		return nil, err
	}

	margin, err := c.safetyMargin()
	if err != nil {
		return nil, err
	}

	opts := []drive.Option{
		drive.WithRetry(c.HTTPRetryCount, interval),
		drive.WithSafetyMargin(margin),
		drive.WithShowTrashed(c.ShowTrashed),
	}

	if c.Impersonate != "" {
		opts = append(opts, drive.WithImpersonation(c.Impersonate))
	}

	if c.Scope != "" {
		opts = append(opts, drive.WithScope(c.Scope))
	}

	if c.BaseURL != "" {
		opts = append(opts, drive.WithBaseURL(c.BaseURL))
	}

	if c.UploadURL != "" {
		opts = append(opts, drive.WithUploadURL(c.UploadURL))
	}

	if c.TokenURL != "" {
		opts = append(opts, drive.WithTokenURL(c.TokenURL))
	}

	return opts, nil
}

// NewClient loads the credential file named by the configuration and
// constructs a client from it. Extra options are applied after the
// configured ones, so code-level overrides win.
func (c *Config) NewClient(extra ...drive.Option) (*drive.Client, error) {
	if c.CredentialsFile == "" {
		return nil, errors.New("config: credentials_file is required")
	}

	cs, err := creds.Load(c.CredentialsFile)
	if err != nil {
		return nil, err
	}

	opts, err := c.Options()
	if err != nil {
		return nil, err
	}

	return drive.New(cs, append(opts, extra...)...)
}

func (c *Config) retryInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.HTTPRetryInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid http_retry_interval %q: %w", c.HTTPRetryInterval, err)
	}

	return d, nil
}

func (c *Config) safetyMargin() (time.Duration, error) {
	d, err := time.ParseDuration(c.TokenSafetyMargin)
	if err != nil {
		return 0, fmt.Errorf("invalid token_safety_margin %q: %w", c.TokenSafetyMargin, err)
	}

	return d, nil
}

// checkUnknownKeys rejects keys the Config struct does not recognize.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}

	sort.Strings(keys)

	return fmt.Errorf("config: unknown keys: %s", strings.Join(keys, ", "))
}
