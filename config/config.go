package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SweepRetain = "retain"
	SweepPurge  = "purge"
)

// S3 configures the optional S3 blob backend. It's only used when Bucket is set.
type S3 struct {
	Bucket   string `json:"bucket"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
	Prefix   string `json:"prefix"`
}

// Config is the config for the application
type Config struct {
	Listen       string `json:"listen"`
	DatabasePath string `json:"sqlite"`
	FSPath       string `json:"storage_path"`
	// BaseURL is the frontend address share links are built from.
	BaseURL    string `json:"base_url"`
	SigningKey string `json:"signing_key"`
	Production bool   `json:"production"`
	AuditDir   string `json:"audit_dir"`

	AccessTokenMinutes int      `json:"access_token_minutes"`
	SweepInterval      Duration `json:"sweep_interval"`
	SweepBlobErrors    string   `json:"sweep_blob_errors"`
	MaxUploadMB        int64    `json:"max_upload_mb"`
	UnlockPerMinute    int      `json:"unlock_per_minute"`

	RevokeOnChange bool   `json:"revoke_on_change"`
	RedisAddr      string `json:"redis_addr"`

	S3 S3 `json:"s3"`
}

// Duration is a time.Duration that reads as "5m" style strings in json.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// New returns a config with default values
func New() *Config {
	return &Config{
		Listen:             ":8080",
		DatabasePath:       "data/share.db",
		FSPath:             "files",
		BaseURL:            "http://localhost:3000",
		AuditDir:           "logs",
		AccessTokenMinutes: 30,
		SweepInterval:      Duration(5 * time.Minute),
		SweepBlobErrors:    SweepRetain,
		MaxUploadMB:        512,
		UnlockPerMinute:    10,
	}
}

// FromReader creates a config from a reader that contains json content.
func FromReader(f io.Reader) (*Config, error) {
	cfg := New()
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config from reader: %w", err)
	}

	return cfg, nil
}

// Load reads the json config at path when it exists, overlays the
// environment and validates the result.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := New()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config file: %w", err)
	default:
		defer f.Close()
		if cfg, err = FromReader(f); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays values from the environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		*dst = b
		return nil
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("LISTEN_ADDR", &c.Listen)
	str("SQLITE_PATH", &c.DatabasePath)
	str("STORAGE_PATH", &c.FSPath)
	str("BASE_URL", &c.BaseURL)
	str("SECRET_KEY", &c.SigningKey)
	str("AUDIT_DIR", &c.AuditDir)
	str("SWEEP_BLOB_ERRORS", &c.SweepBlobErrors)
	str("REDIS_ADDR", &c.RedisAddr)
	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_REGION", &c.S3.Region)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("S3_PREFIX", &c.S3.Prefix)

	if v, ok := lookup("APP_ENV"); ok && v != "" {
		c.Production = strings.EqualFold(v, "production")
	}

	if err := boolean("REVOKE_ON_CHANGE", &c.RevokeOnChange); err != nil {
		return err
	}
	if err := integer("ACCESS_TOKEN_EXPIRE_MINUTES", &c.AccessTokenMinutes); err != nil {
		return err
	}
	if err := integer("UNLOCK_PER_MINUTE", &c.UnlockPerMinute); err != nil {
		return err
	}

	if v, ok := lookup("MAX_UPLOAD_MB"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for MAX_UPLOAD_MB: %w", err)
		}
		c.MaxUploadMB = n
	}

	if v, ok := lookup("SWEEP_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid value for SWEEP_INTERVAL: %w", err)
		}
		c.SweepInterval = Duration(d)
	}

	return nil
}

// ErrMissingSigningKey is returned by Validate in production mode when no key is configured.
var ErrMissingSigningKey = errors.New("signing key must be configured in production (SECRET_KEY)")

// Validate checks the config for values the service can't start with.
func (c *Config) Validate() error {
	if c.Production && c.SigningKey == "" {
		return ErrMissingSigningKey
	}
	if c.DatabasePath == "" {
		return errors.New("config didn't provide a 'sqlite' option as a path to an sqlite file")
	}
	if c.S3.Bucket == "" && c.FSPath == "" {
		return errors.New("either 'storage_path' or 's3.bucket' must be set")
	}
	if c.BaseURL == "" {
		return errors.New("'base_url' must be set")
	}
	if c.SweepBlobErrors != SweepRetain && c.SweepBlobErrors != SweepPurge {
		return fmt.Errorf("'sweep_blob_errors' must be %q or %q, got %q", SweepRetain, SweepPurge, c.SweepBlobErrors)
	}
	if c.SweepInterval <= 0 {
		return errors.New("'sweep_interval' must be positive")
	}
	if c.AccessTokenMinutes <= 0 {
		return errors.New("'access_token_minutes' must be positive")
	}
	if c.UnlockPerMinute <= 0 {
		return errors.New("'unlock_per_minute' must be positive")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("'max_upload_mb' must be positive")
	}

	return nil
}
