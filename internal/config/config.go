// Package config loads application configuration from a .env file and environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix is prepended to every variable name, e.g. CRUCIVERBA_DB_PATH.
const envPrefix = "cruciverba"

// minSecretKeyLength is the shortest accepted session signing key, in bytes.
const minSecretKeyLength = 32

// RateLimit allows Count requests per Period.
type RateLimit struct {
	Count  int
	Period time.Duration
}

func (l RateLimit) String() string {
	return fmt.Sprintf("%d/%s", l.Count, l.Period)
}

// RateLimits is a list of limits that must all hold. It decodes from a
// comma-separated env value such as "200/24h,50/1h".
type RateLimits []RateLimit

// Decode implements envconfig.Decoder.
func (r *RateLimits) Decode(value string) error {
	var limits RateLimits
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		countStr, periodStr, ok := strings.Cut(part, "/")
		if !ok {
			return fmt.Errorf("rate limit %q: expected COUNT/PERIOD", part)
		}
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || count <= 0 {
			return fmt.Errorf("rate limit %q: count must be a positive integer", part)
		}
		period, err := time.ParseDuration(strings.TrimSpace(periodStr))
		if err != nil || period <= 0 {
			return fmt.Errorf("rate limit %q: invalid period", part)
		}

		limits = append(limits, RateLimit{Count: count, Period: period})
	}

	*r = limits
	return nil
}

// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP headers
// are believed. It decodes from a comma-separated list of addresses or CIDR
// prefixes such as "127.0.0.1,10.0.0.0/8". Empty means no proxy is trusted.
type TrustedProxies []netip.Prefix

// Decode implements envconfig.Decoder.
func (p *TrustedProxies) Decode(value string) error {
	var prefixes TrustedProxies
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "/") {
			prefix, err := netip.ParsePrefix(part)
			if err != nil {
				return fmt.Errorf("trusted proxy %q: %w", part, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(part)
		if err != nil {
			return fmt.Errorf("trusted proxy %q: %w", part, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	*p = prefixes
	return nil
}

// Contains reports whether addr belongs to one of the trusted prefixes.
func (p TrustedProxies) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Config holds the application configuration. It is built once at startup and
// passed explicitly to every component that needs it.
type Config struct {
	ListenAddr     string        `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8080"`
	DBPath         string        `envconfig:"DB_PATH" default:"data/cruciverba.db"`
	FormPassword   string        `envconfig:"FORM_PASSWORD" default:"bianca"`
	AdminPassword  string        `envconfig:"ADMIN_PASSWORD" default:"bianca2024"`
	SecretKey      string        `envconfig:"SECRET_KEY"`
	ForceHTTPS     bool          `envconfig:"FORCE_HTTPS" default:"false"`
	SessionLife    time.Duration `envconfig:"SESSION_LIFETIME" default:"2h"`
	CSRFMaxAge     time.Duration `envconfig:"CSRF_MAX_AGE" default:"1h"`
	MetricsEnabled bool          `envconfig:"METRICS_ENABLED" default:"false"`

	TrustedProxies TrustedProxies `envconfig:"TRUSTED_PROXIES"`

	RateLimitGlobal RateLimits `envconfig:"RATE_LIMIT_GLOBAL" default:"200/24h,50/1h"`
	RateLimitForm   RateLimits `envconfig:"RATE_LIMIT_FORM" default:"30/1m"`
	RateLimitAdmin  RateLimits `envconfig:"RATE_LIMIT_ADMIN" default:"20/1m"`
	RateLimitExport RateLimits `envconfig:"RATE_LIMIT_EXPORT" default:"10/1m"`
	RateLimitDelete RateLimits `envconfig:"RATE_LIMIT_DELETE" default:"30/1m"`

	// GeneratedSecret is true when SecretKey was not configured and a random
	// key was generated; sessions then do not survive a restart.
	GeneratedSecret bool `ignored:"true"`
}

// Load reads an optional .env file from the working directory, then processes
// CRUCIVERBA_* environment variables. Variables already set in the environment
// take precedence over the .env file. All variables are optional; see the
// Config struct tags for defaults.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit .env file paths. Missing files are skipped.
func LoadFiles(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.SecretKey == "" {
		key, err := generateSecret()
		if err != nil {
			return nil, err
		}
		cfg.SecretKey = key
		cfg.GeneratedSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks invariants that struct tags cannot express.
func (c *Config) Validate() error {
	if c.FormPassword == "" {
		return errors.New("CRUCIVERBA_FORM_PASSWORD must not be empty")
	}
	if c.AdminPassword == "" {
		return errors.New("CRUCIVERBA_ADMIN_PASSWORD must not be empty")
	}
	if len(c.SecretKey) < minSecretKeyLength {
		return fmt.Errorf("CRUCIVERBA_SECRET_KEY must be at least %d bytes", minSecretKeyLength)
	}
	if c.SessionLife <= 0 {
		return fmt.Errorf("CRUCIVERBA_SESSION_LIFETIME must be positive, got %s", c.SessionLife)
	}
	if c.CSRFMaxAge <= 0 {
		return fmt.Errorf("CRUCIVERBA_CSRF_MAX_AGE must be positive, got %s", c.CSRFMaxAge)
	}
	return nil
}

// HealthcheckConfig is the part of the configuration the container health check
// reads. It shares the CRUCIVERBA_ variables and defaults with Config.
type HealthcheckConfig struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8080"`
}

// LoadHealthcheck reads HealthcheckConfig from the environment only. Unlike Load it needs
// no secret and never reads .env files.
func LoadHealthcheck() (*HealthcheckConfig, error) {
	var cfg HealthcheckConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}

func generateSecret() (string, error) {
	b := make([]byte, minSecretKeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
