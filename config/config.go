// Package config defines the configuration surface consumed by the
// federation core: instance identity and keys, the defederation blocklist,
// bridge trust settings, broker connection, and the HTTP listener.
package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/versia-works/federation/errors"
)

// Config represents the complete application configuration
type Config struct {
	Federation FederationConfig `json:"federation" yaml:"federation"`
	Bridge     BridgeConfig     `json:"bridge"     yaml:"bridge"`
	NATS       NATSConfig       `json:"nats"       yaml:"nats"`
	HTTP       HTTPConfig       `json:"http"       yaml:"http"`
	Queue      QueueConfig      `json:"queue"      yaml:"queue"`
	Logging    LoggingConfig    `json:"logging"    yaml:"logging"`
}

// FederationConfig defines instance identity and defederation policy
type FederationConfig struct {
	// Domain is this instance's canonical hostname (e.g. "social.example.org").
	Domain string `json:"domain" yaml:"domain"`

	// Blocked lists hostname glob patterns that are silently defederated
	// (e.g. "spam.example", "*.badnet.example").
	Blocked []string `json:"blocked,omitempty" yaml:"blocked,omitempty"`

	// PrivateKey is the instance Ed25519 private key, base64 encoded.
	PrivateKey string `json:"private_key" yaml:"private_key"`

	// PublicKey is the instance Ed25519 public key, base64 encoded.
	PublicKey string `json:"public_key" yaml:"public_key"`
}

// BridgeConfig defines the semi-trusted relay settings. When enabled, a
// request carrying the shared bearer token from an allow-listed IP skips
// per-message signature verification.
type BridgeConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Token is the shared bearer secret the bridge presents.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	// AllowedIPs lists source addresses permitted to use the token.
	// Entries may be exact IPs, CIDR prefixes, or glob patterns.
	AllowedIPs []string `json:"allowed_ips,omitempty" yaml:"allowed_ips,omitempty"`
}

// NATSConfig defines broker connection settings
type NATSConfig struct {
	URL      string `json:"url"                yaml:"url"`
	Name     string `json:"name,omitempty"     yaml:"name,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Token    string `json:"token,omitempty"    yaml:"token,omitempty"`
}

// HTTPConfig defines the inbound HTTP listener
type HTTPConfig struct {
	Bind string `json:"bind" yaml:"bind"`

	// RateLimit is the sustained per-IP request rate for /inbox (req/sec).
	// Zero disables rate limiting.
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// RateBurst is the per-IP burst allowance.
	RateBurst int `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty"`

	// BodyLimit caps inbound request bodies in bytes. Zero means 1 MiB.
	BodyLimit int64 `json:"body_limit,omitempty" yaml:"body_limit,omitempty"`

	// TrustForwardedFor enables X-Forwarded-For as the client IP source.
	// Only enable behind a proxy that appends the real peer address to the
	// header; the bridge IP allowlist and the rate limiter key on this
	// value. Off, the socket peer is used.
	TrustForwardedFor bool `json:"trust_forwarded_for,omitempty" yaml:"trust_forwarded_for,omitempty"`
}

// QueueConfig defines job delivery policy for the durable queues
type QueueConfig struct {
	// MaxDeliver is the per-job attempt limit before dead-lettering.
	MaxDeliver int `json:"max_deliver,omitempty" yaml:"max_deliver,omitempty"`

	// Concurrency bounds in-flight jobs per worker.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// DeadLetterTTL is how long failed jobs are retained, as a duration
	// string (e.g. "720h").
	DeadLetterTTL string `json:"dead_letter_ttl,omitempty" yaml:"dead_letter_ttl,omitempty"`
}

// LoggingConfig defines log output settings
type LoggingConfig struct {
	Level  string `json:"level,omitempty"  yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// LogSignatures enables debug logging of signature material for
	// federation troubleshooting. Never enable in production.
	LogSignatures bool `json:"log_signatures,omitempty" yaml:"log_signatures,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
// Keys and domain must still be provided before Validate passes.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:  "nats://localhost:4222",
			Name: "versiad",
		},
		HTTP: HTTPConfig{
			Bind:      ":8470",
			RateLimit: 10,
			RateBurst: 30,
			BodyLimit: 1 << 20,
		},
		Queue: QueueConfig{
			MaxDeliver:    5,
			Concurrency:   8,
			DeadLetterTTL: "720h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Federation.Domain == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "federation.domain is required")
	}
	if strings.Contains(c.Federation.Domain, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"federation.domain must be a bare hostname")
	}

	if _, err := c.SigningKey(); err != nil {
		return err
	}
	if _, err := c.VerifyingKey(); err != nil {
		return err
	}

	if c.Bridge.Enabled {
		if c.Bridge.Token == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"bridge.token is required when bridge is enabled")
		}
		for _, entry := range c.Bridge.AllowedIPs {
			if err := validateIPPattern(entry); err != nil {
				return errors.WrapInvalid(err, "Config", "Validate",
					fmt.Sprintf("bridge.allowed_ips entry %q", entry))
			}
		}
	}

	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.url is required")
	}

	if c.HTTP.Bind == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "http.bind is required")
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "rate limit values must be >= 0")
	}

	if c.Queue.MaxDeliver < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "queue.max_deliver must be >= 0")
	}
	if c.Queue.DeadLetterTTL != "" {
		if _, err := time.ParseDuration(c.Queue.DeadLetterTTL); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "queue.dead_letter_ttl")
		}
	}

	return nil
}

// SigningKey decodes the instance Ed25519 private key
func (c *Config) SigningKey() (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(c.Federation.PrivateKey)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "SigningKey", "decode federation.private_key")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "SigningKey",
			fmt.Sprintf("federation.private_key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw)))
	}
	return ed25519.PrivateKey(raw), nil
}

// VerifyingKey decodes the instance Ed25519 public key
func (c *Config) VerifyingKey() (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(c.Federation.PublicKey)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "VerifyingKey", "decode federation.public_key")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "VerifyingKey",
			fmt.Sprintf("federation.public_key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw)))
	}
	return ed25519.PublicKey(raw), nil
}

// DeadLetterAge returns the parsed dead-letter retention, defaulting to
// 30 days when unset.
func (c *Config) DeadLetterAge() time.Duration {
	if c.Queue.DeadLetterTTL == "" {
		return 30 * 24 * time.Hour
	}
	d, err := time.ParseDuration(c.Queue.DeadLetterTTL)
	if err != nil {
		return 30 * 24 * time.Hour
	}
	return d
}

// validateIPPattern accepts exact IPs, CIDR prefixes, and glob patterns
func validateIPPattern(entry string) error {
	if entry == "" {
		return fmt.Errorf("empty entry")
	}
	if strings.Contains(entry, "*") || strings.Contains(entry, "?") {
		return nil // glob, checked at match time
	}
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err
	}
	_, err := netip.ParseAddr(entry)
	return err
}

// Load reads configuration from a JSON or YAML file, selected by
// extension, merged over DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse YAML config")
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse JSON config")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
