// Package config loads the YAML configuration of a docproof node.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/docproof/document"
	"github.com/jmcleod/docproof/query"
)

// Config is the complete node configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Query   QueryConfig   `yaml:"query"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener of the query node.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	TLSCert         string        `yaml:"tls_cert"`
	TLSKey          string        `yaml:"tls_key"`
	TrustedProxies  []string      `yaml:"trusted_proxies"` // CIDR ranges
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst       int           `yaml:"rate_burst"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Backend   string         `yaml:"backend"` // memory, bbolt
	Path      string         `yaml:"path"`    // bbolt database file
	Contracts []ContractSeed `yaml:"contracts"`
}

// ContractSeed is a data contract registered at startup when absent.
type ContractSeed struct {
	ID   string `yaml:"id"`   // hex
	File string `yaml:"file"` // serialized contract
}

// QueryConfig bounds document queries.
type QueryConfig struct {
	MaxLimit uint32 `yaml:"max_limit"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":26657",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "bbolt",
			Path:    "./data/state.db",
		},
		Query: QueryConfig{
			MaxLimit: query.DefaultMaxLimit,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DecodeStrict decodes YAML from a reader and rejects any unknown fields.
func DecodeStrict(r io.Reader, out any) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads the file at path over the defaults and validates the result.
// An empty path yields the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := DecodeStrict(bytes.NewReader(raw), cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// TrustedProxyPrefixes parses Server.TrustedProxies.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.Server.TrustedProxies))
	for _, s := range c.Server.TrustedProxies {
		p, err := netip.ParsePrefix(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ContractID parses the seed's identifier.
func (s ContractSeed) ContractID() (document.ID, error) {
	return document.ParseID(s.ID)
}

// SlogLevel returns the slog level named by l.Level.
func (l LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the logger described by l, writing to w.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
