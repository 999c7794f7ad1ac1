package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docproof.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "127.0.0.1:9000"
  trusted_proxies: ["10.0.0.0/8"]
  write_timeout: 5s
storage:
  backend: memory
  contracts:
    - id: "c000000000000000000000000000000000000000000000000000000000000000"
      file: contract.bin
query:
  max_limit: 25
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, 5*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset keys keep their defaults")
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, uint32(25), cfg.Query.MaxLimit)

	prefixes, err := cfg.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 1)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())

	id, err := cfg.Storage.Contracts[0].ContractID()
	require.NoError(t, err)
	assert.Equal(t, byte(0xc0), id[0])
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 80\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"bad listen", func(c *Config) { c.Server.Listen = "localhost" }, "server.listen"},
		{"port out of range", func(c *Config) { c.Server.Listen = ":70000" }, "server.listen"},
		{"tls half configured", func(c *Config) { c.Server.TLSCert = "cert.pem" }, "server.tls_cert"},
		{"bad proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.1"} }, "server.trusted_proxies[0]"},
		{"zero timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "server.shutdown_timeout"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"bbolt without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad contract id", func(c *Config) {
			c.Storage.Contracts = []ContractSeed{{ID: "abcd", File: "c.bin"}}
		}, "storage.contracts[0].id"},
		{"duplicate contract", func(c *Config) {
			id := strings.Repeat("ab", 32)
			c.Storage.Contracts = []ContractSeed{{ID: id, File: "a"}, {ID: strings.ToUpper(id), File: "b"}}
		}, "storage.contracts[1].id"},
		{"contract without file", func(c *Config) {
			c.Storage.Contracts = []ContractSeed{{ID: strings.Repeat("ab", 32)}}
		}, "storage.contracts[0].file"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, "server.rate_limit"},
		{"rate limit without burst", func(c *Config) { c.Server.RateLimit = 50 }, "server.rate_burst"},
		{"zero max limit", func(c *Config) { c.Query.MaxLimit = 0 }, "query.max_limit"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "console" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.path, ve.Path)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "logging.format")
	assert.Contains(t, err.Error(), "allowed values: json, text")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	LoggingConfig{Level: "debug", Format: "text"}.NewLogger(&buf).Debug("text line")
	assert.Contains(t, buf.String(), "msg=\"text line\"")

	assert.Equal(t, slog.LevelInfo, LoggingConfig{Level: "bogus"}.SlogLevel())
}
