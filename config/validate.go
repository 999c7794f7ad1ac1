package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g. "storage.contracts[0].id"
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks every section and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, validateServer(c.Server)...)
	errs = append(errs, validateStorage(c.Storage)...)
	errs = append(errs, validateQuery(c.Query)...)
	errs = append(errs, validateLogging(c.Logging)...)
	return errors.Join(errs...)
}

func validateServer(s ServerConfig) []error {
	var errs []error
	if err := validateListen(s.Listen); err != nil {
		errs = append(errs, ValidationError{
			Path:    "server.listen",
			Message: err.Error(),
			Hint:    "expected [host]:port, e.g. :26657",
		})
	}
	if (s.TLSCert == "") != (s.TLSKey == "") {
		errs = append(errs, ValidationError{
			Path:    "server.tls_cert",
			Message: "tls_cert and tls_key must be set together",
		})
	}
	for i, p := range s.TrustedProxies {
		if _, err := netip.ParsePrefix(strings.TrimSpace(p)); err != nil {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("server.trusted_proxies[%d]", i),
				Message: fmt.Sprintf("invalid CIDR %q", p),
				Hint:    "expected a range such as 10.0.0.0/8",
			})
		}
	}
	for _, d := range []struct {
		path string
		v    int64
	}{
		{"server.read_timeout", int64(s.ReadTimeout)},
		{"server.write_timeout", int64(s.WriteTimeout)},
		{"server.shutdown_timeout", int64(s.ShutdownTimeout)},
	} {
		if d.v <= 0 {
			errs = append(errs, ValidationError{Path: d.path, Message: "must be positive"})
		}
	}
	if s.RateLimit < 0 {
		errs = append(errs, ValidationError{
			Path:    "server.rate_limit",
			Message: "must not be negative",
			Hint:    "use 0 to disable the node-wide limit",
		})
	}
	if s.RateLimit > 0 && s.RateBurst < 1 {
		errs = append(errs, ValidationError{
			Path:    "server.rate_burst",
			Message: "must be at least 1 when rate_limit is set",
		})
	}
	return errs
}

func validateListen(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535; got %q", port)
	}
	return nil
}

func validateStorage(s StorageConfig) []error {
	var errs []error
	switch s.Backend {
	case "memory":
	case "bbolt":
		if s.Path == "" {
			errs = append(errs, ValidationError{
				Path:    "storage.path",
				Message: "must not be empty for the bbolt backend",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Path:    "storage.backend",
			Message: fmt.Sprintf("invalid value %q", s.Backend),
			Hint:    "allowed values: memory, bbolt",
		})
	}
	seen := make(map[string]bool)
	for i, c := range s.Contracts {
		if _, err := c.ContractID(); err != nil {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("storage.contracts[%d].id", i),
				Message: err.Error(),
				Hint:    "expected 64 hex characters",
			})
		} else if seen[strings.ToLower(c.ID)] {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("storage.contracts[%d].id", i),
				Message: "duplicate contract id",
			})
		}
		seen[strings.ToLower(c.ID)] = true
		if c.File == "" {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("storage.contracts[%d].file", i),
				Message: "must not be empty",
			})
		}
	}
	return errs
}

func validateQuery(q QueryConfig) []error {
	if q.MaxLimit == 0 {
		return []error{ValidationError{
			Path:    "query.max_limit",
			Message: "must be positive",
		}}
	}
	return nil
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid value %q", l.Level),
			Hint:    "allowed values: debug, info, warn, error",
		})
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("invalid value %q", l.Format),
			Hint:    "allowed values: json, text",
		})
	}
	return errs
}
