// Package config loads chopd's runtime configuration from an optional
// JSON file plus an environment overlay. Full schema validation of the
// config file is an external concern (see DESIGN.md); this package only
// checks the invariants the core itself depends on at runtime: port
// ranges (Validate, run by Load) and a non-empty command (RequireCommand).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the validated object the core consumes.
type Config struct {
	Command    string            `json:"command"`
	ProxyPort  int               `json:"proxyPort"`
	TargetPort int               `json:"targetPort"`
	Env        map[string]string `json:"env"`
	Version    string            `json:"version"`
}

const (
	DefaultProxyPort  = 4000
	DefaultTargetPort = 3000
)

// Load reads path (if it exists) as JSON, applies defaults for any field
// left unset, overlays PROXY_PORT/TARGET_PORT from the environment, and
// validates the result. A missing file is not an error: chopd can run
// against bare env vars / CLI args alone.
func Load(path string) (*Config, error) {
	cfg := &Config{ProxyPort: DefaultProxyPort, TargetPort: DefaultTargetPort}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			var fromFile Config
			if err := json.Unmarshal(b, &fromFile); err != nil {
				return nil, fmt.Errorf("config: invalid JSON in %s: %w", path, err)
			}
			cfg.merge(&fromFile)
		case os.IsNotExist(err):
			// no config file; defaults + env + CLI args only.
		default:
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv("PROXY_PORT")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PROXY_PORT %q: %w", v, err)
		}
		cfg.ProxyPort = p
	}
	if v := strings.TrimSpace(os.Getenv("TARGET_PORT")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid TARGET_PORT %q: %w", v, err)
		}
		cfg.TargetPort = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge copies every non-zero field of other into c, so a partial config
// file only overrides what it mentions.
func (c *Config) merge(other *Config) {
	if other.Command != "" {
		c.Command = other.Command
	}
	if other.ProxyPort != 0 {
		c.ProxyPort = other.ProxyPort
	}
	if other.TargetPort != 0 {
		c.TargetPort = other.TargetPort
	}
	if other.Version != "" {
		c.Version = other.Version
	}
	if len(other.Env) > 0 {
		if c.Env == nil {
			c.Env = make(map[string]string, len(other.Env))
		}
		for k, v := range other.Env {
			c.Env[k] = v
		}
	}
}

// Validate checks the invariants the core itself relies on. Schema-level
// validation (types, allowed keys, semver shape of Version) is the
// external loader's job; Validate only enforces what would
// otherwise crash or misbehave at runtime.
func (c *Config) Validate() error {
	if c.ProxyPort < 1 || c.ProxyPort > 65535 {
		return fmt.Errorf("config: proxyPort %d out of range 1..65535", c.ProxyPort)
	}
	if c.TargetPort < 1 || c.TargetPort > 65535 {
		return fmt.Errorf("config: targetPort %d out of range 1..65535", c.TargetPort)
	}
	return nil
}

// RequireCommand reports an error when Command is empty. Neither Load nor
// Validate calls it, and cmd/chopd does not either: it spawns the target
// only when Command is non-empty and otherwise runs without spawning.
func (c *Config) RequireCommand() error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("config: command is required to spawn the target process")
	}
	return nil
}
