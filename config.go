package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/tinfoilsh/hawkcall/hawk"
	"github.com/tinfoilsh/hawkcall/key"
)

type Config struct {
	StatusURL string `yaml:"status-url" default:"https://api.oline.dk/v1/system/status"`
	TargetURL string `yaml:"target-url" default:"https://api.oline.dk/v1/SupplierServices/Properties"`

	CredentialID  string `yaml:"credential-id"`
	CredentialKey string `yaml:"credential-key"`

	Timeout time.Duration `yaml:"timeout" default:"20s"`
	// Interval between scheduled calls; zero makes a single call and exits
	Interval time.Duration `yaml:"interval"`
	// SimulatedDrift offsets the local clock to demonstrate skew correction
	SimulatedDrift time.Duration `yaml:"simulated-drift"`

	ControlPort int  `yaml:"control-port"`
	Verbose     bool `yaml:"verbose"`

	target *url.URL
}

func (c *Config) Credential() hawk.Credential {
	return hawk.Credential{ID: c.CredentialID, Key: c.CredentialKey}
}

// loadConfig applies defaults, the YAML file at path when it exists, and the
// HAWK_ID and HAWK_KEY environment variables, in that order
func loadConfig(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if id := os.Getenv("HAWK_ID"); id != "" {
		c.CredentialID = id
	}
	if k := os.Getenv("HAWK_KEY"); k != "" {
		c.CredentialKey = k
	}

	if c.CredentialID == "" {
		return nil, key.ErrCredentialRequired
	}
	if c.CredentialKey == "" {
		return nil, fmt.Errorf("credential key required for %s", c.CredentialID)
	}
	c.target, err = url.Parse(c.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target-url: %w", err)
	}
	if _, err := hawk.DisplayHost(c.target); err != nil {
		return nil, fmt.Errorf("invalid target-url %q: %w", c.TargetURL, err)
	}
	if c.Interval < 0 {
		return nil, fmt.Errorf("interval must not be negative")
	}
	return &c, nil
}
