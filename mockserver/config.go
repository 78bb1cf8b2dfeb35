package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type serverConfig struct {
	Listen string `yaml:"listen" default:":8443"`

	// Exactly one credential source is used; key-server wins when set
	CredentialsFile string        `yaml:"credentials-file" default:"credentials.yml"`
	KeyServer       string        `yaml:"key-server"`
	KeyCacheTTL     time.Duration `yaml:"key-cache-ttl" default:"5m"`

	Offline        bool          `yaml:"offline"`
	OfflineMessage string        `yaml:"offline-message" default:"The service is down for scheduled maintenance"`
	ClockOffset    time.Duration `yaml:"clock-offset"`
	Tolerance      time.Duration `yaml:"tolerance" default:"60s"`

	RatePerSecond float64 `yaml:"rate-per-second" default:"5"`
	RateBurst     int     `yaml:"rate-burst" default:"10"`

	// TLS is one of none, self-signed or acme
	TLS       string   `yaml:"tls" default:"self-signed"`
	Hostnames []string `yaml:"hostnames" default:"[\"localhost\",\"127.0.0.1\"]"`
	ACMEEmail string   `yaml:"acme-email"`
	CacheDir  string   `yaml:"cache-dir" default:"/tmp/hawkcall-mock"`
}

func (c *serverConfig) rateLimit() rate.Limit {
	if c.RatePerSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(c.RatePerSecond)
}

func (c *serverConfig) validate() error {
	switch c.TLS {
	case "none", "self-signed":
	case "acme":
		if c.ACMEEmail == "" || len(c.Hostnames) == 0 {
			return fmt.Errorf("acme mode needs acme-email and hostnames")
		}
	default:
		return fmt.Errorf("unknown tls mode %q", c.TLS)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive")
	}
	return nil
}

// loadServerConfig applies defaults, then the YAML file at path when it exists
func loadServerConfig(path string) (*serverConfig, error) {
	var cfg serverConfig
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
