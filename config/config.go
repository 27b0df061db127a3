// Package config holds checker configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds crawl, output, and heuristic settings.
type Config struct {
	// RequestDelay is the pacing wait between targets; SettleDelay is the
	// wait after a successful navigation before extraction.
	RequestDelay time.Duration `yaml:"request_delay"`
	SettleDelay  time.Duration `yaml:"settle_delay"`

	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax   time.Duration `yaml:"retry_backoff_max"`

	UserAgent string `yaml:"user_agent"`

	// OutputDir receives run snapshots; OutputFormat selects the extra
	// report written alongside them: json (snapshot only), csv, txt, dual.
	OutputDir    string `yaml:"output_dir"`
	OutputFormat string `yaml:"output_format"`

	// CompleteRowImpliesVacant enables the site-convention heuristic that a
	// row carrying both rent and layout is an available unit.
	CompleteRowImpliesVacant bool `yaml:"complete_row_implies_vacant"`

	// Notify enables mail delivery when the diff engine says so.
	Notify bool `yaml:"notify"`

	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults matching the target site's
// tolerance for automated traffic.
func DefaultConfig() *Config {
	return &Config{
		RequestDelay:             2 * time.Second,
		SettleDelay:              2 * time.Second,
		NavigationTimeout:        30 * time.Second,
		MaxRetries:               5,
		RetryBackoff:             time.Second,
		RetryBackoffMax:          time.Minute,
		UserAgent:                "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		OutputDir:                "results",
		OutputFormat:             "json",
		CompleteRowImpliesVacant: true,
		Notify:                   false,
		MetricsAddr:              "",
		Verbose:                  false,
	}
}

// LoadFile overlays settings from a YAML file onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay cannot be negative")
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	switch strings.ToLower(c.OutputFormat) {
	case "json", "csv", "txt", "dual":
	default:
		return fmt.Errorf("output format must be json, csv, txt, or dual")
	}
	return nil
}
