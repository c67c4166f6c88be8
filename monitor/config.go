package monitor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the static tuning for the pipeline, loaded once at startup.
// Runtime toggles the user flips live in the settings file instead.
type Config struct {
	// BaseAPI and PortalURL override the production endpoints, mainly
	// for tests.
	BaseAPI   string `yaml:"base_api"`
	PortalURL string `yaml:"portal_url"`

	// APIKey is the fallback x-api-key when the browser handshake does
	// not capture one.
	APIKey string `yaml:"api_key"`

	// Headless hides the handshake browser window.
	Headless bool `yaml:"headless"`

	UserAgent string `yaml:"user_agent"`

	// MinDetailScore is the phase-one score a tender needs before its
	// detail is fetched automatically.
	MinDetailScore int `yaml:"min_detail_score"`

	// RetentionDays is how long settled tenders are kept before the
	// maintenance sweep deletes them.
	RetentionDays int `yaml:"retention_days"`

	ListTimeout   time.Duration `yaml:"list_timeout"`
	DetailTimeout time.Duration `yaml:"detail_timeout"`
	PageDelay     time.Duration `yaml:"page_delay"`
	DetailDelay   time.Duration `yaml:"detail_delay"`
	MaxPageCap    int           `yaml:"max_page_cap"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Headless:       true,
		MinDetailScore: 10,
		RetentionDays:  30,
		ListTimeout:    15 * time.Second,
		DetailTimeout:  10 * time.Second,
		PageDelay:      500 * time.Millisecond,
		DetailDelay:    100 * time.Millisecond,
		MaxPageCap:     300,
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing file
// is not an error; the defaults are returned as-is.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("monitor: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("monitor: parse config %s: %w", path, err)
	}
	return cfg, nil
}
