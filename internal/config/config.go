package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config represents the global ~/.syrup/config.toml. Environment variables
// override file values so a profile can be pointed at a staging backend
// without editing the file.
type Config struct {
	DefaultProfile string `toml:"default_profile" env:"SYRUP_PROFILE"`

	// GatewayURL is the websocket endpoint of the chat gateway.
	GatewayURL string `toml:"gateway_url" env:"SYRUP_GATEWAY_URL"`
	// APIBaseURL is the base URL of the REST history/file service.
	APIBaseURL string `toml:"api_base_url" env:"SYRUP_API_URL"`

	// UserID is the authenticated user's id. It is threaded explicitly
	// through the session controller; nothing reads it from ambient state.
	UserID    int64  `toml:"user_id" env:"SYRUP_USER_ID"`
	Login     string `toml:"login" env:"SYRUP_LOGIN"`
	AuthToken string `toml:"auth_token" env:"SYRUP_TOKEN"`

	// PageSize is the history page size used for initial and backward loads.
	PageSize int `toml:"page_size" env:"SYRUP_PAGE_SIZE"`
}

// DefaultPageSize is used when page_size is unset or invalid.
const DefaultPageSize = 50

// Load reads config from the given path and applies environment overrides.
// A missing file is not an error: overrides alone can form a valid config.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
