// Package config manages the global configuration and auth credential
// files under ~/.config/tagmark.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SyncConfig holds sync-related settings.
type SyncConfig struct {
	URL      string `json:"url"`
	Interval string `json:"interval,omitempty"` // heartbeat period for watch, default "5m"
}

// Config is the global config stored at ~/.config/tagmark/config.json.
type Config struct {
	Sync SyncConfig `json:"sync"`
}

// AuthCredentials stores authentication state at ~/.config/tagmark/auth.json.
type AuthCredentials struct {
	APIKey   string `json:"api_key"`
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	DeviceID string `json:"device_id"`
}

const defaultServerURL = "http://localhost:8080"

// ConfigDir returns ~/.config/tagmark, creating it if necessary. Override
// with TAGMARK_CONFIG_DIR (used by tests).
func ConfigDir() (string, error) {
	if v := os.Getenv("TAGMARK_CONFIG_DIR"); v != "" {
		if err := os.MkdirAll(v, 0755); err != nil {
			return "", fmt.Errorf("create config dir: %w", err)
		}
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "tagmark")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// DBPath returns the location of the local kv database.
func DBPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tagmark.db"), nil
}

// LoadConfig reads the global config; a missing file is an empty config.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes the global config.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// LoadAuth reads auth credentials. Returns nil when not logged in.
func LoadAuth() (*AuthCredentials, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes auth credentials (0600 perms).
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "auth.json"), data, 0600)
}

// ClearAuth removes the auth.json file.
func ClearAuth() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetServerURL returns the remote store URL.
// Priority: TAGMARK_SERVER_URL env > config.json > default.
func GetServerURL() string {
	if v := os.Getenv("TAGMARK_SERVER_URL"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.URL != "" {
		return cfg.Sync.URL
	}
	return defaultServerURL
}

// GetSyncInterval returns the watch heartbeat period.
func GetSyncInterval() time.Duration {
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.Interval != "" {
		if d, perr := time.ParseDuration(cfg.Sync.Interval); perr == nil && d > 0 {
			return d
		}
	}
	return 5 * time.Minute
}

// IsAuthenticated returns true if an API key is available.
func IsAuthenticated() bool {
	creds, err := LoadAuth()
	return err == nil && creds != nil && creds.APIKey != ""
}

// GetDeviceID returns the device id from auth.json, minting and persisting
// one if needed.
func GetDeviceID() (string, error) {
	creds, err := LoadAuth()
	if err != nil {
		return "", err
	}
	if creds != nil && creds.DeviceID != "" {
		return creds.DeviceID, nil
	}
	if creds == nil {
		creds = &AuthCredentials{}
	}
	creds.DeviceID = uuid.NewString()
	if err := SaveAuth(creds); err != nil {
		return "", err
	}
	return creds.DeviceID, nil
}
