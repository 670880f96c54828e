// Package config provides configuration management for the pph CLI tool
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Davincible/polypasshash/internal/validation"
	"github.com/Davincible/polypasshash/pkg/crypto/shield"
	"github.com/Davincible/polypasshash/pkg/passwords"
)

// Config represents the main configuration structure
type Config struct {
	Version  string          `json:"version"`
	Defaults DefaultSettings `json:"defaults"`
	Security SecurityConfig  `json:"security"`
	UI       UIConfig        `json:"ui"`
	Storage  StorageConfig   `json:"storage"`
	Server   ServerConfig    `json:"server"`
}

// DefaultSettings contains default values for new password data
type DefaultSettings struct {
	Threshold    int    `json:"threshold"`     // Default: 2
	PartialBytes int    `json:"partial_bytes"` // Default: 2
	Cipher       string `json:"cipher"`        // Default: aes-256-cbc
}

// SecurityConfig contains security-related settings
type SecurityConfig struct {
	VerifierIterations int `json:"verifier_iterations"` // PBKDF2 rounds of the secret verifier
	MinPasswordLength  int `json:"min_password_length"` // Minimum password length on creation
	GeneratedWords     int `json:"generated_words"`     // Words in a generated passphrase
}

// UIConfig contains user interface settings
type UIConfig struct {
	UseColor bool `json:"use_color"`
}

// StorageConfig contains storage-related settings
type StorageConfig struct {
	PasswordFile string `json:"password_file"` // Default: ~/.config/pph/passwords.json
}

// ServerConfig contains settings of the HTTP service started by pph serve
type ServerConfig struct {
	Listen          string `json:"listen"`            // Default: 127.0.0.1:8420
	ReadTimeoutSec  int    `json:"read_timeout_sec"`  // Default: 15
	WriteTimeoutSec int    `json:"write_timeout_sec"` // Default: 15
	ShutdownSec     int    `json:"shutdown_sec"`      // Grace period for open requests
	Metrics         bool   `json:"metrics"`           // Expose /metrics
	LoginsPerMinute int    `json:"logins_per_minute"` // Per client, 0 disables
	LoginBurst      int    `json:"login_burst"`       // Default: 10
}

// ConfigManager manages configuration loading and saving
type ConfigManager struct {
	config     *Config
	configPath string
}

// NewConfigManager creates a configuration manager for path. An empty path
// selects the default location. A missing file yields the defaults, which are
// only written by SaveConfig.
func NewConfigManager(path string) (*ConfigManager, error) {
	if path == "" {
		var err error
		if path, err = getConfigPath(); err != nil {
			return nil, err
		}
	}

	cm := &ConfigManager{configPath: path}
	if err := cm.LoadConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cm.config = DefaultConfig()
	}
	return cm, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dir, err := configDir()
	if err != nil {
		dir = "."
	}

	return &Config{
		Version: "1.0.0",
		Defaults: DefaultSettings{
			Threshold:    2,
			PartialBytes: 2,
			Cipher:       shield.LegacyCBCName,
		},
		Security: SecurityConfig{
			VerifierIterations: passwords.DefaultVerifierIterations,
			MinPasswordLength:  8,
			GeneratedWords:     12,
		},
		UI: UIConfig{
			UseColor: true,
		},
		Storage: StorageConfig{
			PasswordFile: filepath.Join(dir, "passwords.json"),
		},
		Server: ServerConfig{
			Listen:          "127.0.0.1:8420",
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 15,
			ShutdownSec:     10,
			Metrics:         true,
			LoginsPerMinute: 30,
			LoginBurst:      10,
		},
	}
}

// LoadConfig loads the configuration from disk. Fields missing from the file
// keep their default values.
func (cm *ConfigManager) LoadConfig() error {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(config); err != nil {
		return fmt.Errorf("invalid config %s: %w", cm.configPath, err)
	}

	cm.config = config
	return nil
}

// SaveConfig saves the configuration to disk
func (cm *ConfigManager) SaveConfig() error {
	if err := Validate(cm.config); err != nil {
		return err
	}

	configDir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// SetConfig updates the configuration
func (cm *ConfigManager) SetConfig(config *Config) {
	cm.config = config
}

// Path returns the configuration file path
func (cm *ConfigManager) Path() string {
	return cm.configPath
}

// PasswordFile returns the password data path with a leading ~ expanded.
func (cm *ConfigManager) PasswordFile() string {
	return expandHome(cm.config.Storage.PasswordFile)
}

// StoreOptions converts the configuration into store options.
func (cm *ConfigManager) StoreOptions() ([]passwords.Option, error) {
	cipher, err := shield.ByName(cm.config.Defaults.Cipher)
	if err != nil {
		return nil, err
	}
	return []passwords.Option{
		passwords.WithPartialBytes(cm.config.Defaults.PartialBytes),
		passwords.WithCipher(cipher),
		passwords.WithVerifierIterations(cm.config.Security.VerifierIterations),
	}, nil
}

// Validate checks a configuration for values the store would reject.
func Validate(config *Config) error {
	if err := validation.ValidateThreshold(config.Defaults.Threshold); err != nil {
		return err
	}
	if err := validation.ValidatePartialBytes(config.Defaults.PartialBytes); err != nil {
		return err
	}
	if _, err := shield.ByName(config.Defaults.Cipher); err != nil {
		return err
	}
	if config.Security.VerifierIterations < 0 {
		return fmt.Errorf("verifier iterations cannot be negative")
	}
	if config.Security.MinPasswordLength < 0 {
		return fmt.Errorf("minimum password length cannot be negative")
	}
	if !validation.ValidateWordCount(config.Security.GeneratedWords) {
		return fmt.Errorf("generated words must be 12, 15, 18, 21, or 24 (got %d)", config.Security.GeneratedWords)
	}
	if strings.TrimSpace(config.Storage.PasswordFile) == "" {
		return fmt.Errorf("password file path cannot be empty")
	}
	if strings.TrimSpace(config.Server.Listen) == "" {
		return fmt.Errorf("server listen address cannot be empty")
	}
	if config.Server.ReadTimeoutSec < 0 || config.Server.WriteTimeoutSec < 0 || config.Server.ShutdownSec < 0 {
		return fmt.Errorf("server timeouts cannot be negative")
	}
	if config.Server.LoginsPerMinute < 0 || config.Server.LoginBurst < 0 {
		return fmt.Errorf("server rate limits cannot be negative")
	}
	return nil
}

// getConfigPath returns the configuration file path
func getConfigPath() (string, error) {
	if customPath := os.Getenv("PPH_CONFIG"); customPath != "" {
		return customPath, nil
	}

	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func configDir() (string, error) {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "pph"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "pph"), nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
