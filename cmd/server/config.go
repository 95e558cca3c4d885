package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/org/passvault/internal/crypto"
	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr    string `yaml:"listen_addr"`
	TLSCertFile   string `yaml:"tls_cert"`
	TLSKeyFile    string `yaml:"tls_key"`
	DBPath        string `yaml:"db_path"`
	MasterKey     string `yaml:"master_key"`
	MasterKeyFile string `yaml:"master_key_file"`
	APIToken      string `yaml:"api_token"`
	RateLimit     int    `yaml:"rate_limit"`
	RateBurst     int    `yaml:"rate_burst"`
	LogLevel      string `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		ListenAddr: "127.0.0.1:8200",
		DBPath:     "passvault.db",
		RateLimit:  100,
		RateBurst:  200,
		LogLevel:   "info",
	}
}

// loadConfig reads the YAML file at path, if present, and applies env overrides.
// A missing file is not an error.
func loadConfig(path string, getenv func(string) string) (config, bool, error) {
	cfg := defaultConfig()
	found := true

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, found, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		found = false
	default:
		return cfg, false, fmt.Errorf("reading %s: %w", path, err)
	}

	// Env overrides
	if v := getenv("PASSVAULT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("PASSVAULT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("PASSVAULT_MASTER_KEY"); v != "" {
		cfg.MasterKey = v
	}
	if v := getenv("PASSVAULT_MASTER_KEY_FILE"); v != "" {
		cfg.MasterKeyFile = v
	}
	if v := getenv("PASSVAULT_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := getenv("PASSVAULT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.DBPath == "" {
		return cfg, found, errors.New("db_path must be configured (or PASSVAULT_DB_PATH env var)")
	}
	return cfg, found, nil
}

// masterSecret returns the configured key secret. An inline key wins over a key file.
func (c config) masterSecret() (string, error) {
	if c.MasterKey != "" {
		return c.MasterKey, nil
	}
	if c.MasterKeyFile != "" {
		data, err := os.ReadFile(c.MasterKeyFile)
		if err != nil {
			return "", fmt.Errorf("reading master key file: %w", err)
		}
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret, nil
		}
	}
	return "", fmt.Errorf("%w: set master_key, master_key_file, PASSVAULT_MASTER_KEY or PASSVAULT_MASTER_KEY_FILE", crypto.ErrNoKey)
}

// newCipher derives the process-wide cipher from configuration.
func (c config) newCipher() (*crypto.Cipher, error) {
	secret, err := c.masterSecret()
	if err != nil {
		return nil, err
	}
	key, err := crypto.KeyFromSecret(secret)
	if err != nil {
		return nil, err
	}
	return crypto.NewCipher(key)
}
