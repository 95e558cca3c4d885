package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "PASSVAULT"
	defaultAddress = "http://127.0.0.1:8200"
)

// settings holds the CLI configuration: config file, PASSVAULT_* env vars and flags.
var settings = viper.New()

// configPath returns the path to the CLI config file.
func configPath() string {
	if p := os.Getenv("PASSVAULT_CLI_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".passvault", "config.yaml")
}

// loadConfig reads the config file at path into v. A missing file is not an error.
// Precedence is flag, then env (PASSVAULT_ADDRESS, PASSVAULT_TOKEN, PASSVAULT_TLS_CA_CERT),
// then file, then default.
func loadConfig(v *viper.Viper, path string, flags *pflag.FlagSet) error {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("address", defaultAddress)
	v.SetDefault("token", "")
	v.SetDefault("tls_ca_cert", "")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if flags != nil {
		for _, name := range []string{"address", "token"} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(name, f); err != nil {
					return fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// saveConfig persists address and token to path with owner-only permissions.
func saveConfig(v *viper.Viper, path, address, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	out := viper.New()
	out.SetConfigType("yaml")
	out.Set("address", address)
	out.Set("token", token)
	if ca := v.GetString("tls_ca_cert"); ca != "" {
		out.Set("tls_ca_cert", ca)
	}
	if err := out.WriteConfigAs(path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}
