package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configDir  = ".bqpipe"
	configFile = "config"
	configType = "yaml"
	envPrefix  = "BQPIPE"
)

// DefaultPath returns ~/.bqpipe/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(home, configDir, configFile+"."+configType), nil
}

// Load reads the configuration at path, ~/.bqpipe/config.yaml when empty.
// A missing file yields an empty config. BQPIPE_PROFILE and BQPIPE_LOG_LEVEL
// override the matching preferences.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	if err := v.BindEnv("preferences.default_profile", envPrefix+"_PROFILE"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("preferences.log_level", envPrefix+"_LOG_LEVEL"); err != nil {
		return nil, err
	}

	// Defaults
	v.SetDefault("preferences.log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, ~/.bqpipe/config.yaml when empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType(configType)
	v.Set("profiles", cfg.Profiles)
	v.Set("preferences", cfg.Preferences)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// DefaultProfile returns the default profile from config, or the first one.
func DefaultProfile(cfg *Config) *Profile {
	if len(cfg.Profiles) == 0 {
		return nil
	}

	if cfg.Preferences.DefaultProfile != "" {
		for i := range cfg.Profiles {
			if cfg.Profiles[i].Name == cfg.Preferences.DefaultProfile {
				return &cfg.Profiles[i]
			}
		}
	}

	return &cfg.Profiles[0]
}
