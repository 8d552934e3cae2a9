package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration. Precedence: NEXUS_ environment variables
// (nested keys joined with underscores, e.g. NEXUS_API_MODEL), then the
// config file, then defaults. A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".nexus", "nexus.json")
	}

	v := viper.New()
	v.SetConfigType("json")

	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults register every key with viper, which is what makes the env
	// override visible to Unmarshal even without a config file.
	def := DefaultConfig()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.model", def.API.Model)
	v.SetDefault("api.vision_model", def.API.VisionModel)
	v.SetDefault("api.temperature", def.API.Temperature)
	v.SetDefault("api.max_tokens", def.API.MaxTokens)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.file", def.Logging.File)
	v.SetDefault("logging.console", def.Logging.Console)
	v.SetDefault("logging.pretty", def.Logging.Pretty)
	v.SetDefault("logging.redaction", def.Logging.Redaction)
	v.SetDefault("metrics_addr", def.MetricsAddr)

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given path as JSON.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.Set("data_dir", cfg.DataDir)
	v.Set("api", map[string]interface{}{
		"base_url":     cfg.API.BaseURL,
		"model":        cfg.API.Model,
		"vision_model": cfg.API.VisionModel,
		"temperature":  cfg.API.Temperature,
		"max_tokens":   cfg.API.MaxTokens,
	})
	v.Set("logging", map[string]interface{}{
		"level":     cfg.Logging.Level,
		"file":      cfg.Logging.File,
		"console":   cfg.Logging.Console,
		"pretty":    cfg.Logging.Pretty,
		"redaction": cfg.Logging.Redaction,
	})
	v.Set("metrics_addr", cfg.MetricsAddr)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
