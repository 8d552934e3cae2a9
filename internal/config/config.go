// Package config defines and loads the application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the main Nexus configuration
type Config struct {
	// Data directory (database, logs)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Provider API
	API APIConfig `json:"api" mapstructure:"api"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics listen address ("" disables the endpoint)
	MetricsAddr string `json:"metrics_addr" mapstructure:"metrics_addr"`
}

// APIConfig holds completion-provider configuration
type APIConfig struct {
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Model       string  `json:"model" mapstructure:"model"`
	VisionModel string  `json:"vision_model" mapstructure:"vision_model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		API: APIConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			VisionModel: "llama-3.2-90b-vision-preview",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}

// DBPath returns the path of the key-value database inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "nexus.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nexus"
	}
	return filepath.Join(home, ".nexus")
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.API.Model == "" {
		return fmt.Errorf("api.model cannot be empty")
	}
	if c.API.VisionModel == "" {
		return fmt.Errorf("api.vision_model cannot be empty")
	}
	if c.API.Temperature < 0 || c.API.Temperature > 2 {
		return fmt.Errorf("api.temperature must be between 0 and 2")
	}
	if c.API.MaxTokens <= 0 {
		return fmt.Errorf("api.max_tokens must be positive")
	}
	return nil
}
