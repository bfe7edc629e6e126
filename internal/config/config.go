// Package config provides configuration loading and structs for healthassist.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/healthassist/internal/schema"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Models  ModelsConfig  `yaml:"models"`
	Storage StorageConfig `yaml:"storage"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                  string          `yaml:"host"`
	Port                  int             `yaml:"port"`
	MaxUploadBytes        int64           `yaml:"max_upload_bytes"`
	RequestTimeoutSeconds int             `yaml:"request_timeout_seconds"`
	RateLimit             RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles the API. Zero requests_per_second disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ModelsConfig locates the classifier artifacts.
type ModelsConfig struct {
	// Directory holds <disease>_model.{onnx,json,yaml} when a per-disease path is unset.
	Directory   string      `yaml:"directory"`
	ONNXLibrary string      `yaml:"onnx_library"`
	Diabetes    ModelConfig `yaml:"diabetes"`
	Heart       ModelConfig `yaml:"heart"`
	Parkinsons  ModelConfig `yaml:"parkinsons"`
}

// ModelConfig configures one classifier.
type ModelConfig struct {
	Path       string `yaml:"path,omitempty"`
	SHA256     string `yaml:"sha256,omitempty"`
	InputName  string `yaml:"input_name,omitempty"`
	OutputName string `yaml:"output_name,omitempty"`
}

// For returns the model settings for a canonical disease key.
func (m *ModelsConfig) For(disease string) ModelConfig {
	switch disease {
	case schema.Diabetes:
		return m.Diabetes
	case schema.Heart:
		return m.Heart
	case schema.Parkinsons:
		return m.Parkinsons
	}
	return ModelConfig{}
}

// StorageConfig holds the prediction history database settings.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	HistoryEnabled *bool  `yaml:"history_enabled"`
}

// HistoryEnabledOrDefault returns whether predictions are recorded; defaults to true when unset.
func (s *StorageConfig) HistoryEnabledOrDefault() bool {
	if s.HistoryEnabled != nil {
		return *s.HistoryEnabled
	}
	return true
}

// WatchConfig holds inbox directory settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	// Diseases each dropped report is diagnosed for.
	Diseases []string `yaml:"diseases"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies defaults
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Models.Directory = expandPath(cfg.Models.Directory, configDir)
	for _, m := range []*ModelConfig{&cfg.Models.Diabetes, &cfg.Models.Heart, &cfg.Models.Parkinsons} {
		if m.Path != "" {
			m.Path = expandPath(m.Path, configDir)
		}
	}
	// A bare library name is left for the dynamic loader to search.
	if strings.ContainsRune(cfg.Models.ONNXLibrary, filepath.Separator) {
		cfg.Models.ONNXLibrary = expandPath(cfg.Models.ONNXLibrary, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that defaults cannot repair.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes cannot be negative")
	}
	if cfg.Server.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second cannot be negative")
	}
	for i, d := range cfg.Watch.Diseases {
		key, err := schema.Canonical(d)
		if err != nil {
			return fmt.Errorf("watch.diseases: %w", err)
		}
		cfg.Watch.Diseases[i] = key
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. "~" and "~/..." are relative to the home
// directory; every other relative path is relative to configDir.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Join(configDir, path)
}
