package config

import "github.com/hyperjump/healthassist/internal/schema"

// Default values applied by ApplyDefaults.
const (
	DefaultHost                  = "localhost"
	DefaultPort                  = 8080
	DefaultMaxUploadBytes        = 10 << 20
	DefaultRequestTimeoutSeconds = 30
	DefaultModelsDirectory       = "./saved_models"
	DefaultDatabasePath          = "/usr/local/var/healthassist/data/history.db"
)

// DefaultExtensions are the report formats picked up by the inbox watcher.
var DefaultExtensions = []string{".csv", ".xlsx", ".pdf", ".docx", ".txt"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if cfg.Server.RateLimit.RequestsPerSecond > 0 && cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = int(cfg.Server.RateLimit.RequestsPerSecond) + 1
	}
	if cfg.Models.Directory == "" {
		cfg.Models.Directory = DefaultModelsDirectory
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = DefaultDatabasePath
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Watch.Diseases == nil {
		cfg.Watch.Diseases = schema.Diseases()
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
