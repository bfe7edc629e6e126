// Package main is the healthassist CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/healthassist/internal/config"
	"github.com/hyperjump/healthassist/internal/diagnosis"
	"github.com/hyperjump/healthassist/internal/predict"
	"github.com/hyperjump/healthassist/internal/schema"
	"github.com/hyperjump/healthassist/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/healthassist/config.yaml"

// loadConfig loads config from path. When path is the default and does not
// exist, ./config.yaml is tried; when neither exists the built-in defaults are
// used. Returns the path actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); err != nil {
			if cwd, cwdErr := os.Getwd(); cwdErr == nil {
				fallback := filepath.Join(cwd, "config.yaml")
				if _, statErr := os.Stat(fallback); statErr == nil {
					cfg, loadErr := config.Load(fallback)
					if loadErr != nil {
						return nil, "", loadErr
					}
					return cfg, fallback, nil
				}
			}
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run dispatches a subcommand. Commands return instead of exiting so their
// deferred cleanup always runs.
func run(command string, args []string) error {
	switch command {
	case "server":
		return runServer(args)
	case "predict":
		return runPredict(args)
	case "extract":
		return runExtract(args)
	case "diseases":
		return runDiseases(args)
	case "history":
		return runHistory(args)
	case "status":
		return runStatus(args)
	case "watch":
		return runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("healthassist version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}

// Components holds the long-lived objects built from config.
type Components struct {
	Models  *predict.Store
	History storage.History
	Service *diagnosis.Service
}

// Close releases models and the history database.
func (c *Components) Close() {
	if c.Models != nil {
		_ = c.Models.Close()
	}
	if c.History != nil {
		_ = c.History.Close()
	}
}

// modelSpecs builds one spec per disease: the configured path, or the
// conventional file name inside models.directory.
func modelSpecs(cfg *config.Config) ([]predict.ModelSpec, error) {
	specs := make([]predict.ModelSpec, 0, 3)
	for _, disease := range schema.Diseases() {
		mc := cfg.Models.For(disease)
		path := mc.Path
		if path == "" {
			resolved, err := predict.ResolvePath(cfg.Models.Directory, disease)
			if err != nil {
				return nil, err
			}
			path = resolved
		}
		specs = append(specs, predict.ModelSpec{
			Disease:    disease,
			Path:       path,
			SHA256:     mc.SHA256,
			InputName:  mc.InputName,
			OutputName: mc.OutputName,
		})
	}
	return specs, nil
}

// initializeComponents loads every model and, when enabled, opens the history store.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	specs, err := modelSpecs(cfg)
	if err != nil {
		return nil, err
	}
	opts := []predict.StoreOption{predict.WithLogger(logger)}
	if cfg.Models.ONNXLibrary != "" {
		opts = append(opts, predict.WithONNXLibrary(cfg.Models.ONNXLibrary))
	}
	store, err := predict.LoadStore(specs, opts...)
	if err != nil {
		return nil, err
	}
	c := &Components{Models: store}

	svcOpts := []diagnosis.Option{diagnosis.WithLogger(logger)}
	if cfg.Storage.HistoryEnabledOrDefault() {
		h, err := storage.NewSQLiteHistory(cfg.Storage.DatabasePath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		c.History = h
		svcOpts = append(svcOpts, diagnosis.WithHistory(h))
		logger.Info("history enabled", zap.String("database_path", cfg.Storage.DatabasePath))
	}
	c.Service = diagnosis.NewService(store, svcOpts...)
	return c, nil
}

func printUsage() {
	fmt.Println(`healthassist - Disease prediction from patient records and lab reports

Usage:
  healthassist server [flags]             Start the HTTP server
  healthassist predict [flags]            Diagnose one patient
  healthassist extract [flags] <file>     Show the fields read from a report
  healthassist diseases [flags]           List diseases and their input fields
  healthassist history [flags]            List recorded predictions
  healthassist status [flags]             Show loaded models and history size
  healthassist watch [flags]              Diagnose reports dropped into inbox directories
  healthassist version                    Show version
  healthassist help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/healthassist/config.yaml)
  --debug            Enable debug logging

Predict Flags:
  --disease string   diabetes, heart or parkinsons (required)
  --file string      CSV, XLSX, PDF, DOCX or TXT report to read fields from
  --name string      Patient to select from a CSV/XLSX report (default: first row)
  --set Field=Value  Manual field value; overrides the report (repeatable)
  --server string    Server URL; empty (default) loads the models directly
  --output string    Output format: text or json (default: text)

Extract Flags:
  --name string      Patient to select from a CSV/XLSX report
  --server string    Server URL; empty (default) reads the file directly
  --output string    Output format: text or json

History Flags:
  --disease string   Only this disease
  --offset int       Skip this many entries
  --limit int        Maximum entries (default: 20)
  --delete string    Delete the prediction with this ID
  --server string    Server URL; empty (default) opens the database directly
  --output string    Output format: text or json

Status Flags:
  --server string    Server URL; empty (default) loads the models directly
  --output string    Output format: text or json

Watch Flags:
  --dir string       Inbox directory (repeatable; default: watch.directories from config)

Examples:
  healthassist server
  healthassist predict --disease diabetes --set Glucose=148 --set BMI=33.6 --set Age=50
  healthassist predict --disease heart --file patients.csv --name "Alice"
  healthassist predict --disease parkinsons --file voice_report.pdf --output json
  healthassist predict --server http://localhost:8080 --disease diabetes --file lab.pdf
  healthassist extract --name Bob patients.xlsx
  healthassist history --disease heart --limit 5
  healthassist watch --dir ./inbox`)
}
