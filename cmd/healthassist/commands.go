package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/healthassist/internal/cli"
	"github.com/hyperjump/healthassist/internal/config"
	"github.com/hyperjump/healthassist/internal/extract"
	"github.com/hyperjump/healthassist/internal/fileid"
	"github.com/hyperjump/healthassist/internal/models"
	"github.com/hyperjump/healthassist/internal/predict"
	"github.com/hyperjump/healthassist/internal/schema"
	"github.com/hyperjump/healthassist/internal/server"
	"github.com/hyperjump/healthassist/internal/storage"
	"github.com/hyperjump/healthassist/internal/watcher"
	"github.com/hyperjump/healthassist/pkg/utils"
)

// commandError is a failed step of a command. main prints it as
// "<Action> failed: <err>" and exits 1 after the command's deferred cleanup ran.
type commandError struct {
	action string
	err    error
}

func (e *commandError) Error() string {
	if models.IsConversionError(e.err) {
		return fmt.Sprintf("%s failed: %s (%v)", e.action, models.InvalidNumberMessage, e.err)
	}
	return fmt.Sprintf("%s failed: %v", e.action, e.err)
}

func (e *commandError) Unwrap() error { return e.err }

func failure(action string, err error) error {
	return &commandError{action: action, err: err}
}

// setup loads config and creates the logger.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, "", nil, failure("Load config", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		return nil, "", nil, failure("Create logger", err)
	}
	return cfg, resolved, logger, nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, logger, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return failure("Initialize", err)
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The watcher always runs in server mode so directories can be added over the API.
	w := newInboxWatcher(ctx, cfg, cfg.Watch.Directories, components, logger)
	if err := w.Start(ctx); err != nil {
		return failure("Start watcher", err)
	}
	defer w.Stop()
	go w.SyncExistingFiles()

	srv := server.NewServer(components.Service, components.Models, cfg, logger, w,
		server.WithConfigPath(resolvedConfigPath))
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-signalChan():
		logger.Info("Shutting down...")
	case err := <-errCh:
		return failure("Server", err)
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

func newInboxWatcher(ctx context.Context, cfg *config.Config, dirs []string, c *Components, logger *zap.Logger) *watcher.Watcher {
	handler := watcher.ReportHandler(ctx, c.Service, cfg.Watch.Diseases, logger, nil)
	return watcher.NewWatcher(dirs, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(), handler, watcher.WithLogger(logger))
}

func signalChan() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	return sigChan
}

// checkOverrides rejects --set keys that are neither disease fields nor
// patient summary fields.
func checkOverrides(sch *schema.Schema, overrides map[string]string) error {
	for k := range overrides {
		switch {
		case sch.HasField(k):
		case k == "Name" || k == "Gender" || k == "Age":
		default:
			return fmt.Errorf("unknown field %q for %s (see: healthassist diseases)", k, sch.Disease)
		}
	}
	return nil
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	disease := fs.String("disease", "", "diabetes, heart or parkinsons")
	file := fs.String("file", "", "report to read fields from")
	name := fs.String("name", "", "patient to select from a tabular report")
	var sets cli.StringList
	fs.Var(&sets, "set", "manual field value Field=Value (repeatable)")
	serverURL := fs.String("server", "", "server URL (empty = load models directly)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return err
	}
	if *disease == "" {
		fs.Usage()
		return errors.New("--disease is required")
	}
	sch, err := schema.Lookup(*disease)
	if err != nil {
		return failure("Predict", err)
	}
	overrides, err := cli.ParseOverrides(sets)
	if err != nil {
		return failure("Predict", err)
	}
	if err := checkOverrides(sch, overrides); err != nil {
		return failure("Predict", err)
	}

	var d *models.Diagnosis
	if *serverURL != "" {
		client := newAPIClient(*serverURL)
		if *file != "" {
			d, err = client.report(sch.Disease, *file, *name, overrides)
		} else {
			d, err = client.predict(sch.Disease, overrides)
		}
	} else {
		cfg, _, logger, setupErr := setup(*configPath, false)
		if setupErr != nil {
			return setupErr
		}
		defer logger.Sync()
		components, initErr := initializeComponents(cfg, logger)
		if initErr != nil {
			return failure("Initialize", initErr)
		}
		defer components.Close()
		d, err = predictDirect(context.Background(), components, sch.Disease, *file, *name, overrides)
	}
	if err != nil {
		return failure("Predict", err)
	}
	if err := cli.WriteDiagnosis(os.Stdout, d, format); err != nil {
		return failure("Output", err)
	}
	return nil
}

func predictDirect(ctx context.Context, c *Components, disease, file, name string, overrides map[string]string) (*models.Diagnosis, error) {
	if file == "" {
		return c.Service.Diagnose(ctx, disease, nil, overrides)
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return c.Service.DiagnoseReport(ctx, disease, filepath.Base(file), content, name, overrides)
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	name := fs.String("name", "", "patient to select from a tabular report")
	serverURL := fs.String("server", "", "server URL (empty = read the file directly)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: healthassist extract [flags] <file>")
	}
	path := fs.Arg(0)

	var res *models.ExtractResult
	if *serverURL != "" {
		res, err = newAPIClient(*serverURL).extract(path, *name)
	} else {
		res, err = extractDirect(path, *name)
	}
	if err != nil {
		return failure("Extract", err)
	}
	if err := cli.WriteExtract(os.Stdout, res, ruleFields(), format); err != nil {
		return failure("Output", err)
	}
	return nil
}

func extractDirect(path, name string) (*models.ExtractResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := extract.NewExtractor().ExtractBytes(content, filepath.Ext(path), name)
	if err != nil {
		return nil, err
	}
	res.ReportID = fileid.ReportID(content)
	return res, nil
}

// ruleFields lists the fields the default keyword rules look for, in rule order.
func ruleFields() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range extract.DefaultRules() {
		if !seen[r.Field] {
			seen[r.Field] = true
			out = append(out, r.Field)
		}
	}
	return out
}

func runDiseases(args []string) error {
	fs := flag.NewFlagSet("diseases", flag.ExitOnError)
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return err
	}
	if err := cli.WriteDiseases(os.Stdout, schema.All(), format); err != nil {
		return failure("Output", err)
	}
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	disease := fs.String("disease", "", "only this disease")
	offset := fs.Int("offset", 0, "skip this many entries")
	limit := fs.Int("limit", 20, "maximum entries")
	del := fs.String("delete", "", "delete the prediction with this ID")
	serverURL := fs.String("server", "", "server URL (empty = open the database directly)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return err
	}
	q := models.HistoryQuery{Offset: *offset, Limit: *limit}
	if *disease != "" {
		key, err := schema.Canonical(*disease)
		if err != nil {
			return failure("History", err)
		}
		q.Disease = key
	}

	if *serverURL != "" {
		client := newAPIClient(*serverURL)
		if *del != "" {
			if err := client.deleteHistory(*del); err != nil {
				return failure("Delete", err)
			}
			fmt.Printf("Deleted %s\n", *del)
			return nil
		}
		items, err := client.history(q)
		if err != nil {
			return failure("History", err)
		}
		return writeHistory(items, format)
	}

	cfg, _, logger, err := setup(*configPath, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if !cfg.Storage.HistoryEnabledOrDefault() {
		return failure("History", errors.New("history is disabled in config"))
	}
	h, err := storage.NewSQLiteHistory(cfg.Storage.DatabasePath)
	if err != nil {
		return failure("Open history", err)
	}
	defer h.Close()
	if *del != "" {
		if err := h.DeletePrediction(context.Background(), *del); err != nil {
			return failure("Delete", err)
		}
		fmt.Printf("Deleted %s\n", *del)
		return nil
	}
	items, err := h.ListPredictions(context.Background(), q)
	if err != nil {
		return failure("History", err)
	}
	return writeHistory(items, format)
}

func writeHistory(items []*models.Prediction, format cli.OutputFormat) error {
	if err := cli.WriteHistory(os.Stdout, items, format); err != nil {
		return failure("Output", err)
	}
	return nil
}

// statusResponse mirrors GET /api/v1/status.
type statusResponse struct {
	Models           []predict.ModelInfo    `json:"models"`
	Predictions      *int64                 `json:"predictions,omitempty"`
	WatchDirectories []string               `json:"watch_directories,omitempty"`
	DiskUsageBytes   *int64                 `json:"disk_usage_bytes,omitempty"`
	Config           map[string]interface{} `json:"config,omitempty"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = load models directly)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return err
	}
	var status *statusResponse
	if *serverURL != "" {
		status, err = newAPIClient(*serverURL).status()
		if err != nil {
			return failure("Status", err)
		}
	} else {
		cfg, _, logger, err := setup(*configPath, false)
		if err != nil {
			return err
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			return failure("Initialize", err)
		}
		defer components.Close()
		status, err = localStatus(cfg, components)
		if err != nil {
			return failure("Status", err)
		}
	}

	if format == cli.OutputJSON {
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			return failure("Output", err)
		}
		return nil
	}
	for _, m := range status.Models {
		fmt.Printf("model:              %-10s %-10s %d features  %s\n", m.Disease, m.Format, m.Features, m.Path)
	}
	if status.Predictions != nil {
		fmt.Printf("predictions:        %d   # recorded in history\n", *status.Predictions)
	}
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage_bytes:   %d   # models + history on disk\n", *status.DiskUsageBytes)
	}
	for _, d := range status.WatchDirectories {
		fmt.Printf("watching:           %s\n", d)
	}
	if len(status.Config) > 0 {
		fmt.Println()
		fmt.Println("# configuration")
		for _, k := range []string{"models_directory", "database_path", "history_enabled", "max_upload_bytes"} {
			if v, ok := status.Config[k]; ok {
				fmt.Printf("%-19s %v\n", k+":", v)
			}
		}
	}
	return nil
}

func localStatus(cfg *config.Config, c *Components) (*statusResponse, error) {
	status := &statusResponse{
		Models: c.Models.Models(),
		Config: map[string]interface{}{
			"models_directory": cfg.Models.Directory,
			"database_path":    cfg.Storage.DatabasePath,
			"history_enabled":  c.History != nil,
		},
	}
	if c.History != nil {
		n, err := c.History.CountPredictions(context.Background(), "")
		if err != nil {
			return nil, err
		}
		status.Predictions = &n
	}
	if n, err := storage.DiskUsageBytes(cfg.Models.Directory, cfg.Storage.DatabasePath); err == nil {
		status.DiskUsageBytes = &n
	}
	return status, nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	var dirs cli.StringList
	fs.Var(&dirs, "dir", "inbox directory (repeatable)")
	_ = fs.Parse(args)

	cfg, _, logger, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	roots := []string(dirs)
	if len(roots) == 0 {
		roots = cfg.Watch.Directories
	}
	if len(roots) == 0 {
		return failure("Watch", errors.New("no directories: pass --dir or set watch.directories"))
	}
	for i, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			roots[i] = abs
		}
	}

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return failure("Initialize", err)
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newInboxWatcher(ctx, cfg, roots, components, logger)
	if err := w.Start(ctx); err != nil {
		return failure("Start watcher", err)
	}
	defer w.Stop()
	w.SyncExistingFiles()
	<-signalChan()
	logger.Info("Shutting down...")
	return nil
}

// argsReorder moves flags that follow positional arguments to the front so
// flag.Parse sees them ("extract report.pdf --output json").
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}
