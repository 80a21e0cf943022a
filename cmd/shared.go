package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/agent"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/assistant"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/config"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/ingest"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/logging"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/metastore"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/nlsql"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

// app bundles everything a command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *store.Registry
	meta     *metastore.DB
	catalog  *catalog.Catalog
	ingestor *ingest.Ingestor
	cleanup  func()
}

// loadConfig reads the configuration and applies command line flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("store") {
		cfg.StoreName = storeName
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initApp opens the logger, metastore and store registry.
func initApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.Setup(cfg.DataDir, cfg.SlogLevel(), cfg.SeqURL)
	if err != nil {
		return nil, err
	}
	logger.Info("Application started", "command", cmd.Name(), "data_dir", cfg.DataDir, "store", cfg.StoreName)

	meta, err := metastore.Open(cfg.MetaDBPath())
	if err != nil {
		logger.Error("Failed to open metastore", "error", err, "path", cfg.MetaDBPath())
		closeLog()
		return nil, err
	}

	registry := store.NewRegistry(cfg.DataDir,
		store.WithDefaultID(cfg.StoreName),
		store.WithLogger(logger),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		meta:     meta,
		catalog:  catalog.New(registry, catalog.WithLogger(logger)),
		ingestor: ingest.New(registry,
			ingest.WithLogger(logger),
			ingest.WithRecorder(meta),
		),
		cleanup: sync.OnceFunc(func() {
			if err := meta.Close(); err != nil {
				logger.Warn("Failed to close metastore", "error", err)
			}
			closeLog()
		}),
	}, nil
}

// fail releases the app and exits through HandleError.
func (a *app) fail(err error, message string) {
	a.logger.Error(message, "error", err)
	a.cleanup()
	HandleError(err, message)
}

// mustApp is initApp for Run functions.
func mustApp(cmd *cobra.Command) *app {
	a, err := initApp(cmd)
	if err != nil {
		HandleError(err, "Failed to initialize")
	}
	return a
}

// assistant builds the question answering service. The report pipeline is
// only attached when withReports is set. It fails without an API key.
func (a *app) assistant(withReports bool) (*assistant.Service, error) {
	translator, err := nlsql.New(a.cfg.APIKey,
		nlsql.WithModel(a.cfg.Model),
		nlsql.WithMaxTokens(a.cfg.MaxTokens),
		nlsql.WithMaxRetries(a.cfg.SQLMaxRetries),
		nlsql.WithLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("%w (set ANTHROPIC_API_KEY)", err)
	}

	opts := []assistant.Option{
		assistant.WithHistory(a.meta),
		assistant.WithRowLimit(a.cfg.QueryRowLimit),
		assistant.WithLogger(a.logger),
	}
	if withReports {
		opts = append(opts, assistant.WithReporter(a.reporterFactory()))
	}
	return assistant.New(a.registry, a.catalog, translator, opts...), nil
}

func (a *app) reporterFactory() assistant.ReporterFactory {
	return func(ctx context.Context, s *store.Store) (assistant.Reporter, error) {
		toolbox := agent.NewToolbox(a.catalog, s, a.cfg.SampleRows, a.cfg.QueryRowLimit)
		crew, err := agent.NewCrew(ctx, toolbox,
			agent.WithAPIKey(a.cfg.APIKey),
			agent.WithModel(a.cfg.Model),
			agent.WithLogger(a.logger),
		)
		if err != nil {
			return nil, err
		}
		return crew, nil
	}
}

// HandleError prints error and exits
func HandleError(err error, message string) {
	fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), message, err)
	os.Exit(1)
}

// printJSON writes v to stdout as indented JSON
func printJSON(v interface{}) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		HandleError(err, "Failed to encode JSON")
	}
	fmt.Println(string(output))
}
