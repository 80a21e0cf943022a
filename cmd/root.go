package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/config"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/tui"
)

var (
	dataDir    string
	storeName  string
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "biobank",
		Short: "UK Biobank Explorer - Load CSV data and ask questions about it",
		Long: `UK Biobank Explorer loads CSV files into a local DuckDB database and
answers natural-language questions about them with Claude.

When run without commands, it launches an interactive TUI.
Use subcommands for CLI mode with JSON output.

Configuration is read from --config (YAML), then the environment
(ANTHROPIC_API_KEY, DATA_DIR, STORE_NAME, LLM_MODEL, ...), then flags.`,
		Run: func(cmd *cobra.Command, args []string) {
			runTUI(cmd)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", config.DefaultDataDir, "Directory holding the databases and logs")
	rootCmd.PersistentFlags().StringVarP(&storeName, "store", "s", config.DefaultStoreName, "Store (DuckDB file) to use, relative to the data directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Optional YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func runTUI(cmd *cobra.Command) {
	a := mustApp(cmd)

	deps := tui.Deps{
		StoreID:  a.registry.DefaultID(),
		Catalog:  a.catalog,
		Ingestor: a.ingestor,
		Logger:   a.logger,
	}
	if svc, err := a.assistant(true); err != nil {
		a.logger.Warn("Question answering disabled", "error", err)
		cmd.PrintErrf("Warning: question answering disabled: %v\n", err)
	} else {
		deps.Assistant = svc
	}

	err := tui.Run(deps)
	if err != nil {
		a.logger.Error("TUI exited with error", "error", err)
	}
	a.cleanup()
	if err != nil {
		HandleError(err, "Error running program")
	}
}
