package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/ingest"
)

var forceIngest bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Load CSV files into the store, one table per file",
	Long: `Load one or more CSV files into the DuckDB store. Each file becomes a table
named after the file (without extension); an existing table with that name is
replaced. Paths may also be given as a single comma separated list, and may be
http(s) URLs to CSV files or zip archives of CSV files.

Loading the same unchanged files again is skipped unless --force is set.

Examples:
  biobank ingest data/patients.csv data/visits.csv
  biobank ingest data/patients.csv,data/visits.csv
  biobank ingest --store cohort.duckdb https://example.org/extract.zip`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		defer a.cleanup()

		res, err := a.ingestor.Load(cmd.Context(), a.registry.DefaultID(), splitArgs(args), ingest.LoadOptions{Force: forceIngest})
		if err != nil {
			a.fail(err, "Failed to ingest files")
		}
		printJSON(res)
	},
}

// splitArgs flattens arguments that hold comma separated lists. Blank
// entries are kept so that the ingestor can reject them.
func splitArgs(args []string) []string {
	var out []string
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

func init() {
	ingestCmd.Flags().BoolVarP(&forceIngest, "force", "f", false, "Reload files even when unchanged")
	rootCmd.AddCommand(ingestCmd)
}
