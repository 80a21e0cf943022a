package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var sqlCmd = &cobra.Command{
	Use:   "sql [question]",
	Short: "Translate a question into SQL with Claude and run it",
	Long: `Translate a natural language question into a DuckDB query using the schema
of the store, run it and print the SQL together with the rows. When the
database rejects the query, Claude is asked again with the error message, up
to SQL_MAX_RETRIES attempts.

Requires ANTHROPIC_API_KEY environment variable to be set.

Examples:
  biobank sql "How many patients are there per sex?"
  biobank sql "What is the most common diagnosis?"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		defer a.cleanup()

		svc, err := a.assistant(false)
		if err != nil {
			a.fail(err, "Failed to create translator")
		}

		ans, err := svc.SQL(cmd.Context(), a.registry.DefaultID(), strings.Join(args, " "))
		if err != nil {
			if ans != nil && ans.SQL != "" {
				printJSON(ans)
			}
			a.fail(err, "Failed to answer question")
		}
		printJSON(ans)
	},
}

func init() {
	rootCmd.AddCommand(sqlCmd)
}
