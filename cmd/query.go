package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	queryString string
	queryLimit  int
	queryWrite  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the database (DuckDB SQL)",
	Long: `Execute the requested QUERY against the DuckDB store.
By default only read-only statements are accepted (SELECT, WITH, SHOW,
DESCRIBE, SUMMARIZE, EXPLAIN, PRAGMA, VALUES, FROM). Pass --write to run any
statement, for example to drop a table.

Examples:
  biobank query --sql "SELECT * FROM patients LIMIT 5"
  biobank query --sql "SELECT sex, avg(age) FROM patients GROUP BY sex"
  biobank query --sql "SHOW TABLES"
  biobank query --write --sql "DROP TABLE visits"`,
	Run: func(cmd *cobra.Command, args []string) {
		if queryString == "" {
			HandleError(fmt.Errorf("query is required"), "Missing query parameter")
		}

		a := mustApp(cmd)
		defer a.cleanup()

		s, err := a.registry.Get(a.registry.DefaultID())
		if err != nil {
			a.fail(err, "Failed to open store")
		}

		if queryWrite {
			affected, err := s.Exec(cmd.Context(), queryString)
			if err != nil {
				a.fail(err, "Failed to execute statement")
			}
			printJSON(map[string]interface{}{"rows_affected": affected})
			return
		}

		limit := queryLimit
		if limit == 0 {
			limit = a.cfg.QueryRowLimit
		}
		res, err := s.Query(cmd.Context(), queryString, limit)
		if err != nil {
			a.fail(err, "Failed to execute query")
		}
		printJSON(res)
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryString, "sql", "q", "", "SQL query to execute (required)")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "l", 0, "Maximum rows to return (default from config, negative for all)")
	queryCmd.Flags().BoolVar(&queryWrite, "write", false, "Allow statements that modify the store")
	_ = queryCmd.MarkFlagRequired("sql")
	rootCmd.AddCommand(queryCmd)
}
