package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

var (
	summarizeTable string
	summarizeQuery string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize the contents of a table or query",
	Long: `The SUMMARIZE command computes a number of aggregates over all columns of a
table or query (min, max, approx_unique, avg, std, q25, q50, q75, count), and
returns these along with the column name, column type, and the percentage of
NULL values in the column. Quantiles are approximate.

Examples:
  biobank summarize --table patients
  biobank summarize --query "SELECT * FROM patients WHERE sex = 'F'"`,
	Run: func(cmd *cobra.Command, args []string) {
		var stmt string
		switch {
		case summarizeTable != "" && summarizeQuery != "":
			HandleError(fmt.Errorf("use either --table or --query"), "Conflicting parameters")
		case summarizeTable != "":
			stmt = "SUMMARIZE " + store.QuoteIdent(summarizeTable)
		case summarizeQuery != "":
			stmt = "SUMMARIZE " + summarizeQuery
		default:
			HandleError(fmt.Errorf("table or query is required"), "Missing parameter")
		}

		a := mustApp(cmd)
		defer a.cleanup()

		s, err := a.registry.Get(a.registry.DefaultID())
		if err != nil {
			a.fail(err, "Failed to open store")
		}
		res, err := s.Query(cmd.Context(), stmt, 0)
		if err != nil {
			a.fail(err, "Failed to execute summarize query")
		}
		printJSON(res)
	},
}

func init() {
	summarizeCmd.Flags().StringVarP(&summarizeTable, "table", "t", "", "Table to summarize")
	summarizeCmd.Flags().StringVarP(&summarizeQuery, "query", "q", "", "Query to summarize")
	rootCmd.AddCommand(summarizeCmd)
}
