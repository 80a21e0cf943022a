package cmd

import (
	"github.com/spf13/cobra"
)

var (
	historyLimit    int
	historyAllStore bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent ingestions and questions",
	Long: `List the most recent ingested tables and asked questions recorded in the
metastore, newest first.

Examples:
  biobank history
  biobank history --limit 5 --all`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		defer a.cleanup()

		storeID := a.registry.DefaultID()
		if historyAllStore {
			storeID = ""
		}

		ingestions, err := a.meta.Ingestions(cmd.Context(), storeID, historyLimit)
		if err != nil {
			a.fail(err, "Failed to read ingestion history")
		}
		questions, err := a.meta.Questions(cmd.Context(), storeID, historyLimit)
		if err != nil {
			a.fail(err, "Failed to read question history")
		}

		printJSON(map[string]interface{}{
			"ingestions": ingestions,
			"questions":  questions,
		})
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries of each kind")
	historyCmd.Flags().BoolVar(&historyAllStore, "all", false, "Include every store, not just the selected one")
	rootCmd.AddCommand(historyCmd)
}
