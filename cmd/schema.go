package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
)

var (
	schemaDetail bool
	schemaTable  string
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Retrieve a summary of the DuckDB database schema",
	Long: `Retrieve a summary of the local DuckDB database schema.
By default this prints a map of table name to column names, in column order.
With --detail, column types, nullability and row counts are included.

Examples:
  biobank schema
  biobank schema --detail
  biobank schema --table patients`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		defer a.cleanup()

		ctx := cmd.Context()
		storeID := a.registry.DefaultID()

		if schemaTable != "" {
			detail, err := a.catalog.Describe(ctx, storeID, schemaTable)
			if err != nil {
				a.fail(err, "Failed to describe table")
			}
			printJSON(detail)
			return
		}

		schema, err := a.catalog.Schema(ctx, storeID)
		if err != nil {
			a.fail(err, "Failed to read schema")
		}
		if !schemaDetail {
			printJSON(schema)
			return
		}

		details := make([]*catalog.TableDetail, 0, len(schema))
		for _, table := range schema.Tables() {
			detail, err := a.catalog.Describe(ctx, storeID, table)
			if err != nil {
				a.fail(err, "Failed to describe table "+table)
			}
			details = append(details, detail)
		}
		printJSON(details)
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaDetail, "detail", false, "Include column types, nullability and row counts")
	schemaCmd.Flags().StringVarP(&schemaTable, "table", "t", "", "Describe a single table")
	rootCmd.AddCommand(schemaCmd)
}
