package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	askNoReport bool
	askMarkdown bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the data using Claude AI",
	Long: `Ask a natural language question about the loaded data. The question is first
translated into SQL and run; then a crew of three agents (a database developer
with access to the store, a data analyst and a report editor) writes a short
report.

Requires ANTHROPIC_API_KEY environment variable to be set.

Examples:
  biobank ask "What is the average age of patients by sex?"
  biobank ask --markdown "Which diagnoses are most common among older patients?"
  biobank ask --no-report "How many visits are recorded?"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		defer a.cleanup()

		svc, err := a.assistant(!askNoReport)
		if err != nil {
			a.fail(err, "Failed to create assistant")
		}

		question := strings.Join(args, " ")
		a.logger.Info("Question received", "question", question, "report", !askNoReport)

		ans, err := svc.Ask(cmd.Context(), a.registry.DefaultID(), question)
		if err != nil {
			if ans != nil && (ans.SQL != "" || ans.Report != nil) {
				printJSON(ans)
			}
			a.fail(err, "Failed to answer question")
		}

		if askMarkdown && ans.Report != nil {
			out, err := glamour.Render(ans.Report.Summary, "auto")
			if err != nil {
				a.fail(err, "Failed to render report")
			}
			fmt.Print(out)
			return
		}
		printJSON(ans)
	},
}

func init() {
	askCmd.Flags().BoolVar(&askNoReport, "no-report", false, "Only translate and run SQL, skip the report agents")
	askCmd.Flags().BoolVar(&askMarkdown, "markdown", false, "Print the rendered report instead of JSON")
	rootCmd.AddCommand(askCmd)
}
