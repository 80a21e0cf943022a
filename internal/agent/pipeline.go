package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

// Role is the persona a stage's model is asked to adopt.
type Role struct {
	Name      string
	Goal      string
	Backstory string
}

// SystemPrompt renders the role as a system prompt.
func (r Role) SystemPrompt() string {
	return fmt.Sprintf("You are a %s.\n\nYour goal: %s\n\n%s", r.Name, r.Goal, r.Backstory)
}

var (
	SQLDeveloper = Role{
		Name: "Senior Database Developer",
		Goal: "Construct and execute SQL queries based on a request",
		Backstory: "You are an experienced database engineer who is master at creating efficient and complex SQL queries. " +
			"You have a deep understanding of how different databases work and how to optimize queries. " +
			"The database is DuckDB. Always call list_tables and tables_schema before writing a query, " +
			"and check_sql before execute_sql.",
	}
	DataAnalyst = Role{
		Name: "Senior Data Analyst",
		Goal: "You receive data from the database developer and analyze it",
		Backstory: "You have deep experience with analyzing datasets. " +
			"Your work is always based on the provided data and is clear, easy-to-understand and to the point. " +
			"You have attention to detail and always produce very detailed work (as long as you need).",
	}
	ReportWriter = Role{
		Name: "Senior Report Editor",
		Goal: "Write an executive summary type of report based on the work of the analyst",
		Backstory: "Your writing style is well known for clear and effective communication. " +
			"You always summarize long texts into bullet points that contain the most important details.",
	}
)

// Stage runs one step of the pipeline.
type Stage interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, prompt string) (string, error)

// Run calls f.
func (f StageFunc) Run(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// Report holds every stage's output.
type Report struct {
	Extract  string `json:"extract"`
	Analysis string `json:"analysis"`
	Summary  string `json:"summary"`
}

// Pipeline runs extract, analyze and report stages strictly in order, each
// seeing the previous stage's output.
type Pipeline struct {
	extract Stage
	analyze Stage
	report  Stage
	logger  *slog.Logger
}

// NewPipeline assembles a pipeline from its three stages.
func NewPipeline(extract, analyze, report Stage, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{extract: extract, analyze: analyze, report: report, logger: logger}
}

// Run answers question. suggestedSQL, when set, is offered to the extract
// stage as a starting point.
func (p *Pipeline) Run(ctx context.Context, question, suggestedSQL string) (*Report, error) {
	if strings.TrimSpace(question) == "" {
		return nil, store.ErrInput("question is empty")
	}

	rep := &Report{}
	steps := []struct {
		name   string
		stage  Stage
		prompt func() string
		out    *string
	}{
		{"extract", p.extract, func() string { return extractPrompt(question, suggestedSQL) }, &rep.Extract},
		{"analyze", p.analyze, func() string { return analyzePrompt(question, rep.Extract) }, &rep.Analysis},
		{"report", p.report, func() string { return reportPrompt(rep.Analysis) }, &rep.Summary},
	}

	for _, step := range steps {
		start := time.Now()
		out, err := step.stage.Run(ctx, step.prompt())
		if err != nil {
			p.logger.Error("Pipeline stage failed", "stage", step.name, "error", err)
			return rep, fmt.Errorf("%s stage: %w", step.name, err)
		}
		*step.out = strings.TrimSpace(out)
		p.logger.Info("Pipeline stage complete", "stage", step.name, "chars", len(out), "duration", time.Since(start))
	}
	return rep, nil
}

func extractPrompt(question, suggestedSQL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract data that is required for the query %s.", question)
	if suggestedSQL != "" {
		fmt.Fprintf(&b, "\n\nA query that may help as a starting point:\n%s", suggestedSQL)
	}
	b.WriteString("\n\nExpected output: Database result for the query")
	return b.String()
}

func analyzePrompt(question, extract string) string {
	return fmt.Sprintf("Analyze the data from the database and write an analysis for %s.\n\n"+
		"Expected output: Detailed analysis text\n\n"+
		"Data from the database developer:\n%s", question, extract)
}

func reportPrompt(analysis string) string {
	return "Write an executive summary of the report from the analysis. The report must be less than 100 words.\n\n" +
		"Expected output: Markdown report\n\n" +
		"Analysis from the data analyst:\n" + analysis
}
