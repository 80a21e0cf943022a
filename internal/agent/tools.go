package agent

import (
	"context"
	"strings"

	"charm.land/fantasy"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

// Toolbox exposes one store to the SQL developer stage.
type Toolbox struct {
	catalog    *catalog.Catalog
	store      *store.Store
	sampleRows int
	rowLimit   int
}

// NewToolbox creates a Toolbox for s. sampleRows rows per table are shown
// by tables_schema; execute_sql returns at most rowLimit rows.
func NewToolbox(cat *catalog.Catalog, s *store.Store, sampleRows, rowLimit int) *Toolbox {
	return &Toolbox{catalog: cat, store: s, sampleRows: sampleRows, rowLimit: rowLimit}
}

// ListTables returns the table names, comma separated.
func (t *Toolbox) ListTables(ctx context.Context) (string, error) {
	schema, err := t.catalog.Schema(ctx, t.store.ID())
	if err != nil {
		return "", err
	}
	return strings.Join(schema.Tables(), ", "), nil
}

// TablesSchema returns the definition and sample rows of the tables named
// in a comma-separated list.
func (t *Toolbox) TablesSchema(ctx context.Context, tables string) (string, error) {
	var names []string
	for _, name := range strings.Split(tables, ",") {
		if n := strings.TrimSpace(name); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", store.ErrInput("no table names given")
	}
	return t.catalog.Info(ctx, t.store.ID(), names, t.sampleRows)
}

// ExecuteSQL runs a read-only query and returns the rows as a markdown table.
func (t *Toolbox) ExecuteSQL(ctx context.Context, query string) (string, error) {
	res, err := t.store.Query(ctx, query, t.rowLimit)
	if err != nil {
		return "", err
	}
	return store.FormatMarkdown(res), nil
}

// CheckSQL plans a query without running it.
func (t *Toolbox) CheckSQL(ctx context.Context, query string) (string, error) {
	if !store.IsReadOnly(query) {
		return "", store.ErrInput("only single read-only statements are allowed")
	}
	if _, err := t.store.Explain(ctx, query); err != nil {
		return "", err
	}
	return "The query is valid.", nil
}

type noInput struct{}

type tablesInput struct {
	Tables string `json:"tables" description:"Comma-separated list of table names, e.g. patients, visits"`
}

type sqlInput struct {
	SQLQuery string `json:"sql_query" description:"A single DuckDB SQL statement"`
}

// Tools returns the toolbox as agent tools. Failures are reported back to
// the model as tool errors rather than aborting the run.
func (t *Toolbox) Tools() []fantasy.AgentTool {
	return []fantasy.AgentTool{
		fantasy.NewAgentTool(
			"list_tables",
			"List the available tables in the database",
			func(ctx context.Context, _ noInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				return toolResponse(t.ListTables(ctx))
			},
		),
		fantasy.NewAgentTool(
			"tables_schema",
			"Input is a comma-separated list of tables, output is the schema and sample rows for those tables. "+
				"Be sure that the tables actually exist by calling list_tables first!",
			func(ctx context.Context, in tablesInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				return toolResponse(t.TablesSchema(ctx, in.Tables))
			},
		),
		fantasy.NewAgentTool(
			"execute_sql",
			"Execute a SQL query against the database. Returns the result",
			func(ctx context.Context, in sqlInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				return toolResponse(t.ExecuteSQL(ctx, in.SQLQuery))
			},
		),
		fantasy.NewAgentTool(
			"check_sql",
			"Use this tool to double check if your query is correct before executing it.",
			func(ctx context.Context, in sqlInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				return toolResponse(t.CheckSQL(ctx, in.SQLQuery))
			},
		),
	}
}

func toolResponse(out string, err error) (fantasy.ToolResponse, error) {
	if err != nil {
		return fantasy.NewTextErrorResponse(err.Error()), nil
	}
	return fantasy.NewTextResponse(out), nil
}
