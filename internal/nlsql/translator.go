// Package nlsql turns natural-language questions into SQL with the
// Anthropic Messages API, and can run the result with self-correction.
package nlsql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

const (
	defaultMaxTokens  = 1000
	defaultMaxRetries = 3

	systemPrompt = "You are an expert in converting natural language questions to SQL queries. " +
		"Use the provided schema to create accurate SQL queries. " +
		"The database engine is DuckDB. Reply with a single SQL statement and nothing else."
)

// MessageClient is the part of the Anthropic client the translator needs.
// *anthropic.MessageService satisfies it.
type MessageClient interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Executor runs a read-only statement. *store.Store satisfies it.
type Executor interface {
	Query(ctx context.Context, query string, limit int) (*store.Result, error)
}

// Answer is the outcome of Run.
type Answer struct {
	SQL      string        `json:"sql"`
	Attempts int           `json:"attempts"`
	Result   *store.Result `json:"result,omitempty"`
}

// Translator converts questions into SQL for a given schema.
type Translator struct {
	client     MessageClient
	model      anthropic.Model
	maxTokens  int64
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Translator.
type Option func(*Translator)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(t *Translator) {
		if model != "" {
			t.model = anthropic.Model(model)
		}
	}
}

// WithMaxTokens caps the length of each reply.
func WithMaxTokens(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.maxTokens = int64(n)
		}
	}
}

// WithMaxRetries sets how many SQL attempts Run makes before giving up.
func WithMaxRetries(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.maxRetries = n
		}
	}
}

// WithLogger sets the translator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Translator) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a Translator backed by the Anthropic API.
func New(apiKey string, opts ...Option) (*Translator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return NewWithClient(&client.Messages, opts...), nil
}

// NewWithClient creates a Translator around an existing message client.
func NewWithClient(client MessageClient, opts ...Option) *Translator {
	t := &Translator{
		client:     client,
		model:      anthropic.ModelClaudeHaiku4_5_20251001,
		maxTokens:  defaultMaxTokens,
		maxRetries: defaultMaxRetries,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate returns one SQL statement answering question against schema.
func (t *Translator) Translate(ctx context.Context, question string, schema catalog.SchemaMap) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", store.ErrInput("question is empty")
	}
	return t.generate(ctx, buildPrompt(question, schema, "", ""), 1)
}

// Run translates question, executes the SQL through exec and, when the
// database rejects it, asks again with the failing SQL and error message.
// On failure the returned Answer still carries the last SQL tried.
func (t *Translator) Run(ctx context.Context, question string, schema catalog.SchemaMap, exec Executor, limit int) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, store.ErrInput("question is empty")
	}

	ans := &Answer{}
	var lastErr error
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		prompt := buildPrompt(question, schema, "", "")
		if lastErr != nil {
			t.logger.Info("Retrying SQL generation with error correction",
				"attempt", attempt, "previous_error", lastErr.Error())
			prompt = buildPrompt(question, schema, ans.SQL, lastErr.Error())
		}

		sql, err := t.generate(ctx, prompt, attempt)
		if err != nil {
			return ans, fmt.Errorf("SQL generation failed: %w", err)
		}
		ans.SQL = sql
		ans.Attempts = attempt

		t.logger.Info("Executing generated SQL", "sql_preview", truncate(sql, 150), "attempt", attempt)
		res, err := exec.Query(ctx, sql, limit)
		if err == nil {
			ans.Result = res
			t.logger.Info("Generated SQL succeeded", "attempt", attempt, "rows", len(res.Rows))
			return ans, nil
		}
		if ctx.Err() != nil {
			return ans, ctx.Err()
		}
		lastErr = err
		t.logger.Warn("Generated SQL failed, will retry if attempts remain",
			"error", err, "sql", sql, "attempt", attempt, "max_retries", t.maxRetries)
	}

	return ans, fmt.Errorf("SQL execution failed after %d attempts: %w", ans.Attempts, lastErr)
}

func (t *Translator) generate(ctx context.Context, prompt string, attempt int) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       t.model,
		MaxTokens:   t.maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	message, err := t.client.New(ctx, params)
	if err != nil {
		t.logger.Error("Claude API call failed for SQL generation", "error", err, "attempt", attempt)
		return "", fmt.Errorf("Claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		t.logger.Error("No text content in Claude response for SQL generation", "attempt", attempt)
		return "", fmt.Errorf("no text response from Claude")
	}

	sql := ExtractSQL(text.String())
	if sql == "" {
		return "", fmt.Errorf("Claude generated an empty SQL query")
	}
	return sql, nil
}

func buildPrompt(question string, schema catalog.SchemaMap, previousSQL, sqlError string) string {
	prompt := fmt.Sprintf("Convert the following question to a SQL query using this schema:\n%s\n\nQuestion: %s",
		schema.String(), question)
	if previousSQL == "" || sqlError == "" {
		return prompt
	}
	return fmt.Sprintf(`%s

Your previous SQL query failed. Analyze the error and return a corrected query.

Previous SQL Query:
%s

Error Message:
%s

Column and table names must match the schema exactly.`, prompt, previousSQL, sqlError)
}

// ExtractSQL pulls the statement out of a model reply, dropping markdown
// code fences and a trailing semicolon.
func ExtractSQL(reply string) string {
	s := strings.TrimSpace(reply)
	if start := strings.Index(s, "```"); start >= 0 {
		body := s[start+3:]
		if nl := strings.Index(body, "\n"); nl >= 0 && !strings.ContainsAny(body[:nl], " \t") {
			body = body[nl+1:] // language tag
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		s = body
	}
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ";") {
		s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
