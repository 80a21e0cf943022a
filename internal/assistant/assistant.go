// Package assistant answers questions about a store: it feeds the schema to
// the SQL translator, previews the rows, optionally hands the question to
// the report pipeline and records the outcome.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/agent"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/metastore"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/nlsql"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

// SchemaSource returns the schema of a store. *catalog.Catalog satisfies it.
type SchemaSource interface {
	Schema(ctx context.Context, storeID string) (catalog.SchemaMap, error)
}

// SQLRunner translates and executes a question. *nlsql.Translator satisfies it.
type SQLRunner interface {
	Run(ctx context.Context, question string, schema catalog.SchemaMap, exec nlsql.Executor, limit int) (*nlsql.Answer, error)
}

// Reporter writes a report for a question. *agent.Pipeline satisfies it.
type Reporter interface {
	Run(ctx context.Context, question, suggestedSQL string) (*agent.Report, error)
}

// ReporterFactory builds a Reporter bound to one store.
type ReporterFactory func(ctx context.Context, s *store.Store) (Reporter, error)

// History records asked questions. *metastore.DB satisfies it.
type History interface {
	RecordQuestion(ctx context.Context, q *metastore.Question) error
}

// Answer is what a question produced.
type Answer struct {
	StoreID  string        `json:"store_id"`
	Question string        `json:"question"`
	SQL      string        `json:"sql,omitempty"`
	Attempts int           `json:"attempts"`
	Result   *store.Result `json:"result,omitempty"`
	Preview  string        `json:"preview,omitempty"`
	SQLError string        `json:"sql_error,omitempty"`
	Report   *agent.Report `json:"report,omitempty"`
}

// Service answers questions against the stores of a registry.
type Service struct {
	registry  *store.Registry
	schemas   SchemaSource
	sql       SQLRunner
	reporters ReporterFactory
	history   History
	rowLimit  int
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithReporter enables the report pipeline for Ask.
func WithReporter(f ReporterFactory) Option {
	return func(s *Service) { s.reporters = f }
}

// WithHistory records every question.
func WithHistory(h History) Option {
	return func(s *Service) { s.history = h }
}

// WithRowLimit caps the rows returned by the generated SQL.
func WithRowLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rowLimit = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Service.
func New(registry *store.Registry, schemas SchemaSource, runner SQLRunner, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		schemas:  schemas,
		sql:      runner,
		rowLimit: 50,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasReporter reports whether Ask runs the report pipeline.
func (s *Service) HasReporter() bool { return s.reporters != nil }

// SQL translates question into SQL for storeID and runs it.
func (s *Service) SQL(ctx context.Context, storeID, question string) (*Answer, error) {
	ans, st, err := s.translate(ctx, storeID, question)
	if st != nil {
		s.record(ctx, ans, err)
	}
	return ans, err
}

// Ask runs SQL and then, when a reporter is configured, the report
// pipeline. A failing SQL step does not stop the pipeline, whose SQL
// developer can explore the store on its own.
func (s *Service) Ask(ctx context.Context, storeID, question string) (*Answer, error) {
	ans, st, err := s.translate(ctx, storeID, question)
	if st == nil || s.reporters == nil {
		if st != nil {
			s.record(ctx, ans, err)
		}
		return ans, err
	}
	if err != nil {
		if store.IsInput(err) {
			s.record(ctx, ans, err)
			return ans, err
		}
		ans.SQLError = err.Error()
		s.logger.Warn("SQL step failed, continuing with the report pipeline", "error", err, "store", ans.StoreID)
	}

	reporter, err := s.reporters(ctx, st)
	if err != nil {
		err = fmt.Errorf("failed to create report pipeline: %w", err)
		s.record(ctx, ans, err)
		return ans, err
	}
	report, err := reporter.Run(ctx, question, ans.SQL)
	ans.Report = report
	s.record(ctx, ans, err)
	if err != nil {
		return ans, fmt.Errorf("report pipeline failed: %w", err)
	}
	return ans, nil
}

func (s *Service) translate(ctx context.Context, storeID, question string) (*Answer, *store.Store, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil, store.ErrInput("question is empty")
	}
	st, err := s.registry.Get(storeID)
	if err != nil {
		return nil, nil, err
	}
	ans := &Answer{StoreID: st.ID(), Question: question}

	schema, err := s.schemas.Schema(ctx, st.ID())
	if err != nil {
		return ans, st, err
	}
	if len(schema) == 0 {
		return ans, st, store.ErrInput("store %q has no tables; ingest some data first", st.ID())
	}

	res, err := s.sql.Run(ctx, question, schema, st, s.rowLimit)
	if res != nil {
		ans.SQL = res.SQL
		ans.Attempts = res.Attempts
		ans.Result = res.Result
		if res.Result != nil {
			ans.Preview = store.FormatMarkdown(res.Result)
		}
	}
	return ans, st, err
}

func (s *Service) record(ctx context.Context, ans *Answer, err error) {
	if s.history == nil || ans == nil {
		return
	}
	q := &metastore.Question{
		StoreID:  ans.StoreID,
		Question: ans.Question,
		SQL:      ans.SQL,
		Attempts: ans.Attempts,
	}
	if ans.Report != nil {
		q.Report = ans.Report.Summary
	}
	if err != nil {
		q.Error = err.Error()
	} else if ans.SQLError != "" {
		q.Error = ans.SQLError
	}
	if rerr := s.history.RecordQuestion(ctx, q); rerr != nil {
		s.logger.Warn("Failed to record question", "error", rerr, "store", ans.StoreID)
	}
}
