package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/agent"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/catalog"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/metastore"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/nlsql"
	"github.com/JayThibs/uk-bio-bank-chat-app/internal/store"
)

type fakeSchemas struct {
	schema catalog.SchemaMap
	err    error
}

func (f *fakeSchemas) Schema(context.Context, string) (catalog.SchemaMap, error) {
	return f.schema, f.err
}

// fakeRunner executes a fixed statement through the executor it is given.
type fakeRunner struct {
	sql   string
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, _ string, _ catalog.SchemaMap, exec nlsql.Executor, limit int) (*nlsql.Answer, error) {
	f.calls++
	ans := &nlsql.Answer{SQL: f.sql, Attempts: 1}
	res, err := exec.Query(ctx, f.sql, limit)
	if err != nil {
		return ans, err
	}
	ans.Result = res
	return ans, nil
}

type fakeReporter struct {
	gotSQL string
	err    error
}

func (f *fakeReporter) Run(_ context.Context, _ string, suggestedSQL string) (*agent.Report, error) {
	f.gotSQL = suggestedSQL
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Report{Extract: "rows", Analysis: "analysis", Summary: "- summary"}, nil
}

type fakeHistory struct {
	questions []metastore.Question
}

func (f *fakeHistory) RecordQuestion(_ context.Context, q *metastore.Question) error {
	f.questions = append(f.questions, *q)
	return nil
}

func setupRegistry(t *testing.T) *store.Registry {
	t.Helper()
	reg := store.NewRegistry(t.TempDir())
	s, err := reg.Get("")
	require.NoError(t, err)
	_, err = s.Exec(context.Background(), "CREATE TABLE patients AS SELECT * FROM (VALUES (1, 54, 'F'), (2, 61, 'M')) t(id, age, sex)")
	require.NoError(t, err)
	return reg
}

var patientsSchema = catalog.SchemaMap{"patients": {"id", "age", "sex"}}

func TestServiceSQL(t *testing.T) {
	reg := setupRegistry(t)
	hist := &fakeHistory{}
	runner := &fakeRunner{sql: "SELECT sex FROM patients ORDER BY id"}
	svc := New(reg, &fakeSchemas{schema: patientsSchema}, runner, WithHistory(hist), WithRowLimit(1))

	ans, err := svc.SQL(context.Background(), "", "which sexes are there?")
	require.NoError(t, err)

	assert.Equal(t, store.DefaultID, ans.StoreID)
	assert.Equal(t, runner.sql, ans.SQL)
	assert.Equal(t, 1, ans.Attempts)
	require.NotNil(t, ans.Result)
	assert.Len(t, ans.Result.Rows, 1)
	assert.True(t, ans.Result.Truncated)
	assert.Contains(t, ans.Preview, "| sex |")
	assert.Nil(t, ans.Report)

	require.Len(t, hist.questions, 1)
	assert.Equal(t, "which sexes are there?", hist.questions[0].Question)
	assert.Empty(t, hist.questions[0].Error)
}

func TestServiceSQLErrors(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	t.Run("empty question", func(t *testing.T) {
		hist := &fakeHistory{}
		svc := New(reg, &fakeSchemas{schema: patientsSchema}, &fakeRunner{}, WithHistory(hist))
		_, err := svc.SQL(ctx, "", "  ")
		assert.True(t, store.IsInput(err))
		assert.Empty(t, hist.questions)
	})

	t.Run("empty store", func(t *testing.T) {
		runner := &fakeRunner{}
		svc := New(reg, &fakeSchemas{schema: catalog.SchemaMap{}}, runner)
		_, err := svc.SQL(ctx, "", "how many patients?")
		assert.True(t, store.IsInput(err))
		assert.Zero(t, runner.calls)
	})

	t.Run("schema unavailable", func(t *testing.T) {
		svc := New(reg, &fakeSchemas{err: store.WrapIO(errors.New("locked"), "failed to reach store")}, &fakeRunner{})
		_, err := svc.SQL(ctx, "", "how many patients?")
		assert.True(t, store.IsIO(err))
	})

	t.Run("bad sql is recorded", func(t *testing.T) {
		hist := &fakeHistory{}
		svc := New(reg, &fakeSchemas{schema: patientsSchema}, &fakeRunner{sql: "SELECT weight FROM patients"}, WithHistory(hist))
		ans, err := svc.SQL(ctx, "", "average weight?")
		require.Error(t, err)
		assert.Equal(t, "SELECT weight FROM patients", ans.SQL)
		require.Len(t, hist.questions, 1)
		assert.NotEmpty(t, hist.questions[0].Error)
	})
}

func TestServiceAskWithReporter(t *testing.T) {
	reg := setupRegistry(t)
	hist := &fakeHistory{}
	rep := &fakeReporter{}
	var boundTo string
	factory := func(_ context.Context, s *store.Store) (Reporter, error) {
		boundTo = s.ID()
		return rep, nil
	}
	svc := New(reg, &fakeSchemas{schema: patientsSchema}, &fakeRunner{sql: "SELECT avg(age) FROM patients"},
		WithReporter(factory), WithHistory(hist))
	require.True(t, svc.HasReporter())

	ans, err := svc.Ask(context.Background(), "", "average age?")
	require.NoError(t, err)
	assert.Equal(t, store.DefaultID, boundTo)
	assert.Equal(t, "SELECT avg(age) FROM patients", rep.gotSQL)
	require.NotNil(t, ans.Report)
	assert.Equal(t, "- summary", ans.Report.Summary)

	require.Len(t, hist.questions, 1)
	assert.Equal(t, "- summary", hist.questions[0].Report)
}

func TestServiceAskContinuesAfterSQLFailure(t *testing.T) {
	reg := setupRegistry(t)
	hist := &fakeHistory{}
	rep := &fakeReporter{}
	factory := func(context.Context, *store.Store) (Reporter, error) { return rep, nil }
	svc := New(reg, &fakeSchemas{schema: patientsSchema}, &fakeRunner{sql: "SELECT weight FROM patients"},
		WithReporter(factory), WithHistory(hist))

	ans, err := svc.Ask(context.Background(), "", "average weight?")
	require.NoError(t, err)
	assert.NotEmpty(t, ans.SQLError)
	assert.NotNil(t, ans.Report)
	require.Len(t, hist.questions, 1)
	assert.Equal(t, ans.SQLError, hist.questions[0].Error)
}

func TestServiceAskReporterFailure(t *testing.T) {
	reg := setupRegistry(t)
	hist := &fakeHistory{}
	factory := func(context.Context, *store.Store) (Reporter, error) {
		return &fakeReporter{err: errors.New("overloaded")}, nil
	}
	svc := New(reg, &fakeSchemas{schema: patientsSchema}, &fakeRunner{sql: "SELECT 1"},
		WithReporter(factory), WithHistory(hist))

	ans, err := svc.Ask(context.Background(), "", "anything?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
	assert.Equal(t, "SELECT 1", ans.SQL)
	require.Len(t, hist.questions, 1)
	assert.Contains(t, hist.questions[0].Error, "overloaded")
}

func TestServiceAskWithoutReporter(t *testing.T) {
	reg := setupRegistry(t)
	svc := New(reg, &fakeSchemas{schema: patientsSchema}, &fakeRunner{sql: "SELECT count(*) AS n FROM patients"})
	assert.False(t, svc.HasReporter())

	ans, err := svc.Ask(context.Background(), "", "how many?")
	require.NoError(t, err)
	assert.Nil(t, ans.Report)
	assert.Contains(t, ans.Preview, "| 2 |")
}
