package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// QueryError reports a statement the database rejected.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string { return "query failed: " + e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }

// Result holds the rows returned by a read-only statement.
type Result struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

var readOnlyKeywords = map[string]bool{
	"SELECT":    true,
	"WITH":      true,
	"SHOW":      true,
	"DESCRIBE":  true,
	"SUMMARIZE": true,
	"EXPLAIN":   true,
	"PRAGMA":    true,
	"VALUES":    true,
	"FROM":      true,
	"TABLE":     true,
}

// IsReadOnly reports whether query is a single statement that starts with
// a keyword that cannot modify the store. EXPLAIN ANALYZE runs the
// statement it explains, so it only passes when that statement does.
func IsReadOnly(query string) bool {
	stmt, ok := singleStatement(query)
	if !ok {
		return false
	}
	word, rest := leadingKeyword(strings.TrimLeft(stmt, "( \t\r\n"))
	if word != "EXPLAIN" {
		return readOnlyKeywords[word]
	}

	rest = strings.TrimLeft(rest, " \t\r\n")
	if strings.HasPrefix(rest, "(") {
		end := strings.IndexByte(rest, ')')
		if end == -1 || strings.Contains(strings.ToUpper(rest[:end]), "ANALY") {
			return false
		}
		rest = rest[end+1:]
	}
	switch next, _ := leadingKeyword(strings.TrimLeft(rest, " \t\r\n")); next {
	case "ANALYZE", "ANALYSE":
		return false
	}
	return IsReadOnly(rest)
}

// leadingKeyword splits the first run of letters off stmt, upper-cased.
func leadingKeyword(stmt string) (string, string) {
	end := strings.IndexFunc(stmt, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end == -1 {
		end = len(stmt)
	}
	return strings.ToUpper(stmt[:end]), stmt[end:]
}

// singleStatement strips comments and a trailing semicolon from query and
// reports false when more than one statement remains.
func singleStatement(query string) (string, bool) {
	var b strings.Builder
	var quote rune
	semicolon := false
	runes := []rune(query)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			b.WriteRune(' ')
			continue
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			b.WriteRune(' ')
			continue
		case r == ';':
			semicolon = true
			continue
		}
		if semicolon && !isSpace(r) {
			return "", false
		}
		b.WriteRune(r)
	}
	stmt := strings.TrimSpace(b.String())
	return stmt, stmt != ""
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Query runs a read-only statement over a read-only connection and returns
// at most limit rows. A limit of zero or less returns every row.
func (s *Store) Query(ctx context.Context, query string, limit int) (*Result, error) {
	if !IsReadOnly(query) {
		return nil, ErrInput("only single read-only statements are allowed")
	}

	var res *Result
	err := s.ConnReadOnly(ctx, func(db *sql.DB) error {
		var err error
		res, err = ReadRows(ctx, db, query, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Executed read-only query", "columns", len(res.Columns), "rows", len(res.Rows), "truncated", res.Truncated)
	return res, nil
}

// ReadRows runs query on an already open database and collects at most
// limit rows. It does no read-only check.
func ReadRows(ctx context.Context, db *sql.DB, query string, limit int) (*Result, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{SQL: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}
	res := &Result{Columns: columns, Rows: [][]any{}}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = normalizeValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: query, Err: err}
	}
	return res, nil
}

// Exec runs any statement against the store and returns the affected row
// count. The write is recorded even when the statement fails.
func (s *Store) Exec(ctx context.Context, query string) (int64, error) {
	if strings.TrimSpace(query) == "" {
		return 0, ErrInput("statement is empty")
	}

	var affected int64
	_, err := s.Write(ctx, func(db *sql.DB) error {
		r, err := db.ExecContext(ctx, query)
		if err != nil {
			return &QueryError{SQL: query, Err: err}
		}
		if n, err := r.RowsAffected(); err == nil {
			affected = n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Executed statement", "rows_affected", affected)
	return affected, nil
}

// Explain asks the planner for the plan of query without running it.
func (s *Store) Explain(ctx context.Context, query string) (string, error) {
	stmt, ok := singleStatement(query)
	if !ok {
		return "", ErrInput("expected a single statement")
	}

	var res *Result
	err := s.ConnReadOnly(ctx, func(db *sql.DB) error {
		var err error
		res, err = ReadRows(ctx, db, "EXPLAIN "+stmt, 0)
		return err
	})
	if err != nil {
		return "", err
	}

	plan := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) > 0 {
			plan = append(plan, fmt.Sprint(row[len(row)-1]))
		}
	}
	return strings.Join(plan, "\n"), nil
}

// normalizeValue converts driver values into types that render cleanly
// as JSON and text.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case bool, string, int8, int16, int32, int64, int, uint8, uint16, uint32, uint64, float32, float64:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return t
	}
}

// QuoteIdent quotes name as a SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes s as a SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
