// Package catalog reports which tables a store holds and the columns of
// each, in physical order.
package catalog

import (
	"sort"
	"strings"
)

// SchemaMap maps each table name to its column names in physical order.
type SchemaMap map[string][]string

// Tables returns the table names in lexical order.
func (m SchemaMap) Tables() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the map one table per line, e.g. "patients(id, age, sex)".
// This is the form handed to the SQL translator as context.
func (m SchemaMap) String() string {
	var b strings.Builder
	for i, name := range m.Tables() {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name)
		b.WriteString("(")
		b.WriteString(strings.Join(m[name], ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Clone returns a deep copy.
func (m SchemaMap) Clone() SchemaMap {
	out := make(SchemaMap, len(m))
	for name, cols := range m {
		out[name] = append([]string(nil), cols...)
	}
	return out
}

// Column describes one column of a table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableDetail is the detailed description of one table.
type TableDetail struct {
	TableName   string   `json:"table_name"`
	ColumnCount int      `json:"column_count"`
	RowCount    int64    `json:"row_count"`
	Columns     []Column `json:"columns"`
}
