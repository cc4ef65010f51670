// Package models provides the row model shared by loaders, operators and
// consumers. A Table is a Schema plus Rows; each Row is positional and lines up
// with the schema's column order.
package models

import (
	"fmt"
	"strings"
)

// Row is one sample. Values line up with the owning Schema's columns.
type Row []interface{}

// Clone returns a shallow copy of the row
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Schema is an ordered list of column names with a name index.
// A Schema is immutable once built and may be shared between buffers.
type Schema struct {
	columns []string
	index   map[string]int
}

// NewSchema builds a schema. Column names must be non-empty and unique.
func NewSchema(columns ...string) (*Schema, error) {
	s := &Schema{
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := s.index[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		s.columns[i] = c
		s.index[c] = i
	}
	return s, nil
}

// MustSchema is NewSchema for static column lists; it panics on invalid input.
func MustSchema(columns ...string) *Schema {
	s, err := NewSchema(columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Columns returns the column names in order
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Len returns the number of columns
func (s *Schema) Len() int {
	return len(s.columns)
}

// Index returns the position of a column
func (s *Schema) Index(column string) (int, bool) {
	i, ok := s.index[column]
	return i, ok
}

// Column returns the name at position i
func (s *Schema) Column(i int) string {
	return s.columns[i]
}

// Equal reports whether both schemas list the same columns in the same order
func (s *Schema) Equal(other *Schema) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil || len(s.columns) != len(other.columns) {
		return false
	}
	for i := range s.columns {
		if s.columns[i] != other.columns[i] {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	if s == nil {
		return "[]"
	}
	return "[" + strings.Join(s.columns, ", ") + "]"
}

// Table is a fully materialized row set, as produced by a loader
type Table struct {
	Schema *Schema
	Rows   []Row
}

// NumRows returns the number of rows
func (t *Table) NumRows() int64 {
	if t == nil {
		return 0
	}
	return int64(len(t.Rows))
}

// Validate checks that every row has one value per column
func (t *Table) Validate() error {
	if t.Schema == nil {
		return fmt.Errorf("table has no schema")
	}
	for i, r := range t.Rows {
		if len(r) != t.Schema.Len() {
			return fmt.Errorf("row %d has %d values, schema has %d columns", i, len(r), t.Schema.Len())
		}
	}
	return nil
}

// Record converts a row to a column-keyed map, mainly for JSON output
func (s *Schema) Record(r Row) map[string]interface{} {
	m := make(map[string]interface{}, len(s.columns))
	for i, c := range s.columns {
		if i < len(r) {
			m[c] = r[i]
		}
	}
	return m
}
