package models

import (
	"encoding/json"
	"fmt"
)

// Table is a labeled two-dimensional table: rows by named, typed columns.
// Rows are implicitly indexed 0..n-1; IndexName labels that row index and
// ColumnsName labels the column axis.
type Table struct {
	IndexName   string
	ColumnsName string
	Columns     []*Column
}

// NewTable builds a table from columns of equal length with unique names.
func NewTable(columns ...*Column) (*Table, error) {
	t := &Table{}
	for _, c := range columns {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Rows returns the number of rows.
func (t *Table) Rows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AddColumn appends a column. Its length must match the existing rows.
func (t *Table) AddColumn(c *Column) error {
	if c == nil {
		return fmt.Errorf("column must not be nil")
	}
	if t.Column(c.Name) != nil {
		return fmt.Errorf("duplicate column %q", c.Name)
	}
	if len(t.Columns) > 0 && c.Len() != t.Rows() {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.Rows())
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// SetColumn replaces the named column, or appends it when absent.
func (t *Table) SetColumn(c *Column) error {
	for i, existing := range t.Columns {
		if existing.Name == c.Name {
			if c.Len() != t.Rows() {
				return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.Rows())
			}
			t.Columns[i] = c
			return nil
		}
	}
	return t.AddColumn(c)
}

// Select returns a new table holding the given rows in the given order.
func (t *Table) Select(rows []int) *Table {
	out := &Table{IndexName: t.IndexName, ColumnsName: t.ColumnsName}
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, c.Select(rows))
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{IndexName: t.IndexName, ColumnsName: t.ColumnsName}
	for _, c := range t.Columns {
		out.Columns = append(out.Columns, c.Clone())
	}
	return out
}

// tableJSON is the generic wire form. The column-axis label is not carried;
// readers that need it restore it themselves.
type tableJSON struct {
	IndexName string    `json:"index_name,omitempty"`
	Columns   []*Column `json:"columns"`
}

// MarshalJSON encodes columns with their type tags and the row index label.
func (t *Table) MarshalJSON() ([]byte, error) {
	cols := t.Columns
	if cols == nil {
		cols = []*Column{}
	}
	return json.Marshal(tableJSON{IndexName: t.IndexName, Columns: cols})
}

// UnmarshalJSON decodes a table and checks that all columns have equal length.
func (t *Table) UnmarshalJSON(b []byte) error {
	var wire tableJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	out := &Table{IndexName: wire.IndexName}
	for _, c := range wire.Columns {
		if err := out.AddColumn(c); err != nil {
			return err
		}
	}
	*t = *out
	return nil
}
