package mapping

import (
	"strings"
)

// TableColumn is a (name, data type) pair of a table.
type TableColumn struct {
	Name string
	Type string
}

// TableDefinition is a snapshot of a table's actual or expected shape.
// PrimaryKey is empty when the table has none.
type TableDefinition struct {
	Name       string
	PrimaryKey string
	Columns    []TableColumn
}

// Column looks up a column by name.
func (d *TableDefinition) Column(name string) (TableColumn, bool) {
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return TableColumn{}, false
}

// Equal compares two definitions structurally. Names and types compare
// case-insensitively with whitespace collapsed, columns compare in order.
func (d *TableDefinition) Equal(other *TableDefinition) bool {
	if d == nil || other == nil {
		return d == other
	}
	if !strings.EqualFold(d.Name, other.Name) || !strings.EqualFold(d.PrimaryKey, other.PrimaryKey) {
		return false
	}
	if len(d.Columns) != len(other.Columns) {
		return false
	}
	for i := range d.Columns {
		if !strings.EqualFold(d.Columns[i].Name, other.Columns[i].Name) {
			return false
		}
		if NormalizeType(d.Columns[i].Type) != NormalizeType(other.Columns[i].Type) {
			return false
		}
	}
	return true
}

// NormalizeType lower-cases a column type and collapses runs of whitespace.
func NormalizeType(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}
