package schema

import (
	"fmt"
	"strings"

	"github.com/ggmueller/marten/internal/mapping"
)

// HiLoTable holds the high values of integer id sequences, one row per
// document type.
const HiLoTable = "mt_hilo"

// CreateTable renders the create statement of a table.
func CreateTable(schema string, def *mapping.TableDefinition) string {
	lines := make([]string, 0, len(def.Columns)+1)
	for _, c := range def.Columns {
		line := "    " + c.Name + " " + c.Type
		if c.Name == def.PrimaryKey {
			line += " not null"
		}
		lines = append(lines, line)
	}
	if def.PrimaryKey != "" {
		lines = append(lines, "    primary key ("+def.PrimaryKey+")")
	}
	return fmt.Sprintf("create table if not exists %s.%s (\n%s\n);\n", schema, def.Name, strings.Join(lines, ",\n"))
}

// DropTable renders the drop statement of a table.
func DropTable(schema, table string) string {
	return fmt.Sprintf("drop table if exists %s.%s;\n", schema, table)
}

// AddColumn renders an alter statement appending a column.
func AddColumn(schema, table string, c mapping.TableColumn) string {
	return fmt.Sprintf("alter table %s.%s add column %s %s;\n", schema, table, c.Name, c.Type)
}

// HiLoDefinition is the expected shape of the HiLo table.
func HiLoDefinition() *mapping.TableDefinition {
	return &mapping.TableDefinition{
		Name:       HiLoTable,
		PrimaryKey: "entity_name",
		Columns: []mapping.TableColumn{
			{Name: "entity_name", Type: "character varying"},
			{Name: "hi_value", Type: "bigint"},
		},
	}
}

// diff describes how actual differs from expected, one entry per problem.
func diff(expected, actual *mapping.TableDefinition) []string {
	var out []string
	if !strings.EqualFold(expected.PrimaryKey, actual.PrimaryKey) {
		out = append(out, fmt.Sprintf("primary key is %q, expected %q", actual.PrimaryKey, expected.PrimaryKey))
	}
	for i, want := range expected.Columns {
		got, ok := actual.Column(want.Name)
		switch {
		case !ok:
			out = append(out, "missing column "+want.Name)
		case mapping.NormalizeType(got.Type) != mapping.NormalizeType(want.Type):
			out = append(out, fmt.Sprintf("column %s is %s, expected %s", want.Name, got.Type, want.Type))
		case i >= len(actual.Columns) || !strings.EqualFold(actual.Columns[i].Name, want.Name):
			out = append(out, fmt.Sprintf("column %s is out of order", want.Name))
		}
	}
	for _, got := range actual.Columns {
		if _, ok := expected.Column(got.Name); !ok {
			out = append(out, "unexpected column "+got.Name)
		}
	}
	return out
}

// missingTrailing returns the expected columns after the end of actual when
// actual is an exact prefix of expected. ok is false for any other change.
func missingTrailing(expected, actual *mapping.TableDefinition) (cols []mapping.TableColumn, ok bool) {
	if !strings.EqualFold(expected.PrimaryKey, actual.PrimaryKey) || len(actual.Columns) > len(expected.Columns) {
		return nil, false
	}
	for i, got := range actual.Columns {
		want := expected.Columns[i]
		if !strings.EqualFold(got.Name, want.Name) || mapping.NormalizeType(got.Type) != mapping.NormalizeType(want.Type) {
			return nil, false
		}
	}
	return expected.Columns[len(actual.Columns):], true
}
