package sqlcatalog

import "strings"

// InsertTemplate is the shape every fact/dimension load renders to.
const InsertTemplate = "INSERT INTO {table} ({select})"

// Insert fills InsertTemplate. Columns are optional; when present they are
// appended to the table name.
func Insert(table string, columns []string, selectSQL string) string {
	target := table
	if len(columns) > 0 {
		target = table + " (" + strings.Join(columns, ", ") + ")"
	}
	r := strings.NewReplacer("{table}", target, "{select}", strings.TrimSpace(selectSQL))
	return r.Replace(InsertTemplate)
}

// DeleteAll empties a table before a full reload.
func DeleteAll(table string) string {
	return "DELETE FROM " + table
}

// CountRows counts the rows of a table.
func CountRows(table string) string {
	return "SELECT COUNT(*) FROM " + table
}
