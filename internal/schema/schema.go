// Package schema extracts table definitions from .sql schema files. The
// parser is deliberately regex-based: it only needs names, types, nullability
// and foreign keys, not a full SQL grammar.
package schema

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// validIdentifier validates table/column names to keep generated SQL
// injection-free.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// IsValidIdentifier reports whether name is usable as a bare SQL identifier.
func IsValidIdentifier(name string) bool {
	return validIdentifier.MatchString(name)
}

type Table struct {
	Name         string
	Columns      []Column
	PrimaryKey   string
	ForeignKeys  []ForeignKey
	Dependencies []string
}

type Column struct {
	Name     string
	Type     string
	Nullable bool
	IsPK     bool
	IsFK     bool
	FKTable  string
	FKColumn string
}

// Column returns the table's column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// AutoIncrement reports whether the column's value is produced by the
// database (SERIAL, AUTO_INCREMENT, or an INTEGER rowid PK on SQLite).
func (c Column) AutoIncrement(provider string) bool {
	if !c.IsPK {
		return false
	}
	typeUpper := strings.ToUpper(c.Type)
	if strings.Contains(typeUpper, "SERIAL") ||
		strings.Contains(typeUpper, "AUTO_INCREMENT") ||
		strings.Contains(typeUpper, "AUTOINCREMENT") {
		return true
	}
	return strings.Contains(typeUpper, "INTEGER") && (provider == "sqlite" || provider == "sqlite3")
}

type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

var (
	createTableRegex  = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?["']?(\w+)["']?\s*\(([\s\S]*?)\);`)
	fkConstraintRegex = regexp.MustCompile(`(?i)FOREIGN\s+KEY\s*\(["']?(\w+)["']?\)\s*REFERENCES\s+["']?(\w+)["']?\s*\(["']?(\w+)["']?\)`)
	inlineRefRegex    = regexp.MustCompile(`(?i)REFERENCES\s+["']?(\w+)["']?\s*\(["']?(\w+)["']?\)`)
)

// ParseFiles reads every given .sql file and returns the tables it defines,
// keyed by name. An unreadable file aborts the parse: seeding from a partial
// schema would silently drop tables.
func ParseFiles(paths []string) (map[string]*Table, error) {
	tables := make(map[string]*Table)
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
		}
		for name, table := range ParseSQL(string(content)) {
			tables[name] = table
		}
	}
	if len(tables) == 0 {
		return tables, nil
	}
	return tables, Validate(tables)
}

// ParseSQL extracts all CREATE TABLE statements from one SQL document.
func ParseSQL(content string) map[string]*Table {
	tables := make(map[string]*Table)
	for _, match := range createTableRegex.FindAllStringSubmatch(content, -1) {
		if len(match) < 3 {
			continue
		}
		table := parseTableBody(match[1], match[2])
		tables[table.Name] = table
	}
	return tables
}

// Validate checks every table and column name against the identifier rules.
func Validate(tables map[string]*Table) error {
	for name, table := range tables {
		if !IsValidIdentifier(name) {
			return fmt.Errorf("invalid table name: %s", name)
		}
		for _, col := range table.Columns {
			if !IsValidIdentifier(col.Name) {
				return fmt.Errorf("invalid column name in table %s: %s", name, col.Name)
			}
		}
	}
	return nil
}

// splitColumns splits a CREATE TABLE body on top-level commas only, so type
// arguments like NUMERIC(10, 2) and composite PRIMARY KEY (a, b) entries stay
// in one piece.
func splitColumns(body string) []string {
	var parts []string
	var current strings.Builder
	depth := 0

	for i := 0; i < len(body); i++ {
		switch c := body[i]; c {
		case '(':
			depth++
			current.WriteByte(c)
		case ')':
			depth--
			current.WriteByte(c)
		case ',':
			if depth == 0 {
				parts = append(parts, current.String())
				current.Reset()
			} else {
				current.WriteByte(c)
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func parseTableBody(tableName, body string) *Table {
	table := &Table{Name: tableName}

	for _, line := range splitColumns(body) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lineUpper := strings.ToUpper(line)

		if fkMatch := fkConstraintRegex.FindStringSubmatch(line); fkMatch != nil {
			fk := ForeignKey{Column: fkMatch[1], RefTable: fkMatch[2], RefColumn: fkMatch[3]}
			table.ForeignKeys = append(table.ForeignKeys, fk)
			if fk.RefTable != tableName {
				table.Dependencies = append(table.Dependencies, fk.RefTable)
			}
			continue
		}

		if strings.HasPrefix(lineUpper, "PRIMARY") ||
			strings.HasPrefix(lineUpper, "UNIQUE") ||
			strings.HasPrefix(lineUpper, "CHECK") ||
			strings.HasPrefix(lineUpper, "CONSTRAINT") ||
			strings.HasPrefix(lineUpper, "INDEX") ||
			strings.HasPrefix(lineUpper, "KEY") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		// The type may span several fields when its arguments contain a
		// comma, e.g. NUMERIC(10, 2).
		colType := parts[1]
		for i := 2; i < len(parts) && strings.Count(colType, "(") > strings.Count(colType, ")"); i++ {
			colType += " " + parts[i]
		}

		col := Column{
			Name:     strings.Trim(parts[0], `"'`),
			Type:     colType,
			Nullable: !strings.Contains(lineUpper, "NOT NULL"),
			IsPK: strings.Contains(lineUpper, "PRIMARY KEY") ||
				strings.Contains(strings.ToUpper(parts[1]), "SERIAL"),
		}

		if strings.Contains(lineUpper, "REFERENCES") {
			if refMatch := inlineRefRegex.FindStringSubmatch(line); refMatch != nil {
				col.IsFK = true
				col.FKTable = refMatch[1]
				col.FKColumn = refMatch[2]
				if refMatch[1] != tableName {
					table.Dependencies = append(table.Dependencies, refMatch[1])
				}
			}
		}

		if col.IsPK {
			table.PrimaryKey = col.Name
		}
		table.Columns = append(table.Columns, col)
	}

	// Back-fill FK info declared via table-level constraints.
	for _, fk := range table.ForeignKeys {
		for i := range table.Columns {
			if table.Columns[i].Name == fk.Column {
				table.Columns[i].IsFK = true
				table.Columns[i].FKTable = fk.RefTable
				table.Columns[i].FKColumn = fk.RefColumn
				break
			}
		}
	}

	return table
}
