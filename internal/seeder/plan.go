package seeder

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Lumos-Labs-HQ/sprout/internal/engine"
	"github.com/Lumos-Labs-HQ/sprout/internal/schema"
)

// Plan is the optional seed.yaml generation plan: per-table row counts and
// per-column value overrides layered on top of the built-in generator.
type Plan struct {
	DefaultCount int                  `yaml:"default_count"`
	Tables       map[string]TablePlan `yaml:"tables"`
}

type TablePlan struct {
	Count   int                   `yaml:"count"`
	Columns map[string]ColumnPlan `yaml:"columns"`
}

// ColumnPlan pins a column to a fixed value or a choice list. NullRate (0..1)
// overrides the default probability of NULL for nullable columns.
type ColumnPlan struct {
	Value    interface{}   `yaml:"value"`
	Choices  []interface{} `yaml:"choices"`
	NullRate *float64      `yaml:"null_rate"`
}

// LoadPlan reads a seed.yaml. A missing file yields an empty plan; seeding
// without a plan is the common case.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Plan{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	return &plan, nil
}

// Validate rejects plan entries that name tables or columns absent from the
// schema. A mismatch aborts the run before anything touches the database.
func (p *Plan) Validate(tables map[string]*schema.Table) error {
	for tableName, tp := range p.Tables {
		table, ok := tables[tableName]
		if !ok {
			return &engine.MissingColumnError{Table: tableName}
		}
		for colName := range tp.Columns {
			if _, ok := table.Column(colName); !ok {
				return &engine.MissingColumnError{Table: tableName, Column: colName}
			}
		}
		if tp.Count < 0 {
			return fmt.Errorf("negative row count for table %s", tableName)
		}
	}
	return nil
}

// Count returns the per-table row count, or fallback when the plan does not
// pin one.
func (p *Plan) Count(table string, fallback int) int {
	if tp, ok := p.Tables[table]; ok && tp.Count > 0 {
		return tp.Count
	}
	return fallback
}

// Column returns the plan override for one column, if any.
func (p *Plan) Column(table, column string) (ColumnPlan, bool) {
	tp, ok := p.Tables[table]
	if !ok {
		return ColumnPlan{}, false
	}
	cp, ok := tp.Columns[column]
	return cp, ok
}
