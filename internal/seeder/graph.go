package seeder

import (
	"fmt"
	"sort"

	"github.com/Lumos-Labs-HQ/sprout/internal/schema"
)

// DependencyGraph orders tables so that referenced tables come before their
// dependents. Row-level references then always point backwards in the stream,
// which is the ordering contract the engine documents.
type DependencyGraph struct {
	tables map[string]*schema.Table
	order  []string
}

func NewDependencyGraph(tables map[string]*schema.Table) *DependencyGraph {
	return &DependencyGraph{tables: tables}
}

// BuildInsertionOrder returns a topological order of the tables. Table-level
// cycles are a fatal configuration problem: no stream order can satisfy them.
func (g *DependencyGraph) BuildInsertionOrder() ([]string, error) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var order []string

	var visit func(string) error
	visit = func(tableName string) error {
		if onStack[tableName] {
			return fmt.Errorf("circular dependency detected involving table: %s", tableName)
		}
		if visited[tableName] {
			return nil
		}

		onStack[tableName] = true
		if table := g.tables[tableName]; table != nil {
			for _, dep := range table.Dependencies {
				if dep != tableName { // self-references resolve within the table
					if err := visit(dep); err != nil {
						return err
					}
				}
			}
		}
		onStack[tableName] = false
		visited[tableName] = true
		order = append(order, tableName)
		return nil
	}

	// Deterministic traversal regardless of map iteration order.
	names := make([]string, 0, len(g.tables))
	for name := range g.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !visited[name] {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}

	g.order = order
	return order, nil
}

// GetOrder returns the last computed insertion order.
func (g *DependencyGraph) GetOrder() []string {
	return g.order
}
