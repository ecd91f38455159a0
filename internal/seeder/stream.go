package seeder

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/Lumos-Labs-HQ/sprout/internal/engine"
	"github.com/Lumos-Labs-HQ/sprout/internal/schema"
)

// rowStream lazily generates row chunks, one table at a time, following the
// insertion order computed by the dependency graph. Because a table only
// references tables that come earlier in the order (or earlier rows of
// itself), every reference points at an already-generated sequence number —
// the ordering contract the engine relies on.
type rowStream struct {
	tables   map[string]*schema.Table
	order    []string
	counts   map[string]int
	gen      *Generator
	provider string
	rand     *rand.Rand

	tableIdx int
	rowSeq   int64
}

func newRowStream(tables map[string]*schema.Table, order []string, counts map[string]int, gen *Generator, provider string, seed int64) *rowStream {
	return &rowStream{
		tables:   tables,
		order:    order,
		counts:   counts,
		gen:      gen,
		provider: provider,
		rand:     rand.New(rand.NewSource(seed)),
	}
}

// Next implements engine.RowSource.
func (s *rowStream) Next(ctx context.Context) (*engine.RowChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for s.tableIdx < len(s.order) {
		name := s.order[s.tableIdx]
		if s.rowSeq < int64(s.counts[name]) {
			chunk := s.buildChunk(s.tables[name], s.rowSeq)
			s.rowSeq++
			return chunk, nil
		}
		s.tableIdx++
		s.rowSeq = 0
	}
	return nil, io.EOF
}

func (s *rowStream) buildChunk(table *schema.Table, seq int64) *engine.RowChunk {
	chunk := &engine.RowChunk{
		Table:   table.Name,
		Seq:     seq,
		Columns: make([]string, 0, len(table.Columns)),
		Values:  make(map[string]interface{}, len(table.Columns)),
	}

	for _, col := range table.Columns {
		chunk.Columns = append(chunk.Columns, col.Name)
		chunk.Values[col.Name] = s.columnValue(table, col, seq)
	}
	return chunk
}

func (s *rowStream) columnValue(table *schema.Table, col schema.Column, seq int64) interface{} {
	if col.AutoIncrement(s.provider) {
		return engine.Auto{}
	}

	if col.IsFK {
		return s.foreignKeyValue(table, col, seq)
	}

	return s.gen.Generate(table.Name, col)
}

// foreignKeyValue emits a reference to a random row of the target table. The
// target rows all have lower generation sequence numbers than the referencing
// row, but most of them are still unflushed when the reference is built —
// resolving them is the engine's job.
func (s *rowStream) foreignKeyValue(table *schema.Table, col schema.Column, seq int64) interface{} {
	if col.Nullable && s.rand.Float64() < 0.2 {
		return nil
	}

	if col.FKTable == table.Name {
		// Self-reference: only earlier rows of this table qualify, so the
		// first row gets NULL. NOT NULL self-references are rejected by
		// validateSelfReferences before streaming starts.
		if seq == 0 {
			return nil
		}
		return engine.Ref{Table: table.Name, Row: s.rand.Int63n(seq), Column: col.FKColumn}
	}

	count := int64(s.counts[col.FKTable])
	if count == 0 {
		return nil
	}
	return engine.Ref{Table: col.FKTable, Row: s.rand.Int63n(count), Column: col.FKColumn}
}

// validateSelfReferences rejects tables with a NOT NULL foreign key pointing
// at the table itself: the first generated row has no earlier row to
// reference, so every run would end in a constraint violation. Tables with a
// zero row count cannot trip the constraint and pass.
func validateSelfReferences(tables map[string]*schema.Table, counts map[string]int) error {
	for name, table := range tables {
		if counts[name] == 0 {
			continue
		}
		for _, col := range table.Columns {
			if col.IsFK && col.FKTable == name && !col.Nullable {
				return fmt.Errorf("table %s: column %s is a NOT NULL reference to %s itself; the first generated row has nothing to reference — make the column nullable or seed the table manually", name, col.Name, name)
			}
		}
	}
	return nil
}

// ReferencedColumns computes, per table, the set of columns some foreign key
// points at. Only these columns end up in the reference store.
func ReferencedColumns(tables map[string]*schema.Table) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	add := func(table, column string) {
		if seen[table] == nil {
			seen[table] = make(map[string]bool)
		}
		if seen[table][column] {
			return
		}
		seen[table][column] = true
		out[table] = append(out[table], column)
	}

	for _, table := range tables {
		for _, col := range table.Columns {
			if col.IsFK {
				add(col.FKTable, col.FKColumn)
			}
		}
		for _, fk := range table.ForeignKeys {
			add(fk.RefTable, fk.RefColumn)
		}
	}
	return out
}
