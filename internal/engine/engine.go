// Package engine implements the deferred-reference resolution and batched
// insertion core of sprout. It consumes a lazy stream of generated row chunks,
// persists the ones whose references are already satisfied in size-bounded
// batches, parks the rest, and drains the parked rows to a fixpoint every time
// a flush lands new reference targets.
//
// The engine assumes the upstream stream only references rows that were
// generated before the referencing row (the built-in generator guarantees this
// by emitting tables in dependency order). A stream that references a row
// generated later is reported as unresolvable by the finalizer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
)

// RowSource is the lazy, forward-only stream of generated rows. Next returns
// io.EOF after the final chunk.
type RowSource interface {
	Next(ctx context.Context) (*RowChunk, error)
}

// Inserter is the persistence target. InsertRows persists one batch atomically
// and, when returning is non-empty, reports the database-generated values of
// those columns for every inserted row, in input row order.
type Inserter interface {
	InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}, returning []string) ([][]interface{}, error)
	MaxParams() int
}

// RefStore answers "has row seq of table tbl been persisted, and what value
// does its column hold". Record is called exactly once per flushed chunk.
type RefStore interface {
	Exists(table string, seq int64) (bool, error)
	Get(table string, seq int64, column string) (interface{}, bool, error)
	Record(table string, seq int64, values map[string]interface{}) error
	Close() error
}

// Options configures an Engine run.
type Options struct {
	// MaxParams is the target's hard ceiling on bind parameters per statement.
	MaxParams int

	// Referenceable lists, per table, the columns that some reference may
	// target. Only these columns are recorded in the reference store. When
	// empty, no store is opened at all.
	Referenceable map[string][]string

	// OpenStore builds the per-run reference store. Called lazily, only when
	// Referenceable is non-empty.
	OpenStore func() (RefStore, error)

	// Logf, when set, receives progress lines. The engine never prints on its
	// own.
	Logf func(format string, args ...interface{})
}

type deferredChunk struct {
	chunk   *RowChunk
	pending []Ref
}

// tableState is created the first time a table shows up in the stream and
// lives until the run finishes.
type tableState struct {
	name     string
	ready    []*RowChunk
	deferred []deferredChunk
	// ceiling is floor(maxParams / columnCount), fixed from the first chunk.
	ceiling int
	flushed int64
}

// Engine drives one seeding run. Not safe for concurrent use; a run is a
// single logical worker.
type Engine struct {
	inserter      Inserter
	opts          Options
	store         RefStore
	tables        map[string]*tableState
	order         []string // table discovery order, for deterministic drains
	totalInserted int64
}

// New returns an engine bound to the given persistence target.
func New(inserter Inserter, opts Options) *Engine {
	if opts.MaxParams <= 0 {
		opts.MaxParams = inserter.MaxParams()
	}
	return &Engine{
		inserter: inserter,
		opts:     opts,
		tables:   make(map[string]*tableState),
	}
}

// Inserted reports how many rows have been persisted so far.
func (e *Engine) Inserted() int64 { return e.totalInserted }

func (e *Engine) logf(format string, args ...interface{}) {
	if e.opts.Logf != nil {
		e.opts.Logf(format, args...)
	}
}

// Run consumes the stream to completion. On success every accepted chunk has
// been persisted exactly once. The reference store and its backing file are
// released on every exit path.
func (e *Engine) Run(ctx context.Context, src RowSource) (err error) {
	if len(e.opts.Referenceable) > 0 {
		if e.opts.OpenStore == nil {
			return errors.New("engine: referenceable columns declared but no store factory given")
		}
		store, serr := e.opts.OpenStore()
		if serr != nil {
			return fmt.Errorf("failed to open reference store: %w", serr)
		}
		e.store = store
	}
	defer func() {
		if e.store == nil {
			return
		}
		if cerr := e.store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to release reference store: %w", cerr)
		}
	}()

	for {
		chunk, rerr := src.Next(ctx)
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return rerr
		}
		if err := e.accept(ctx, chunk); err != nil {
			return err
		}
	}

	return e.finalize(ctx)
}

// accept classifies one incoming chunk as ready or deferred and flushes the
// table if its batch filled up. Single forward pass: one store lookup per
// reference, no retries here.
func (e *Engine) accept(ctx context.Context, chunk *RowChunk) error {
	st, err := e.table(chunk)
	if err != nil {
		return err
	}

	pending, err := e.pendingRefs(chunk)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		st.ready = append(st.ready, chunk)
	} else {
		st.deferred = append(st.deferred, deferredChunk{chunk: chunk, pending: pending})
	}

	if len(st.ready) >= st.ceiling {
		if err := e.flush(ctx, st, false); err != nil {
			return err
		}
		return e.drain(ctx, false)
	}
	return nil
}

func (e *Engine) table(chunk *RowChunk) (*tableState, error) {
	if st, ok := e.tables[chunk.Table]; ok {
		return st, nil
	}
	if len(chunk.Columns) == 0 {
		return nil, fmt.Errorf("chunk %s#%d has no columns", chunk.Table, chunk.Seq)
	}
	ceiling := e.opts.MaxParams / len(chunk.Columns)
	if ceiling < 1 {
		ceiling = 1
	}
	st := &tableState{name: chunk.Table, ceiling: ceiling}
	e.tables[chunk.Table] = st
	e.order = append(e.order, chunk.Table)
	return st, nil
}

// pendingRefs returns the chunk's references whose targets are not yet in the
// reference store.
func (e *Engine) pendingRefs(chunk *RowChunk) ([]Ref, error) {
	refs := chunk.Refs()
	if len(refs) == 0 {
		return nil, nil
	}
	var pending []Ref
	for _, ref := range refs {
		if e.store == nil {
			pending = append(pending, ref)
			continue
		}
		ok, err := e.store.Exists(ref.Table, ref.Row)
		if err != nil {
			return nil, fmt.Errorf("reference store lookup for %s#%d failed: %w", ref.Table, ref.Row, err)
		}
		if !ok {
			pending = append(pending, ref)
		}
	}
	return pending, nil
}

// flush persists the table's ready batch. Without force only full slices are
// flushed; with force the remainder goes too. Every INSERT carries at most
// ceiling rows so ceiling*columnCount never exceeds MaxParams, even when a
// drain pass pushed ready past the ceiling.
func (e *Engine) flush(ctx context.Context, st *tableState, force bool) error {
	for len(st.ready) > 0 && (force || len(st.ready) >= st.ceiling) {
		n := st.ceiling
		if n > len(st.ready) {
			n = len(st.ready)
		}
		if err := e.flushBatch(ctx, st, st.ready[:n]); err != nil {
			return err
		}
		st.ready = st.ready[n:]
	}
	return nil
}

// flushBatch resolves one batch, persists it as a single bulk insert and
// records the referenceable columns of every flushed chunk.
func (e *Engine) flushBatch(ctx context.Context, st *tableState, batch []*RowChunk) error {
	columns := batch[0].insertColumns()
	returning := e.returningColumns(batch[0])

	rows := make([][]interface{}, len(batch))
	for i, chunk := range batch {
		row := make([]interface{}, len(columns))
		for j, col := range columns {
			val, err := e.resolveValue(chunk, col)
			if err != nil {
				return err
			}
			row[j] = val
		}
		rows[i] = row
	}

	generated, err := e.inserter.InsertRows(ctx, st.name, columns, rows, returning)
	if err != nil {
		return &InsertError{Table: st.name, Rows: len(batch), Err: err}
	}

	if err := e.recordBatch(st, batch, columns, rows, returning, generated); err != nil {
		return err
	}

	st.flushed += int64(len(batch))
	e.totalInserted += int64(len(batch))
	e.logf("flushed %d rows into %s (total %d)", len(batch), st.name, st.flushed)
	return nil
}

// resolveValue substitutes references with their stored target values and
// applies the reference transform. Eligibility was checked when the chunk
// moved to ready, so a missing target here is an engine bug, not user error.
func (e *Engine) resolveValue(chunk *RowChunk, column string) (interface{}, error) {
	val := chunk.Values[column]
	ref, ok := val.(Ref)
	if !ok {
		return val, nil
	}
	if e.store == nil {
		return nil, fmt.Errorf("resolving %s#%d.%s: %w", ref.Table, ref.Row, ref.Column, errMissingDependency)
	}
	stored, found, err := e.store.Get(ref.Table, ref.Row, ref.Column)
	if err != nil {
		return nil, fmt.Errorf("reference store read for %s#%d.%s failed: %w", ref.Table, ref.Row, ref.Column, err)
	}
	if !found {
		return nil, fmt.Errorf("resolving %s#%d.%s: %w", ref.Table, ref.Row, ref.Column, errMissingDependency)
	}
	if ref.Transform != nil {
		return ref.Transform(stored), nil
	}
	return stored, nil
}

// returningColumns lists the referenceable columns whose values only the
// database knows, i.e. referenceable Auto columns.
func (e *Engine) returningColumns(chunk *RowChunk) []string {
	referenceable := e.opts.Referenceable[chunk.Table]
	if len(referenceable) == 0 {
		return nil
	}
	var cols []string
	for _, col := range chunk.autoColumns() {
		for _, want := range referenceable {
			if col == want {
				cols = append(cols, col)
				break
			}
		}
	}
	return cols
}

// recordBatch writes one reference-store entry per flushed chunk, containing
// only the declared referenceable columns: payload values as resolved, plus
// database-generated values for Auto columns.
func (e *Engine) recordBatch(st *tableState, batch []*RowChunk, columns []string, rows [][]interface{}, returning []string, generated [][]interface{}) error {
	referenceable := e.opts.Referenceable[st.name]
	if e.store == nil || len(referenceable) == 0 {
		return nil
	}

	colIndex := make(map[string]int, len(columns))
	for i, col := range columns {
		colIndex[col] = i
	}
	retIndex := make(map[string]int, len(returning))
	for i, col := range returning {
		retIndex[col] = i
	}

	for i, chunk := range batch {
		values := make(map[string]interface{}, len(referenceable))
		for _, col := range referenceable {
			if j, ok := colIndex[col]; ok {
				values[col] = rows[i][j]
				continue
			}
			j, ok := retIndex[col]
			if !ok {
				continue
			}
			if len(generated) <= i || len(generated[i]) <= j {
				return fmt.Errorf("target returned no generated value for %s#%d.%s", st.name, chunk.Seq, col)
			}
			values[col] = generated[i][j]
		}
		if err := e.store.Record(st.name, chunk.Seq, values); err != nil {
			return fmt.Errorf("failed to record %s#%d: %w", st.name, chunk.Seq, err)
		}
	}
	return nil
}

// drain re-checks every deferred chunk of every table against the store until
// a complete pass across all tables moves nothing, then flushes tables whose
// ready batch filled up (all non-empty batches when force is set). A flush can
// unblock rows in other tables, so the drain→flush cascade repeats until
// stable.
func (e *Engine) drain(ctx context.Context, force bool) error {
	for {
		for {
			n, err := e.drainPass()
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
		}

		flushed := false
		for _, name := range e.order {
			st := e.tables[name]
			if len(st.ready) == 0 {
				continue
			}
			if !force && len(st.ready) < st.ceiling {
				continue
			}
			if err := e.flush(ctx, st, force); err != nil {
				return err
			}
			flushed = true
		}
		if !flushed {
			return nil
		}
	}
}

// drainPass makes one full pass over all deferred queues, promoting entries
// whose pending references are now all satisfied. Returns the number of
// promoted chunks. Within a pass the store does not change, so a pass that
// moves nothing is a fixpoint.
func (e *Engine) drainPass() (int, error) {
	moved := 0
	for _, name := range e.order {
		st := e.tables[name]
		if len(st.deferred) == 0 {
			continue
		}
		remaining := st.deferred[:0]
		for _, d := range st.deferred {
			pending, err := e.stillPending(d.pending)
			if err != nil {
				return moved, err
			}
			if len(pending) == 0 {
				st.ready = append(st.ready, d.chunk)
				moved++
			} else {
				d.pending = pending
				remaining = append(remaining, d)
			}
		}
		st.deferred = remaining
	}
	return moved, nil
}

func (e *Engine) stillPending(refs []Ref) ([]Ref, error) {
	var pending []Ref
	for _, ref := range refs {
		if e.store == nil {
			pending = append(pending, ref)
			continue
		}
		ok, err := e.store.Exists(ref.Table, ref.Row)
		if err != nil {
			return nil, fmt.Errorf("reference store lookup for %s#%d failed: %w", ref.Table, ref.Row, err)
		}
		if !ok {
			pending = append(pending, ref)
		}
	}
	return pending, nil
}

// finalize flushes every remaining batch, runs the drain loop to its final
// fixpoint and reports any permanently blocked chunk. Termination: every
// iteration that makes progress flushes at least one chunk, and the stream is
// finite.
func (e *Engine) finalize(ctx context.Context) error {
	for _, name := range e.order {
		if err := e.flush(ctx, e.tables[name], true); err != nil {
			return err
		}
	}
	if err := e.drain(ctx, true); err != nil {
		return err
	}

	var stuck []StuckChunk
	for _, name := range e.order {
		st := e.tables[name]
		for _, d := range st.deferred {
			sc := StuckChunk{Table: st.name, Row: d.chunk.Seq}
			for _, ref := range d.pending {
				sc.Unresolved = append(sc.Unresolved, UnresolvedTarget{
					Table:  ref.Table,
					Row:    ref.Row,
					Column: ref.Column,
				})
			}
			stuck = append(stuck, sc)
		}
	}
	if len(stuck) == 0 {
		return nil
	}
	sort.Slice(stuck, func(i, j int) bool {
		if stuck[i].Table != stuck[j].Table {
			return stuck[i].Table < stuck[j].Table
		}
		return stuck[i].Row < stuck[j].Row
	})
	return &UnresolvedError{Stuck: stuck}
}
