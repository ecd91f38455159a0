package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource replays a fixed chunk sequence.
type sliceSource struct {
	chunks []*RowChunk
	pos    int
}

func (s *sliceSource) Next(ctx context.Context) (*RowChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// memStore is an in-memory RefStore for engine tests.
type memStore struct {
	rows   map[string]map[string]interface{}
	closed bool
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]map[string]interface{})}
}

func storeKey(table string, seq int64) string {
	return fmt.Sprintf("%s#%d", table, seq)
}

func (m *memStore) Exists(table string, seq int64) (bool, error) {
	_, ok := m.rows[storeKey(table, seq)]
	return ok, nil
}

func (m *memStore) Get(table string, seq int64, column string) (interface{}, bool, error) {
	values, ok := m.rows[storeKey(table, seq)]
	if !ok {
		return nil, false, nil
	}
	val, ok := values[column]
	return val, ok, nil
}

func (m *memStore) Record(table string, seq int64, values map[string]interface{}) error {
	key := storeKey(table, seq)
	if _, ok := m.rows[key]; ok {
		return fmt.Errorf("duplicate record for %s", key)
	}
	m.rows[key] = values
	return nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

type insertCall struct {
	table     string
	columns   []string
	rows      [][]interface{}
	returning []string
}

// fakeInserter records every batch and hands out sequential generated ids per
// table, like an auto-increment column would.
type fakeInserter struct {
	maxParams int
	calls     []insertCall
	nextID    map[string]int64
	failTable string
}

func newFakeInserter(maxParams int) *fakeInserter {
	return &fakeInserter{maxParams: maxParams, nextID: make(map[string]int64)}
}

func (f *fakeInserter) MaxParams() int { return f.maxParams }

func (f *fakeInserter) InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}, returning []string) ([][]interface{}, error) {
	if table == f.failTable {
		return nil, errors.New("boom")
	}
	f.calls = append(f.calls, insertCall{table: table, columns: columns, rows: rows, returning: returning})

	if len(returning) == 0 {
		return nil, nil
	}
	generated := make([][]interface{}, len(rows))
	for i := range rows {
		vals := make([]interface{}, len(returning))
		for j := range returning {
			f.nextID[table]++
			vals[j] = f.nextID[table]
		}
		generated[i] = vals
	}
	return generated, nil
}

func (f *fakeInserter) rowsFor(table string) int {
	n := 0
	for _, call := range f.calls {
		if call.table == table {
			n += len(call.rows)
		}
	}
	return n
}

func plainChunk(table string, seq int64, cols []string, vals ...interface{}) *RowChunk {
	values := make(map[string]interface{}, len(cols))
	for i, col := range cols {
		values[col] = vals[i]
	}
	return &RowChunk{Table: table, Seq: seq, Columns: cols, Values: values}
}

func bookChunk(seq int64, title string) *RowChunk {
	return plainChunk("books", seq, []string{"id", "title"}, Auto{}, title)
}

func reviewChunk(seq, bookRow int64) *RowChunk {
	return plainChunk("reviews", seq, []string{"book_id", "body"},
		Ref{Table: "books", Row: bookRow, Column: "id"}, fmt.Sprintf("review %d", seq))
}

func newTestEngine(ins Inserter, store *memStore, referenceable map[string][]string, maxParams int) *Engine {
	return New(ins, Options{
		MaxParams:     maxParams,
		Referenceable: referenceable,
		OpenStore:     func() (RefStore, error) { return store, nil },
	})
}

var bookRefs = map[string][]string{"books": {"id"}}

func TestPlainChunksFlushInArrivalOrder(t *testing.T) {
	ins := newFakeInserter(65535)
	eng := New(ins, Options{})

	src := &sliceSource{chunks: []*RowChunk{
		plainChunk("tags", 0, []string{"label"}, "a"),
		plainChunk("tags", 1, []string{"label"}, "b"),
		plainChunk("tags", 2, []string{"label"}, "c"),
	}}
	require.NoError(t, eng.Run(context.Background(), src))

	require.Len(t, ins.calls, 1)
	call := ins.calls[0]
	assert.Equal(t, "tags", call.table)
	assert.Equal(t, [][]interface{}{{"a"}, {"b"}, {"c"}}, call.rows)
	assert.EqualValues(t, 3, eng.Inserted())
}

func TestBatchCeilingRespected(t *testing.T) {
	// 3 columns, 10 params -> at most 3 rows per statement.
	ins := newFakeInserter(10)
	eng := New(ins, Options{})

	cols := []string{"a", "b", "c"}
	var chunks []*RowChunk
	for i := int64(0); i < 10; i++ {
		chunks = append(chunks, plainChunk("wide", i, cols, i, i, i))
	}
	require.NoError(t, eng.Run(context.Background(), &sliceSource{chunks: chunks}))

	total := 0
	for _, call := range ins.calls {
		assert.LessOrEqual(t, len(call.rows), 3)
		assert.LessOrEqual(t, len(call.rows)*len(call.columns), 10)
		total += len(call.rows)
	}
	assert.Equal(t, 10, total)
	// first three arrivals filled a batch and flushed before stream end
	assert.Len(t, ins.calls[0].rows, 3)
}

func TestForwardReferenceGetsGeneratedKey(t *testing.T) {
	ins := newFakeInserter(65535)
	store := newMemStore()
	eng := newTestEngine(ins, store, bookRefs, 65535)

	src := &sliceSource{chunks: []*RowChunk{
		bookChunk(0, "first"),
		bookChunk(1, "second"),
		reviewChunk(0, 0),
	}}
	require.NoError(t, eng.Run(context.Background(), src))

	require.Len(t, ins.calls, 2)
	assert.Equal(t, "books", ins.calls[0].table)
	assert.Equal(t, "reviews", ins.calls[1].table)

	// auto id column omitted from the books payload, returned instead
	assert.Equal(t, []string{"title"}, ins.calls[0].columns)
	assert.Equal(t, []string{"id"}, ins.calls[0].returning)

	// reviews#0 carries the database-generated id of books#0
	assert.Equal(t, []string{"book_id", "body"}, ins.calls[1].columns)
	assert.Equal(t, int64(1), ins.calls[1].rows[0][0])

	assert.True(t, store.closed)
}

func TestDeferredRowUnblocksAfterTargetFlush(t *testing.T) {
	// ceiling 2 for books (2 cols, maxParams 4): the second book triggers a
	// mid-stream flush, which must unblock the parked review.
	ins := newFakeInserter(4)
	store := newMemStore()
	eng := newTestEngine(ins, store, bookRefs, 4)

	src := &sliceSource{chunks: []*RowChunk{
		bookChunk(0, "first"),
		reviewChunk(0, 1), // references books#1, not yet generated
		bookChunk(1, "second"),
		reviewChunk(1, 0),
	}}
	require.NoError(t, eng.Run(context.Background(), src))

	assert.Equal(t, 2, ins.rowsFor("books"))
	assert.Equal(t, 2, ins.rowsFor("reviews"))

	// every review was inserted after both books
	assert.Equal(t, "books", ins.calls[0].table)
	for _, call := range ins.calls[1:] {
		assert.Equal(t, "reviews", call.table)
	}

	// reviews#0 resolved to the id of books#1
	var got []interface{}
	for _, call := range ins.calls[1:] {
		for _, row := range call.rows {
			got = append(got, row[0])
		}
	}
	assert.Contains(t, got, int64(2))
	assert.Contains(t, got, int64(1))
}

func TestDependencyOrdering(t *testing.T) {
	// regardless of interleaving, a referenced row is always persisted
	// before its dependent
	ins := newFakeInserter(65535)
	store := newMemStore()
	eng := newTestEngine(ins, store, bookRefs, 65535)

	src := &sliceSource{chunks: []*RowChunk{
		reviewChunk(0, 0), // arrives before any book is flushed
		bookChunk(0, "only"),
	}}
	require.NoError(t, eng.Run(context.Background(), src))

	require.Len(t, ins.calls, 2)
	assert.Equal(t, "books", ins.calls[0].table)
	assert.Equal(t, "reviews", ins.calls[1].table)
}

func TestTransformApplied(t *testing.T) {
	ins := newFakeInserter(65535)
	store := newMemStore()
	eng := newTestEngine(ins, store, bookRefs, 65535)

	ref := Ref{Table: "books", Row: 0, Column: "id", Transform: func(v interface{}) interface{} {
		return fmt.Sprintf("book-%v", v)
	}}
	src := &sliceSource{chunks: []*RowChunk{
		bookChunk(0, "first"),
		plainChunk("shelves", 0, []string{"slug"}, ref),
	}}
	require.NoError(t, eng.Run(context.Background(), src))

	require.Len(t, ins.calls, 2)
	assert.Equal(t, "book-1", ins.calls[1].rows[0][0])
}

func TestCircularReferencesReported(t *testing.T) {
	ins := newFakeInserter(65535)
	store := newMemStore()
	referenceable := map[string][]string{"a": {"id"}, "b": {"id"}}
	eng := newTestEngine(ins, store, referenceable, 65535)

	src := &sliceSource{chunks: []*RowChunk{
		plainChunk("a", 0, []string{"id", "b_id"}, int64(1), Ref{Table: "b", Row: 0, Column: "id"}),
		plainChunk("b", 0, []string{"id", "a_id"}, int64(1), Ref{Table: "a", Row: 0, Column: "id"}),
	}}
	err := eng.Run(context.Background(), src)
	require.Error(t, err)

	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	require.Len(t, unresolved.Stuck, 2)
	assert.Equal(t, "a", unresolved.Stuck[0].Table)
	assert.Equal(t, "b", unresolved.Stuck[1].Table)
	// nothing was inserted and the scratch store is still torn down
	assert.Empty(t, ins.calls)
	assert.True(t, store.closed)
}

func TestMissingTargetReported(t *testing.T) {
	ins := newFakeInserter(65535)
	store := newMemStore()
	eng := newTestEngine(ins, store, bookRefs, 65535)

	src := &sliceSource{chunks: []*RowChunk{
		plainChunk("notes", 0, []string{"book_id"}, Ref{Table: "books", Row: 5, Column: "id"}),
	}}
	err := eng.Run(context.Background(), src)

	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	require.Len(t, unresolved.Stuck, 1)
	stuck := unresolved.Stuck[0]
	assert.Equal(t, "notes", stuck.Table)
	assert.EqualValues(t, 0, stuck.Row)
	require.Len(t, stuck.Unresolved, 1)
	assert.Equal(t, UnresolvedTarget{Table: "books", Row: 5, Column: "id"}, stuck.Unresolved[0])
}

func TestDrainIsIdempotentAtFixpoint(t *testing.T) {
	ins := newFakeInserter(65535)
	store := newMemStore()
	eng := newTestEngine(ins, store, bookRefs, 65535)
	eng.store = store

	require.NoError(t, eng.accept(context.Background(), bookChunk(0, "first")))
	require.NoError(t, eng.accept(context.Background(), reviewChunk(0, 0)))
	require.NoError(t, eng.finalize(context.Background()))

	// fixpoint reached: repeated passes with no intervening flush move nothing
	for i := 0; i < 3; i++ {
		moved, err := eng.drainPass()
		require.NoError(t, err)
		assert.Zero(t, moved)
	}
}

func TestInsertFailureAborts(t *testing.T) {
	ins := newFakeInserter(65535)
	ins.failTable = "tags"
	store := newMemStore()
	eng := newTestEngine(ins, store, bookRefs, 65535)

	src := &sliceSource{chunks: []*RowChunk{
		plainChunk("tags", 0, []string{"label"}, "a"),
	}}
	err := eng.Run(context.Background(), src)

	var insertErr *InsertError
	require.ErrorAs(t, err, &insertErr)
	assert.Equal(t, "tags", insertErr.Table)
	assert.True(t, store.closed, "store must be released on failure")
}

func TestReferenceableSubsetRecorded(t *testing.T) {
	ins := newFakeInserter(65535)
	store := newMemStore()
	eng := newTestEngine(ins, store, bookRefs, 65535)

	src := &sliceSource{chunks: []*RowChunk{bookChunk(0, "first")}}
	require.NoError(t, eng.Run(context.Background(), src))

	values, ok := store.rows["books#0"]
	require.True(t, ok)
	// only the declared referenceable column is stored, not the title
	assert.Equal(t, map[string]interface{}{"id": int64(1)}, values)
}

func TestSameTableReference(t *testing.T) {
	ins := newFakeInserter(65535)
	store := newMemStore()
	referenceable := map[string][]string{"employees": {"id"}}
	eng := newTestEngine(ins, store, referenceable, 65535)

	manager := plainChunk("employees", 0, []string{"id", "manager_id"}, Auto{}, nil)
	report := plainChunk("employees", 1, []string{"id", "manager_id"},
		Auto{}, Ref{Table: "employees", Row: 0, Column: "id"})

	require.NoError(t, eng.Run(context.Background(), &sliceSource{chunks: []*RowChunk{manager, report}}))

	require.Len(t, ins.calls, 2)
	assert.Equal(t, []interface{}{nil}, ins.calls[0].rows[0])
	assert.Equal(t, []interface{}{int64(1)}, ins.calls[1].rows[0])
}
