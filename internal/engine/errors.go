package engine

import (
	"errors"
	"fmt"
	"strings"
)

// errMissingDependency signals that a reference target has not been persisted
// yet. It never escapes Run: eligibility is checked before resolution, so the
// only user-visible trace of it is an UnresolvedError from the finalizer.
var errMissingDependency = errors.New("reference target not persisted")

// MissingColumnError reports a generated column that has no matching entry in
// the table schema. This is a configuration error and aborts the run.
type MissingColumnError struct {
	Table  string
	Column string
}

func (e *MissingColumnError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("no schema entry for table %s", e.Table)
	}
	return fmt.Sprintf("no schema entry for column %s.%s", e.Table, e.Column)
}

// InsertError wraps a failure reported by the persistence target. The batch is
// not requeued; the run aborts.
type InsertError struct {
	Table string
	Rows  int
	Err   error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert of %d rows into %s failed: %v", e.Rows, e.Table, e.Err)
}

func (e *InsertError) Unwrap() error { return e.Err }

// UnresolvedTarget is one still-missing dependency of a stuck chunk.
type UnresolvedTarget struct {
	Table  string
	Row    int64
	Column string
}

func (t UnresolvedTarget) String() string {
	return fmt.Sprintf("%s#%d.%s", t.Table, t.Row, t.Column)
}

// StuckChunk describes a chunk that remained deferred after the final drain
// reached its fixpoint.
type StuckChunk struct {
	Table      string
	Row        int64
	Unresolved []UnresolvedTarget
}

// UnresolvedError is raised by the finalizer when the drain loop stalls with
// non-empty deferred queues: either the stream contains a reference cycle or a
// reference targets a row that was never produced. It lists every stuck chunk,
// not just the first, so a cycle can be diagnosed in one pass.
type UnresolvedError struct {
	Stuck []StuckChunk
}

func (e *UnresolvedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d row(s) have unsatisfiable references (circular or missing targets):", len(e.Stuck))
	for _, s := range e.Stuck {
		targets := make([]string, len(s.Unresolved))
		for i, t := range s.Unresolved {
			targets[i] = t.String()
		}
		fmt.Fprintf(&b, "\n  %s#%d waiting on %s", s.Table, s.Row, strings.Join(targets, ", "))
	}
	return b.String()
}
