// Package refstore holds the per-run scratch store that maps (table, row
// sequence) to the serialized referenceable columns of an already-persisted
// row. It backs the store with a throwaway SQLite file so runs with tens of
// thousands of rows never hold the full dataset in process memory.
package refstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is an ephemeral keyed store. An entry for (table, seq) exists if and
// only if that row has been persisted to the real target. Entries are written
// once and never updated; Close discards the whole store.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the backing file under dir (os.TempDir() when empty). The file
// name embeds a UUID so concurrent runs never collide.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("sprout-refs-%s.db", uuid.NewString()))

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference store at %s: %w", path, err)
	}

	// Scratch data: durability is pointless, speed is not.
	for _, pragma := range []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			os.Remove(path)
			return nil, fmt.Errorf("failed to configure reference store: %w", err)
		}
	}

	schema := `CREATE TABLE row_refs (
		tbl  TEXT    NOT NULL,
		seq  INTEGER NOT NULL,
		data BLOB    NOT NULL,
		PRIMARY KEY (tbl, seq)
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to initialize reference store: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string { return s.path }

// Exists reports whether row seq of table has been recorded.
func (s *Store) Exists(table string, seq int64) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM row_refs WHERE tbl = ? AND seq = ?", table, seq).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s#%d: %w", table, seq, err)
	}
	return true, nil
}

// Get returns the stored value of one column of a recorded row. The second
// return value is false when either the row or the column is absent.
func (s *Store) Get(table string, seq int64, column string) (interface{}, bool, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM row_refs WHERE tbl = ? AND seq = ?", table, seq).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s#%d: %w", table, seq, err)
	}
	values, err := decodeRow(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode %s#%d: %w", table, seq, err)
	}
	val, ok := values[column]
	return val, ok, nil
}

// Record stores the referenceable column values of a freshly persisted row.
// Written exactly once per row; a duplicate key is a caller bug and surfaces
// as a constraint error.
func (s *Store) Record(table string, seq int64, values map[string]interface{}) error {
	data, err := encodeRow(values)
	if err != nil {
		return fmt.Errorf("failed to encode %s#%d: %w", table, seq, err)
	}
	if _, err := s.db.Exec("INSERT INTO row_refs (tbl, seq, data) VALUES (?, ?, ?)", table, seq, data); err != nil {
		return fmt.Errorf("failed to record %s#%d: %w", table, seq, err)
	}
	return nil
}

// Close releases the store and deletes the backing file. Safe to call on
// every exit path.
func (s *Store) Close() error {
	cerr := s.db.Close()
	rerr := os.Remove(s.path)
	if cerr != nil {
		return cerr
	}
	if rerr != nil && !os.IsNotExist(rerr) {
		return rerr
	}
	return nil
}
