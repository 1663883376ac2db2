package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// NOTE: domain import kept indirect through memstore.go aliases to avoid cycles; compile-time assertion lives there.

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful transaction.
type Store struct {
	*memStore
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *RulesEngine) (*Store, error) {
	if path == "" {
		path = "limscore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	ms := newMemStore(engine)
	s := &Store{memStore: ms, db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{
	"locations",
	"containers",
	"samples",
	"positions",
	"movements",
	"jobs",
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	type raw struct {
		bucket  string
		payload []byte
	}
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.bucket, &r.payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		raws = append(raws, r)
	}
	if len(raws) == 0 {
		return nil
	}
	snapshot := Snapshot{}
	for _, r := range raws {
		switch r.bucket {
		case "locations":
			if err := json.Unmarshal(r.payload, &snapshot.Locations); err != nil {
				return fmt.Errorf("decode locations: %w", err)
			}
		case "containers":
			if err := json.Unmarshal(r.payload, &snapshot.Containers); err != nil {
				return fmt.Errorf("decode containers: %w", err)
			}
		case "samples":
			if err := json.Unmarshal(r.payload, &snapshot.Samples); err != nil {
				return fmt.Errorf("decode samples: %w", err)
			}
		case "positions":
			if err := json.Unmarshal(r.payload, &snapshot.Positions); err != nil {
				return fmt.Errorf("decode positions: %w", err)
			}
		case "movements":
			if err := json.Unmarshal(r.payload, &snapshot.Movements); err != nil {
				return fmt.Errorf("decode movements: %w", err)
			}
		case "jobs":
			if err := json.Unmarshal(r.payload, &snapshot.Jobs); err != nil {
				return fmt.Errorf("decode jobs: %w", err)
			}
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "locations":
			data, err = json.Marshal(snapshot.Locations)
		case "containers":
			data, err = json.Marshal(snapshot.Containers)
		case "samples":
			data, err = json.Marshal(snapshot.Samples)
		case "positions":
			data, err = json.Marshal(snapshot.Positions)
		case "movements":
			data, err = json.Marshal(snapshot.Movements)
		case "jobs":
			data, err = json.Marshal(snapshot.Jobs)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// RunInTransaction applies the provided function within a transaction, then snapshots state to SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	res, err := s.memStore.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
