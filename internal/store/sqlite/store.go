package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the run ledger. The default DSN keeps it in memory for the
// lifetime of the process.
type Store struct {
	db     *sql.DB
	memory bool
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	memory := isMemoryDSN(dsn)
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A second connection to a private in-memory database would see an empty schema.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, memory: memory}
	for _, p := range pragmas(memory) {
		if _, err := db.ExecContext(ctx, "PRAGMA "+p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma %s: %w", p, err)
		}
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func pragmas(memory bool) []string {
	out := []string{"busy_timeout = 5000"}
	if !memory {
		out = append(out, "journal_mode = WAL", "synchronous = NORMAL")
	}
	return out
}

// Ping reports whether the ledger is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) InMemory() bool { return s.memory }

func (s *Store) Close() error {
	return s.db.Close()
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
