package persist

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dotcommander/claude-flow/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// defaultBusyTimeoutMS is the SQLite busy_timeout in milliseconds.
const defaultBusyTimeoutMS = 5000

// SQLiteBackend persists state, snapshots, and memory entries in a single
// SQLite database with WAL mode.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the database at dbPath,
// configures pragmas, and runs pending migrations.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	// modernc.org/sqlite is strict about DSNs. Use a file: URI with mode=rwc
	// so the database can be created/written consistently across platforms.
	db, err := sql.Open("sqlite", normalizeSQLiteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the coordinator serializes writes anyway, and a single
	// conn sidesteps SQLITE_BUSY between pool members.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// busy_timeout first so subsequent pragmas (including WAL) wait on locks.
	// synchronous=NORMAL skips fsync per commit; WAL still protects committed
	// txns, the exposure is the last checkpoint on OS crash, not corruption.
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeoutMS),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := retryWithBackoff(context.Background(), func() error {
			_, err := db.ExecContext(context.Background(), pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetVerbose(false)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.Up(db, "migrations")
}

func normalizeSQLiteDSN(dbPath string) string {
	if strings.HasPrefix(dbPath, "file:") {
		return dbPath
	}
	// Predictable in-memory option for tests.
	if dbPath == ":memory:" {
		return "file::memory:?cache=shared"
	}
	// mode=rwc => read/write/create; _txlock=immediate prevents writer
	// starvation under concurrent access.
	return "file:" + dbPath + "?mode=rwc&_txlock=immediate"
}

// Name identifies this backend in logs and Multi configuration.
func (s *SQLiteBackend) Name() string { return "sqlite" }

// Save upserts the singleton state row.
func (s *SQLiteBackend) Save(ctx context.Context, state []byte) error {
	return retryWithBackoff(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO flow_state (id, state, saved_at) VALUES (1, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET state = excluded.state, saved_at = CURRENT_TIMESTAMP
		`, state)
		if err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
		return nil
	})
}

// Load reads the singleton state row, ErrNotFound when none exists.
func (s *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	var state []byte
	err := retryWithBackoff(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT state FROM flow_state WHERE id = 1`).Scan(&state)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return state, nil
}

// SaveSnapshot upserts a snapshot row.
func (s *SQLiteBackend) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	return retryWithBackoff(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO snapshots (id, created_at, version, state) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET created_at = excluded.created_at,
				version = excluded.version, state = excluded.state
		`, snap.ID, snap.Timestamp.UTC().Format(time.RFC3339Nano), snap.Version, snap.State)
		if err != nil {
			return fmt.Errorf("failed to save snapshot %s: %w", snap.ID, err)
		}
		return nil
	})
}

func scanSnapshot(scan func(dest ...any) error) (models.Snapshot, error) {
	var snap models.Snapshot
	var createdAt string
	if err := scan(&snap.ID, &createdAt, &snap.Version, &snap.State); err != nil {
		return models.Snapshot{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to parse snapshot timestamp: %w", err)
	}
	snap.Timestamp = ts
	return snap, nil
}

// LoadSnapshot reads a snapshot by id.
func (s *SQLiteBackend) LoadSnapshot(ctx context.Context, id string) (models.Snapshot, error) {
	var snap models.Snapshot
	err := retryWithBackoff(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, created_at, version, state FROM snapshots WHERE id = ?`, id)
		var scanErr error
		snap, scanErr = scanSnapshot(row.Scan)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}
	return snap, nil
}

// ListSnapshots returns all snapshots, oldest first.
func (s *SQLiteBackend) ListSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	var snapshots []models.Snapshot
	err := retryWithBackoff(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, created_at, version, state FROM snapshots ORDER BY created_at ASC`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		snapshots = snapshots[:0]
		for rows.Next() {
			snap, err := scanSnapshot(rows.Scan)
			if err != nil {
				return err
			}
			snapshots = append(snapshots, snap)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

// DeleteSnapshot removes a snapshot row. Deleting a missing snapshot is a
// no-op.
func (s *SQLiteBackend) DeleteSnapshot(ctx context.Context, id string) error {
	return retryWithBackoff(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
		}
		return nil
	})
}

// SaveEntries upserts the given memory entries.
func (s *SQLiteBackend) SaveEntries(ctx context.Context, entries []models.MemoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return retryWithBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, entry := range entries {
			meta, err := json.Marshal(entry.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal entry metadata: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO memory_entries (id, agent_id, type, content, created_at, metadata)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET content = excluded.content,
					metadata = excluded.metadata
			`, entry.ID, entry.AgentID, string(entry.Type), entry.Content,
				entry.Timestamp.UTC().Format(time.RFC3339Nano), string(meta))
			if err != nil {
				return fmt.Errorf("failed to save entry %s: %w", entry.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// LoadEntries reads all memory entries, oldest first.
func (s *SQLiteBackend) LoadEntries(ctx context.Context) ([]models.MemoryEntry, error) {
	var entries []models.MemoryEntry
	err := retryWithBackoff(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, agent_id, type, content, created_at, metadata
			FROM memory_entries ORDER BY created_at ASC
		`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		entries = entries[:0]
		for rows.Next() {
			var entry models.MemoryEntry
			var entryType, createdAt, meta string
			if err := rows.Scan(&entry.ID, &entry.AgentID, &entryType,
				&entry.Content, &createdAt, &meta); err != nil {
				return err
			}
			entry.Type = models.MemoryType(entryType)
			ts, err := time.Parse(time.RFC3339Nano, createdAt)
			if err != nil {
				return fmt.Errorf("failed to parse entry timestamp: %w", err)
			}
			entry.Timestamp = ts
			if err := json.Unmarshal([]byte(meta), &entry.Metadata); err != nil {
				return fmt.Errorf("failed to parse entry metadata: %w", err)
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	return entries, nil
}

// Close runs PRAGMA optimize then closes the connection.
func (s *SQLiteBackend) Close() error {
	_, _ = s.db.ExecContext(context.Background(), "PRAGMA optimize")
	return s.db.Close()
}
