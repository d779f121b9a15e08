// Package store provides access to the embedded SQLite history database.
//
// The store is strictly single-writer: only the persistence worker may hold
// it, and the connection pool is pinned to one connection. All multi-row
// mutations run inside a transaction so that a mid-operation failure leaves
// previously committed state unchanged.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/xtxerr/speedhist/internal/errors"
	"github.com/xtxerr/speedhist/internal/history/types"
	"github.com/xtxerr/speedhist/internal/logging"
)

var log = logging.Component("store")

// Metadata keys used by the retention state machine.
const (
	MetaDBVersion            = "db_version"
	MetaCurrentRetentionDays = "current_retention_days"
	MetaPendingRetentionDays = "pending_retention_days"
	MetaPruneScheduledAt     = "prune_scheduled_at"
)

// Store owns the SQLite connection to the history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the history database at path, applies the
// schema, and verifies the schema version. A version mismatch is fatal:
// there is no in-place migration path.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, err.Error())
	}

	// Force a connection so the file exists before schema setup.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %v: %w", path, err, errors.ErrStoreUnavailable)
	}

	// SQLite is single-writer; the worker is the only client.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle. Test and worker use only.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// InsertSamples writes a batch of raw samples in one transaction.
// Conflicting (timestamp, interface_name) keys are overwritten, not
// duplicated, so re-delivering a batch is harmless.
func (s *Store) InsertSamples(ctx context.Context, samples []types.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO speed_history_raw
				(timestamp, interface_name, upload_bytes_sec, download_bytes_sec)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range samples {
			smp := &samples[i]
			if _, err := stmt.ExecContext(ctx, smp.Timestamp, smp.Interface, smp.Upload, smp.Download); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert %d samples: %v: %w", len(samples), err, errors.ErrTransientWrite)
	}

	log.Debug("persisted batch", "samples", len(samples))
	return nil
}

// Vacuum reclaims file space after bulk deletions. Must run outside any
// transaction.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// =============================================================================
// Metadata access
//
// Metadata helpers accept either *sql.DB or *sql.Tx so the retention state
// machine can read and write staging keys inside its maintenance transaction.
// =============================================================================

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Meta returns the metadata value for key, and whether it was present.
func Meta(ctx context.Context, q Querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read metadata %q: %w", key, err)
	}
	return value, true, nil
}

// MetaInt64 returns the metadata value for key parsed as an integer.
func MetaInt64(ctx context.Context, q Querier, key string) (int64, bool, error) {
	value, ok, err := Meta(ctx, q, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	var n int64
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, false, fmt.Errorf("metadata %q is not an integer: %q", key, value)
	}
	return n, true, nil
}

// SetMeta writes (or overwrites) a metadata key.
func SetMeta(ctx context.Context, q Querier, key, value string) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("write metadata %q: %w", key, err)
	}
	return nil
}

// SetMetaInt64 writes an integer metadata value.
func SetMetaInt64(ctx context.Context, q Querier, key string, n int64) error {
	return SetMeta(ctx, q, key, fmt.Sprintf("%d", n))
}

// DelMeta removes a metadata key. Removing an absent key is a no-op.
func DelMeta(ctx context.Context, q Querier, key string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM metadata WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete metadata %q: %w", key, err)
	}
	return nil
}

// =============================================================================
// Range reads
// =============================================================================

// QueryRange returns history rows with since <= timestamp < until from all
// three tables merged into one series, ordered oldest to newest. An empty
// interfaces slice matches every interface.
func (s *Store) QueryRange(ctx context.Context, since, until int64, interfaces []string) ([]types.SpeedRecord, error) {
	if until <= since {
		return nil, errors.ErrInvalidRange
	}

	filter, args := interfaceFilter(interfaces)

	query := fmt.Sprintf(`
		SELECT timestamp, interface_name,
		       upload_bytes_sec, download_bytes_sec,
		       upload_bytes_sec, download_bytes_sec, 0
		FROM speed_history_raw
		WHERE timestamp >= ? AND timestamp < ?%s
		UNION ALL
		SELECT timestamp, interface_name,
		       upload_avg, download_avg, upload_max, download_max, 1
		FROM speed_history_minute
		WHERE timestamp >= ? AND timestamp < ?%s
		UNION ALL
		SELECT timestamp, interface_name,
		       upload_avg, download_avg, upload_max, download_max, 2
		FROM speed_history_hour
		WHERE timestamp >= ? AND timestamp < ?%s
		ORDER BY timestamp`, filter, filter, filter)

	var all []any
	for i := 0; i < 3; i++ {
		all = append(all, since, until)
		all = append(all, args...)
	}

	rows, err := s.db.QueryContext(ctx, query, all...)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer rows.Close()

	var records []types.SpeedRecord
	for rows.Next() {
		var rec types.SpeedRecord
		var res int
		if err := rows.Scan(&rec.Timestamp, &rec.Interface,
			&rec.Upload, &rec.Download, &rec.UploadMax, &rec.DownloadMax, &res); err != nil {
			return nil, fmt.Errorf("scan range row: %w", err)
		}
		rec.Resolution = types.Resolution(res)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MaxSpeeds returns the maximum observed upload and download rates at or
// after since, across all three tables.
func (s *Store) MaxSpeeds(ctx context.Context, since int64) (upload, download float64, err error) {
	query := `
		SELECT MAX(u), MAX(d) FROM (
			SELECT MAX(upload_bytes_sec) AS u, MAX(download_bytes_sec) AS d
			FROM speed_history_raw WHERE timestamp >= ?
			UNION ALL
			SELECT MAX(upload_max), MAX(download_max)
			FROM speed_history_minute WHERE timestamp >= ?
			UNION ALL
			SELECT MAX(upload_max), MAX(download_max)
			FROM speed_history_hour WHERE timestamp >= ?
		)`

	var up, down sql.NullFloat64
	err = s.db.QueryRowContext(ctx, query, since, since, since).Scan(&up, &down)
	if err != nil {
		return 0, 0, fmt.Errorf("query max speeds: %w", err)
	}
	return up.Float64, down.Float64, nil
}

// interfaceFilter builds a parameterized "AND interface_name IN (...)"
// clause. Empty input produces no filter.
func interfaceFilter(interfaces []string) (string, []any) {
	if len(interfaces) == 0 {
		return "", nil
	}
	placeholders := strings.Repeat("?,", len(interfaces))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(interfaces))
	for i, name := range interfaces {
		args[i] = name
	}
	return " AND interface_name IN (" + placeholders + ")", args
}
