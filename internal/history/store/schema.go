package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xtxerr/speedhist/internal/errors"
)

// SchemaVersion is the current history database schema version.
// There is no migration path: a file written by a different version is
// rejected at startup rather than silently altered.
const SchemaVersion = 2

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS speed_history_raw (
		timestamp          INTEGER NOT NULL,
		interface_name     TEXT    NOT NULL,
		upload_bytes_sec   REAL    NOT NULL,
		download_bytes_sec REAL    NOT NULL,
		PRIMARY KEY (timestamp, interface_name)
	)`,
	`CREATE TABLE IF NOT EXISTS speed_history_minute (
		timestamp      INTEGER NOT NULL,
		interface_name TEXT    NOT NULL,
		upload_avg     REAL    NOT NULL,
		download_avg   REAL    NOT NULL,
		upload_max     REAL    NOT NULL,
		download_max   REAL    NOT NULL,
		PRIMARY KEY (timestamp, interface_name)
	)`,
	`CREATE TABLE IF NOT EXISTS speed_history_hour (
		timestamp      INTEGER NOT NULL,
		interface_name TEXT    NOT NULL,
		upload_avg     REAL    NOT NULL,
		download_avg   REAL    NOT NULL,
		upload_max     REAL    NOT NULL,
		download_max   REAL    NOT NULL,
		PRIMARY KEY (timestamp, interface_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_timestamp
		ON speed_history_raw (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_minute_interface_timestamp
		ON speed_history_minute (interface_name, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_hour_interface_timestamp
		ON speed_history_hour (interface_name, timestamp)`,
}

// initSchema idempotently creates the schema and verifies the recorded
// version. Running it against an initialized store only re-checks the
// version.
func (s *Store) initSchema() error {
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}

		version, ok, err := MetaInt64(ctx, tx, MetaDBVersion)
		if err != nil {
			return err
		}
		if !ok {
			return SetMetaInt64(ctx, tx, MetaDBVersion, SchemaVersion)
		}
		if version != SchemaVersion {
			return fmt.Errorf("database is version %d, expected %d: %w",
				version, SchemaVersion, errors.ErrSchemaVersionMismatch)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug("schema ready", "path", s.path, "version", SchemaVersion)
	return nil
}
