// Package aggregate implements the multi-resolution rollup: raw samples age
// into per-minute summaries, per-minute summaries age into per-hour
// summaries. Each phase is a single transaction so partial rollup (summary
// written, source kept, or vice versa) is never observable.
package aggregate

import (
	"context"
	"database/sql"
	"time"

	"github.com/xtxerr/speedhist/internal/errors"
	"github.com/xtxerr/speedhist/internal/history/store"
	"github.com/xtxerr/speedhist/internal/logging"
)

var log = logging.Component("aggregate")

const (
	// RawMaxAge is how long raw rows stay at native resolution.
	RawMaxAge = 24 * time.Hour

	// MinuteMaxAge is how long minute rows stay before rolling into hours.
	MinuteMaxAge = 30 * 24 * time.Hour

	minuteBucket = 60
	hourBucket   = 3600
)

// Result reports what one rollup pass did.
type Result struct {
	RawRowsDeleted    int64
	MinuteRowsDeleted int64
}

// Run executes both rollup phases against st using the injected clock value.
// Rows younger than the phase's age threshold are never touched; with no
// qualifying rows both phases are no-ops.
func Run(ctx context.Context, st *store.Store, now time.Time) (Result, error) {
	var res Result

	rawCutoff := now.Add(-RawMaxAge).Unix()
	deleted, err := rollup(ctx, st, rollupPhase{
		source: "speed_history_raw",
		dest:   "speed_history_minute",
		bucket: minuteBucket,
		srcAvg: [2]string{"upload_bytes_sec", "download_bytes_sec"},
		srcMax: [2]string{"upload_bytes_sec", "download_bytes_sec"},
		cutoff: rawCutoff,
	})
	if err != nil {
		return res, errors.Wrap(err, "raw to minute rollup")
	}
	res.RawRowsDeleted = deleted

	minuteCutoff := now.Add(-MinuteMaxAge).Unix()
	deleted, err = rollup(ctx, st, rollupPhase{
		source: "speed_history_minute",
		dest:   "speed_history_hour",
		bucket: hourBucket,
		srcAvg: [2]string{"upload_avg", "download_avg"},
		srcMax: [2]string{"upload_max", "download_max"},
		cutoff: minuteCutoff,
	})
	if err != nil {
		return res, errors.Wrap(err, "minute to hour rollup")
	}
	res.MinuteRowsDeleted = deleted

	if res.RawRowsDeleted > 0 || res.MinuteRowsDeleted > 0 {
		log.Info("rollup complete",
			"raw_rows", res.RawRowsDeleted,
			"minute_rows", res.MinuteRowsDeleted)
	}
	return res, nil
}

// rollupPhase describes one tier transition: which columns feed the averages
// and which feed the maxima (for raw rows they are the same columns).
type rollupPhase struct {
	source string
	dest   string
	bucket int64
	srcAvg [2]string
	srcMax [2]string
	cutoff int64
}

// rollup upserts bucketed summaries of all source rows strictly older than
// the cutoff into dest, then deletes the source rows, in one transaction.
// Returns the number of source rows consumed.
func rollup(ctx context.Context, st *store.Store, p rollupPhase) (int64, error) {
	var deleted int64

	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `
			INSERT INTO ` + p.dest + `
				(timestamp, interface_name, upload_avg, download_avg, upload_max, download_max)
			SELECT
				(timestamp / ?) * ?,
				interface_name,
				AVG(` + p.srcAvg[0] + `), AVG(` + p.srcAvg[1] + `),
				MAX(` + p.srcMax[0] + `), MAX(` + p.srcMax[1] + `)
			FROM ` + p.source + `
			WHERE timestamp < ?
			GROUP BY timestamp / ?, interface_name
			ON CONFLICT (timestamp, interface_name) DO UPDATE SET
				upload_avg   = excluded.upload_avg,
				download_avg = excluded.download_avg,
				upload_max   = excluded.upload_max,
				download_max = excluded.download_max`

		if _, err := tx.ExecContext(ctx, insert, p.bucket, p.bucket, p.cutoff, p.bucket); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			"DELETE FROM "+p.source+" WHERE timestamp < ?", p.cutoff)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
