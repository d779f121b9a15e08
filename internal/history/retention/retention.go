// Package retention applies the user's retention window to stored history.
//
// Shrinking the window never deletes data immediately. The request is staged
// in the metadata table and only executes once it has been sustained for the
// full grace period, so a momentary config change cannot destroy history.
// The state machine has two states, Stable and Shrink-Staged, driven by
// (keep_data_days, current_retention_days, now vs prune_scheduled_at).
package retention

import (
	"context"
	"database/sql"
	"time"

	"github.com/xtxerr/speedhist/internal/errors"
	"github.com/xtxerr/speedhist/internal/history/store"
	"github.com/xtxerr/speedhist/internal/logging"
)

var log = logging.Component("retention")

const (
	// GracePeriod is the mandatory delay between staging a shrink and
	// executing the prune.
	GracePeriod = 48 * time.Hour

	// UnlimitedDays is the effective retention when the metadata key is
	// absent (fresh database): keep everything.
	UnlimitedDays = 36500
)

// Action is the tagged decision the state machine produces for one
// maintenance run.
type Action int

const (
	// ActionNone: retention target matches effective retention.
	ActionNone Action = iota
	// ActionApplyGrowth: target grew; record it immediately, nothing to delete.
	ActionApplyGrowth
	// ActionCancel: a staged shrink is no longer requested; drop the staging.
	ActionCancel
	// ActionStage: a shrink was requested; schedule it after the grace period.
	ActionStage
	// ActionWait: a shrink is staged but the grace period has not elapsed.
	ActionWait
	// ActionExecute: the staged shrink is due; prune and commit the new window.
	ActionExecute
)

// String returns a human-readable representation of the Action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionApplyGrowth:
		return "apply-growth"
	case ActionCancel:
		return "cancel"
	case ActionStage:
		return "stage"
	case ActionWait:
		return "wait"
	case ActionExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// State is the persisted retention state read from metadata.
type State struct {
	CurrentDays int64
	PendingDays int64
	ScheduledAt int64 // Unix seconds; valid only when HasPending
	HasPending  bool
}

// Decision is the outcome of Decide for one run.
type Decision struct {
	Action      Action
	TargetDays  int64 // days to record as effective retention
	ScheduledAt int64 // stage: when the prune becomes due
	Cutoff      int64 // execute: delete rows with timestamp < Cutoff
}

// Decide computes the retention transition for one maintenance run.
// It is a pure function of the config target, the persisted state, and the
// injected clock value, which keeps every transition testable without a
// database or a wall clock.
func Decide(keepDays int64, st State, now time.Time) Decision {
	if keepDays >= st.CurrentDays {
		// No shrink requested. Any staged shrink is obsolete.
		if st.HasPending {
			return Decision{Action: ActionCancel, TargetDays: keepDays}
		}
		if keepDays > st.CurrentDays {
			// Growth deletes nothing, so it skips the grace period.
			return Decision{Action: ActionApplyGrowth, TargetDays: keepDays}
		}
		return Decision{Action: ActionNone}
	}

	// Shrink requested.
	if !st.HasPending {
		return Decision{
			Action:      ActionStage,
			TargetDays:  keepDays,
			ScheduledAt: now.Add(GracePeriod).Unix(),
		}
	}

	if now.Unix() >= st.ScheduledAt {
		return Decision{
			Action:     ActionExecute,
			TargetDays: st.PendingDays,
			Cutoff:     now.Add(-time.Duration(st.PendingDays) * 24 * time.Hour).Unix(),
		}
	}

	return Decision{Action: ActionWait}
}

// Result reports what one retention run did.
type Result struct {
	Action      Action
	RowsDeleted int64
	ScheduledAt int64 // set when a prune is (or stays) staged
}

// historyTables are pruned together: hour rows are the long-term record, but
// raw/minute rows that escaped aggregation (e.g. after downtime) must not
// outlive the retention window either.
var historyTables = []string{
	"speed_history_hour",
	"speed_history_minute",
	"speed_history_raw",
}

// Run reads the retention state, decides the transition for this run, and
// applies it in a single transaction. The caller should VACUUM after a Result
// with Action == ActionExecute.
func Run(ctx context.Context, st *store.Store, keepDays int, now time.Time) (Result, error) {
	var res Result

	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		state, err := readState(ctx, tx)
		if err != nil {
			return err
		}

		d := Decide(int64(keepDays), state, now)
		res.Action = d.Action

		switch d.Action {
		case ActionNone:
			return nil

		case ActionApplyGrowth:
			log.Info("retention grew", "days", d.TargetDays)
			return store.SetMetaInt64(ctx, tx, store.MetaCurrentRetentionDays, d.TargetDays)

		case ActionCancel:
			log.Info("staged prune cancelled", "target_days", d.TargetDays)
			if err := store.DelMeta(ctx, tx, store.MetaPendingRetentionDays); err != nil {
				return err
			}
			if err := store.DelMeta(ctx, tx, store.MetaPruneScheduledAt); err != nil {
				return err
			}
			if d.TargetDays > state.CurrentDays {
				return store.SetMetaInt64(ctx, tx, store.MetaCurrentRetentionDays, d.TargetDays)
			}
			return nil

		case ActionStage:
			log.Info("prune staged",
				"target_days", d.TargetDays,
				"due", time.Unix(d.ScheduledAt, 0).UTC().Format(time.RFC3339))
			res.ScheduledAt = d.ScheduledAt
			if err := store.SetMetaInt64(ctx, tx, store.MetaPendingRetentionDays, d.TargetDays); err != nil {
				return err
			}
			return store.SetMetaInt64(ctx, tx, store.MetaPruneScheduledAt, d.ScheduledAt)

		case ActionWait:
			res.ScheduledAt = state.ScheduledAt
			log.Debug("prune pending",
				"due", time.Unix(state.ScheduledAt, 0).UTC().Format(time.RFC3339))
			return nil

		case ActionExecute:
			for _, table := range historyTables {
				result, err := tx.ExecContext(ctx,
					"DELETE FROM "+table+" WHERE timestamp < ?", d.Cutoff)
				if err != nil {
					return err
				}
				n, err := result.RowsAffected()
				if err != nil {
					return err
				}
				res.RowsDeleted += n
			}
			if err := store.SetMetaInt64(ctx, tx, store.MetaCurrentRetentionDays, d.TargetDays); err != nil {
				return err
			}
			if err := store.DelMeta(ctx, tx, store.MetaPendingRetentionDays); err != nil {
				return err
			}
			if err := store.DelMeta(ctx, tx, store.MetaPruneScheduledAt); err != nil {
				return err
			}
			log.Info("prune executed", "retention_days", d.TargetDays, "rows_deleted", res.RowsDeleted)
			return nil
		}
		return nil
	})
	if err != nil {
		return res, errors.Wrap(err, "retention")
	}
	return res, nil
}

// readState loads the persisted retention state from metadata.
func readState(ctx context.Context, q store.Querier) (State, error) {
	var state State

	current, ok, err := store.MetaInt64(ctx, q, store.MetaCurrentRetentionDays)
	if err != nil {
		return state, err
	}
	if !ok {
		current = UnlimitedDays
	}
	state.CurrentDays = current

	pending, hasPending, err := store.MetaInt64(ctx, q, store.MetaPendingRetentionDays)
	if err != nil {
		return state, err
	}
	scheduled, hasSchedule, err := store.MetaInt64(ctx, q, store.MetaPruneScheduledAt)
	if err != nil {
		return state, err
	}

	// Both staging keys must be present for a stage to count; a half-written
	// pair is treated as no stage and gets rewritten on the next shrink.
	if hasPending && hasSchedule {
		state.PendingDays = pending
		state.ScheduledAt = scheduled
		state.HasPending = true
	}

	return state, nil
}
