package history

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xtxerr/speedhist/internal/config"
	"github.com/xtxerr/speedhist/internal/errors"
	"github.com/xtxerr/speedhist/internal/history/aggregate"
	"github.com/xtxerr/speedhist/internal/history/buffer"
	"github.com/xtxerr/speedhist/internal/history/retention"
	"github.com/xtxerr/speedhist/internal/history/store"
	"github.com/xtxerr/speedhist/internal/history/types"
	"github.com/xtxerr/speedhist/internal/history/worker"
	"github.com/xtxerr/speedhist/internal/logging"
)

var log = logging.Component("history")

// Service is the ingestion facade consumed by the collector and the UI.
// It owns the buffer and the persistence worker; callers never see the
// store, and no call here blocks on store I/O except the query operations,
// which round-trip through the worker queue.
type Service struct {
	config *config.Config

	buffer *buffer.Buffer
	worker *worker.Worker

	running atomic.Bool

	// now is injectable for tests.
	now func() time.Time
}

// New creates the engine from config. Nothing touches the filesystem until
// Start.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &Service{
		config: cfg,
		buffer: buffer.New(cfg.Ingest.LiveWindowSize, cfg.Ingest.NegligibleSpeedThreshold),
		worker: worker.New(),
		now:    time.Now,
	}, nil
}

// Start opens the store and starts the persistence worker. Store-open and
// schema-version failures are returned here rather than surfacing later in
// the background.
func (s *Service) Start() error {
	if s.running.Load() {
		return errors.Wrap(errors.ErrAlreadyRunning, "history service")
	}

	if err := s.worker.Start(s.config.Database.Path); err != nil {
		return err
	}

	s.running.Store(true)
	return nil
}

// AddSample records one polling cycle's per-interface speeds, stamped with
// the current time. It never blocks on I/O.
func (s *Service) AddSample(speeds map[string]types.Speed) {
	s.AddSampleAt(s.now(), speeds)
}

// AddSampleAt records speeds with an explicit timestamp.
func (s *Service) AddSampleAt(ts time.Time, speeds map[string]types.Speed) {
	if len(speeds) == 0 {
		return
	}
	s.buffer.Add(ts.Unix(), speeds)
}

// Flush hands the pending batch to the persistence worker. An empty batch
// issues no task.
func (s *Service) Flush() {
	batch := s.buffer.TakeAndClear()
	if len(batch) == 0 {
		return
	}

	err := s.worker.Enqueue(worker.NewTask("persist_speed",
		func(ctx context.Context, st *store.Store) error {
			return st.InsertSamples(ctx, batch)
		}))
	if err != nil {
		// Shutdown already began; the batch for this cycle is lost, which is
		// the accepted tradeoff over blocking the producer.
		log.Warn("flush dropped", "samples", len(batch), "error", err)
	}
}

// RunMaintenance enqueues one aggregation + retention pass evaluated at the
// given instant. The explicit timestamp keeps the pass deterministic and
// independent of when the worker gets to it.
func (s *Service) RunMaintenance(now time.Time) {
	err := s.worker.Enqueue(worker.NewTask("run_maintenance",
		func(ctx context.Context, st *store.Store) error {
			return s.maintain(ctx, st, now)
		}))
	if err != nil {
		log.Warn("maintenance skipped", "error", err)
	}
}

// maintain runs aggregation then retention. Failures are tagged with
// ErrMaintenanceFailed while keeping the underlying chain intact.
func (s *Service) maintain(ctx context.Context, st *store.Store, now time.Time) error {
	if _, err := aggregate.Run(ctx, st, now); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrMaintenanceFailed, err)
	}

	res, err := retention.Run(ctx, st, s.config.Retention.KeepDataDays, now)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrMaintenanceFailed, err)
	}

	if res.Action == retention.ActionExecute {
		// Reclaim file space after the bulk delete. Failure here is
		// cosmetic; the next prune retries it.
		if err := st.Vacuum(ctx); err != nil {
			log.Warn("vacuum failed", "error", err)
		}
	}
	return nil
}

// LiveWindow returns the in-memory rolling window for graphing, oldest
// first. It reflects every interface, including negligible speeds, and is
// unaffected by persistence.
func (s *Service) LiveWindow() []types.SpeedSnapshot {
	return s.buffer.Window()
}

// QueryRange reads history rows in [since, until) across all resolutions,
// optionally filtered by interface names. The read executes on the worker
// so the single-connection invariant holds.
func (s *Service) QueryRange(ctx context.Context, since, until time.Time, interfaces []string) ([]types.SpeedRecord, error) {
	var records []types.SpeedRecord
	err := s.worker.Do(ctx, "query_range", func(ctx context.Context, st *store.Store) error {
		var err error
		records, err = st.QueryRange(ctx, since.Unix(), until.Unix(), interfaces)
		return err
	})
	return records, err
}

// MaxSpeeds returns the maximum observed upload and download rates since the
// given instant, across all resolutions.
func (s *Service) MaxSpeeds(ctx context.Context, since time.Time) (upload, download float64, err error) {
	err = s.worker.Do(ctx, "max_speeds", func(ctx context.Context, st *store.Store) error {
		var qerr error
		upload, download, qerr = st.MaxSpeeds(ctx, since.Unix())
		return qerr
	})
	return upload, download, err
}

// Shutdown flushes pending samples, drains the worker queue up to the
// context deadline, and closes the store. Safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.running.Swap(false) {
		return nil
	}

	s.Flush()
	return s.worker.Shutdown(ctx)
}

// IsRunning returns whether the engine is accepting samples.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Stats returns combined engine statistics.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		Running: s.running.Load(),
		Buffer:  s.buffer.Stats(),
		Worker:  s.worker.Stats(),
	}
}

// ServiceStats holds combined engine statistics.
type ServiceStats struct {
	Running bool
	Buffer  buffer.Stats
	Worker  worker.Stats
}
