// Package worker implements the persistence worker: a single goroutine that
// owns the SQLite store and consumes an ordered, unbounded task queue.
//
// Enqueueing never blocks the caller; all store I/O happens on the worker
// goroutine. A failing task is logged and the worker moves on; no task
// failure ever propagates to the producer side.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/speedhist/internal/errors"
	"github.com/xtxerr/speedhist/internal/history/store"
	"github.com/xtxerr/speedhist/internal/logging"
)

var log = logging.Component("worker")

// Task is one unit of store work executed on the worker goroutine.
type Task interface {
	Name() string
	Execute(ctx context.Context, st *store.Store) error
}

type funcTask struct {
	name string
	fn   func(ctx context.Context, st *store.Store) error
}

func (t *funcTask) Name() string { return t.name }

func (t *funcTask) Execute(ctx context.Context, st *store.Store) error {
	return t.fn(ctx, st)
}

// NewTask wraps a function as a named Task.
func NewTask(name string, fn func(ctx context.Context, st *store.Store) error) Task {
	return &funcTask{name: name, fn: fn}
}

// Worker is the single-threaded executor owning the store connection.
type Worker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	stopped bool

	st   *store.Store
	done chan struct{}

	// Statistics
	tasksExecuted atomic.Int64
	tasksFailed   atomic.Int64
}

// New creates a stopped worker. Call Start to open the store and begin
// processing.
func New() *Worker {
	w := &Worker{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start opens the history database, applies and verifies the schema, and
// starts the executor goroutine. Open and schema errors are fatal and
// returned to the caller; nothing runs in the background until they pass.
func (w *Worker) Start(dbPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.st != nil {
		return errors.Wrap(errors.ErrAlreadyRunning, "worker")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}

	w.st = st
	w.stopped = false
	w.done = make(chan struct{})
	go w.run(st)

	log.Info("worker started", "db", dbPath)
	return nil
}

// Enqueue appends a task to the queue. It never blocks; it only fails once
// shutdown has begun.
func (w *Worker) Enqueue(t Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || w.st == nil {
		return errors.ErrWorkerStopped
	}

	w.queue = append(w.queue, t)
	w.cond.Signal()
	return nil
}

// Do enqueues a task and waits for it to execute, returning the task's
// error. Used for read operations, which must also go through the queue so
// that only the worker ever touches the store.
func (w *Worker) Do(ctx context.Context, name string, fn func(ctx context.Context, st *store.Store) error) error {
	done := make(chan error, 1)

	err := w.Enqueue(NewTask(name, func(ctx context.Context, st *store.Store) error {
		err := fn(ctx, st)
		done <- err
		return err
	}))
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the executor loop. Tasks execute strictly in enqueue order. The
// store is passed in rather than read from w.st so that shutdown can clear
// the field without racing an in-flight task.
func (w *Worker) run(st *store.Store) {
	defer close(w.done)

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.stopped {
			w.mu.Unlock()
			return
		}
		t := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		// No cancellation of in-flight tasks; each operates on a bounded
		// slice of history and completes in bounded time.
		if err := t.Execute(context.Background(), st); err != nil {
			w.tasksFailed.Add(1)
			log.Error("task failed", "task", t.Name(), "error", err)
			continue
		}
		w.tasksExecuted.Add(1)
	}
}

// Shutdown stops accepting tasks, drains the queue up to the context
// deadline, and closes the store. On timeout the caller gets ErrQueueDrain
// immediately; the executor keeps draining and the store is closed only
// once it exits, so in-flight tasks never see a closed handle.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if w.st == nil {
		w.mu.Unlock()
		return nil
	}
	st := w.st
	w.st = nil
	w.stopped = true
	w.cond.Broadcast()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("shutdown timed out with tasks pending", "pending", w.QueueDepth())
		go func() {
			<-done
			if err := st.Close(); err != nil {
				log.Error("close store", "error", err)
			}
		}()
		return errors.Wrap(errors.ErrQueueDrain, "shutdown")
	}

	err := st.Close()
	if err != nil {
		log.Error("close store", "error", err)
	}

	log.Info("worker stopped",
		"executed", w.tasksExecuted.Load(),
		"failed", w.tasksFailed.Load())
	return err
}

// QueueDepth returns the current number of queued tasks.
func (w *Worker) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// IsRunning returns whether the worker is accepting tasks.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st != nil && !w.stopped
}

// Stats returns worker statistics.
func (w *Worker) Stats() Stats {
	return Stats{
		TasksExecuted: w.tasksExecuted.Load(),
		TasksFailed:   w.tasksFailed.Load(),
		QueueDepth:    w.QueueDepth(),
	}
}

// Stats holds worker statistics.
type Stats struct {
	TasksExecuted int64
	TasksFailed   int64
	QueueDepth    int
}
