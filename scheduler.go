package rowfill

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// Task is one immutable unit of work: a row index, the prompt to send and
// the image that goes with it, if any.
type Task struct {
	Row    int // 0-based data row index
	Prompt string
	Image  *ImagePayload
}

// CallFunc performs the remote completion for one task and returns the
// value to record in the row's result cell.
type CallFunc func(ctx context.Context, task Task) (string, error)

// Scheduler dispatches tasks to a bounded worker pool. Per-row failures
// are contained — the row is logged and left empty for the next run — but
// a failed snapshot ends the run, since losing the ability to persist
// progress defeats the point of continuing.
type Scheduler struct {
	store    *ResultStore
	workers  int
	delay    time.Duration
	every    int
	progress bool
	log      *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWorkers sets the worker pool size. Default 3: a compromise between
// throughput and remote rate-limit risk, not derived from any
// server-advertised limit.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTaskDelay sets the fixed pre-call pacing applied to every task.
// Deliberately a constant sleep, not a token bucket.
func WithTaskDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.delay = d }
}

// WithSnapshotEvery sets how many successful completions trigger a
// snapshot. Default 10.
func WithSnapshotEvery(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.every = n
		}
	}
}

// WithProgressBar toggles the terminal progress display.
func WithProgressBar(enabled bool) SchedulerOption {
	return func(s *Scheduler) { s.progress = enabled }
}

// NewScheduler builds a Scheduler around the store that owns the table.
func NewScheduler(store *ResultStore, log *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		store:   store,
		workers: 3,
		every:   10,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes all tasks under the worker pool and returns the number of
// rows that recorded a result. Completion order across rows is
// unspecified. A snapshot is written after every s.every successes and
// unconditionally before Run returns, so an abrupt termination loses at
// most the work since the last snapshot.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, call CallFunc) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	s.log.Info("dispatching tasks", "tasks", len(tasks), "workers", s.workers, "task_delay", s.delay)

	var bar *progressbar.ProgressBar
	if s.progress {
		bar = progressbar.NewOptions(len(tasks),
			progressbar.OptionSetDescription("processing"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
	}
	advance := func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.workers) // concurrency gate
	var completed atomic.Int64

	for _, task := range tasks {
		task := task
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if egCtx.Err() != nil {
				return egCtx.Err()
			}

			// Fixed pacing before every call to spread load on the
			// remote endpoint.
			if s.delay > 0 {
				select {
				case <-time.After(s.delay):
				case <-egCtx.Done():
					return egCtx.Err()
				}
			}

			result, err := call(egCtx, task)
			if err != nil {
				// Contained: the row stays empty and the next full run
				// retries it via the completion tracker.
				s.log.Error("row failed", "row", task.Row, "error", err)
				advance()
				return nil
			}

			s.store.RecordResult(task.Row, result)
			n := completed.Add(1)
			advance()

			if n%int64(s.every) == 0 {
				if err := s.store.Snapshot(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	runErr := eg.Wait()

	// Final snapshot regardless of how the run went; everything recorded
	// so far must land on disk.
	if err := s.store.Snapshot(); err != nil && runErr == nil {
		runErr = err
	}

	done := int(completed.Load())
	s.log.Info("dispatch finished", "completed", done, "failed", len(tasks)-done)
	return done, runErr
}
