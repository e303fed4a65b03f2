package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/krisalay/fetchcache/types"
)

// Executor runs batches of independent tasks concurrently.
// One Executor can serve many RunAll calls at once; it only keeps statistics.
type Executor struct {
	log     *slog.Logger
	metrics Metrics
	now     func() time.Time

	// Atomic counters for thread-safe statistics
	active    atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	timedOut  atomic.Int64
}

type ExecutorOption func(*Executor)

func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.log = l }
}

func WithMetrics(m Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

func New(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = NoopMetrics{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.log = e.log.With(slog.String("component", "fanout"))
	return e
}

/*
RunAll runs every task and returns their results in submission order.

BEHAVIOR:
---------
  - At most opts.MaxConcurrency tasks run at once (default: all of them).
  - A failing task is reported in its own result; the others keep going.
  - With opts.FailFast the first failure cancels the batch: tasks still
    running or not yet started are marked *types.CancelledError and RunAll
    returns the triggering *types.ComputeError.
  - With opts.Timeout, tasks still outstanding at the deadline are marked
    *types.TimeoutError. Completed results are kept. A timeout alone never
    produces an overall error, even when nothing completed.
  - Cancelling ctx marks outstanding tasks *types.CancelledError.

RunAll returns once every result is terminal. A task function that ignores
its context keeps running in the background; its late result is discarded.
*/
func (e *Executor) RunAll(ctx context.Context, tasks []Task, opts Options) ([]TaskResult, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	log := e.log.With(slog.String("batch", gonanoid.Must(8)))
	start := e.now()

	results := make([]TaskResult, len(tasks))
	for i, t := range tasks {
		results[i].TaskID = taskID(t, i)
	}

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, opts.Timeout, types.ErrTimeout)
		defer cancel()
	}

	// errgroup cancels gctx with the first returned error as its cause.
	// Tasks only return errors in fail-fast mode.
	g, gctx := errgroup.WithContext(runCtx)

	limit := opts.MaxConcurrency
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}
	g.SetLimit(limit)

	scheduled := 0
	for i := range tasks {
		if gctx.Err() != nil {
			break
		}
		// Go blocks while all slots are busy.
		g.Go(func() error {
			return e.run(gctx, &results[i], tasks[i], opts)
		})
		scheduled++
	}

	err := g.Wait()

	// Anything the loop never handed to the group was cut off before starting.
	for i := scheduled; i < len(tasks); i++ {
		e.interrupt(gctx, &results[i], opts)
	}

	e.summarize(log, results, e.now().Sub(start))

	if opts.FailFast && err != nil {
		return results, err
	}
	return results, nil
}

// Stats returns cumulative statistics across all batches.
func (e *Executor) Stats() Stats {
	return Stats{
		Active:    e.active.Load(),
		Succeeded: e.succeeded.Load(),
		Failed:    e.failed.Load(),
		Cancelled: e.cancelled.Load(),
		TimedOut:  e.timedOut.Load(),
	}
}

type outcome struct {
	val any
	err error
}

// run executes one task and fills res. It returns a non-nil error only to
// trigger fail-fast.
func (e *Executor) run(ctx context.Context, res *TaskResult, t Task, opts Options) error {
	if ctx.Err() != nil {
		e.interrupt(ctx, res, opts)
		return nil
	}

	e.active.Add(1)
	defer e.active.Add(-1)
	e.metrics.TaskStarted()

	res.StartedAt = e.now()

	// Buffered so the goroutine never blocks if nobody is left to receive.
	done := make(chan outcome, 1)
	go func() {
		v, err := call(ctx, t)
		done <- outcome{v, err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		// Prefer a result that raced with the cancellation.
		select {
		case o = <-done:
		default:
			e.interrupt(ctx, res, opts)
			return nil
		}
	}

	// An error caused by the batch being cancelled is not the task's fault.
	if o.err != nil && ctx.Err() != nil {
		e.interrupt(ctx, res, opts)
		return nil
	}

	res.CompletedAt = e.now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)

	if o.err == nil {
		res.Value = o.val
		e.succeeded.Add(1)
		e.metrics.TaskFinished(OutcomeSucceeded, res.Duration)
		return nil
	}

	res.Err = asComputeError(res.TaskID, o.err)
	e.failed.Add(1)
	e.metrics.TaskFinished(OutcomeFailed, res.Duration)
	e.log.Warn("task failed", slog.String("task", res.TaskID), slog.Any("error", o.err))

	if opts.FailFast {
		return res.Err
	}
	return nil
}

// interrupt marks res as timed out or cancelled depending on why ctx ended.
func (e *Executor) interrupt(ctx context.Context, res *TaskResult, opts Options) {
	res.CompletedAt = e.now()
	if !res.StartedAt.IsZero() {
		res.Duration = res.CompletedAt.Sub(res.StartedAt)
	}

	cause := context.Cause(ctx)
	if errors.Is(cause, types.ErrTimeout) {
		res.Err = &types.TimeoutError{Key: res.TaskID, After: opts.Timeout}
		e.timedOut.Add(1)
		e.metrics.TaskFinished(OutcomeTimedOut, res.Duration)
		return
	}

	res.Err = &types.CancelledError{Key: res.TaskID, Cause: cause}
	e.cancelled.Add(1)
	e.metrics.TaskFinished(OutcomeCancelled, res.Duration)
}

func (e *Executor) summarize(log *slog.Logger, results []TaskResult, elapsed time.Duration) {
	var ok, failed, cancelled, timedOut int
	for _, r := range results {
		var te *types.TimeoutError
		var ce *types.CancelledError
		switch {
		case r.Err == nil:
			ok++
		case errors.As(r.Err, &te):
			timedOut++
		case errors.As(r.Err, &ce):
			cancelled++
		default:
			failed++
		}
	}

	log.Info("batch finished",
		slog.Int("tasks", len(results)),
		slog.Int("succeeded", ok),
		slog.Int("failed", failed),
		slog.Int("cancelled", cancelled),
		slog.Int("timed_out", timedOut),
		slog.Duration("elapsed", elapsed),
	)
}

// call runs t.Fn and turns a panic into an error so one task cannot crash the batch.
func call(ctx context.Context, t Task) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task: %v", r)
		}
	}()

	if t.Fn == nil {
		return nil, errors.New("no task function defined")
	}
	return t.Fn(ctx)
}

// asComputeError wraps err unless it already names this task.
func asComputeError(id string, err error) error {
	var ce *types.ComputeError
	if errors.As(err, &ce) && ce.Key == id {
		return ce
	}
	return &types.ComputeError{Key: id, Err: err}
}
