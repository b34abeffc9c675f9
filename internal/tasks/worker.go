package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/feinschmecker/internal/metrics"
	"github.com/starford/feinschmecker/internal/retry"
)

// Handler runs one task. Its return value is stored as the JSON result.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Limits bounds a task's run time and retries.
type Limits struct {
	Soft        time.Duration // cancels the handler's context
	Hard        time.Duration // abandons the handler
	MaxRetries  int
	BackoffUnit time.Duration // retry n waits Unit * Base^n
	BackoffBase float64
	BackoffCap  time.Duration
}

// DefaultLimits returns 20s/30s limits and 3 retries at 2s, 4s and 8s.
func DefaultLimits() Limits {
	return Limits{
		Soft:        20 * time.Second,
		Hard:        30 * time.Second,
		MaxRetries:  3,
		BackoffUnit: time.Second,
		BackoffBase: 2,
		BackoffCap:  30 * time.Second,
	}
}

func (l Limits) backoff() retry.Config {
	return retry.Config{
		MaxAttempts:  l.MaxRetries + 1,
		InitialDelay: time.Duration(float64(l.BackoffUnit) * l.BackoffBase),
		MaxDelay:     l.BackoffCap,
		Multiplier:   l.BackoffBase,
	}
}

// Delay returns the wait before retry n (1-based).
func (l Limits) Delay(n int) time.Duration { return retry.Backoff(l.backoff(), n) }

// Budget is the longest a task can take from first start to final state.
func (l Limits) Budget() time.Duration {
	total := time.Duration(l.MaxRetries+1) * l.Hard
	for n := 1; n <= l.MaxRetries; n++ {
		total += l.Delay(n)
	}
	return total
}

// Worker executes tasks with registered handlers.
type Worker struct {
	backend Backend
	limits  Limits
	metrics *metrics.Metrics
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(context.Context, time.Duration) error) WorkerOption {
	return func(w *Worker) { w.sleep = fn }
}

// NewWorker creates a Worker recording results in b.
func NewWorker(b Backend, limits Limits, opts ...WorkerOption) *Worker {
	w := &Worker{
		backend:  b,
		limits:   limits,
		logger:   slog.Default(),
		sleep:    retry.Sleep,
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Handle registers h for tasks named name.
func (w *Worker) Handle(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

// Run consumes q until ctx is done.
func (w *Worker) Run(ctx context.Context, q Queue) error {
	w.logger.Info("tasks: worker started")
	return q.Consume(ctx, w.Process)
}

// Process runs t to a terminal state, retrying transient failures.
func (w *Worker) Process(ctx context.Context, t Task) {
	w.mu.RLock()
	h, ok := w.handlers[t.Name]
	w.mu.RUnlock()

	r := Result{TaskID: t.ID, Name: t.Name}
	if !ok {
		w.fail(ctx, r, KindPermanent, fmt.Errorf("%w: %s", ErrUnknownTask, t.Name))
		return
	}

	start := w.now()
	defer func() { w.metrics.ObserveTask(t.Name, time.Since(start)) }()

	for {
		w.record(ctx, r, StateStarted)
		out, err := w.attempt(ctx, h, t.Payload)
		if err == nil {
			data, merr := json.Marshal(out)
			if merr != nil {
				w.fail(ctx, r, KindPermanent, fmt.Errorf("encode result: %w", merr))
				return
			}
			r.Result = data
			w.record(ctx, r, StateSuccess)
			w.logger.Info("tasks: succeeded",
				slog.String("task", t.Name),
				slog.String("task_id", t.ID),
				slog.Int("retries", r.Retries))
			return
		}

		kind := Classify(err)
		if kind != KindTransient {
			w.fail(ctx, r, kind, err)
			return
		}
		if r.Retries >= w.limits.MaxRetries {
			w.fail(ctx, r, KindTransient, fmt.Errorf("max retries exceeded: %w", err))
			return
		}
		r.Retries++
		delay := w.limits.Delay(r.Retries)
		r.Error = err.Error()
		r.ErrorKind = KindTransient
		w.record(ctx, r, StateRetry)
		w.metrics.TaskRetry(t.Name)
		w.logger.Warn("tasks: retry scheduled",
			slog.String("task", t.Name),
			slog.String("task_id", t.ID),
			slog.Int("retry", r.Retries),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		if err := w.sleep(ctx, delay); err != nil {
			w.fail(ctx, r, KindTransient, fmt.Errorf("worker stopped before retry: %w", err))
			return
		}
		r.Error, r.ErrorKind = "", ""
	}
}

type outcome struct {
	out any
	err error
}

// Returned by attempt when the handler outlived its limits. Only these
// classify as timeouts.
var (
	errSoftLimit = errors.New("soft time limit")
	errHardLimit = errors.New("hard time limit")
)

// attempt runs h once under the soft and hard limits. When the hard limit
// passes the handler goroutine is abandoned; its context is already
// cancelled.
func (w *Worker) attempt(ctx context.Context, h Handler, payload json.RawMessage) (any, error) {
	soft := w.limits.Soft
	if soft <= 0 {
		soft = DefaultLimits().Soft
	}
	hard := w.limits.Hard
	if hard < soft {
		hard = soft
	}
	runCtx, cancel := context.WithTimeout(ctx, soft)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("task panicked: %v", p)}
			}
		}()
		out, err := h(runCtx, payload)
		done <- outcome{out: out, err: err}
	}()

	timer := time.NewTimer(hard)
	defer timer.Stop()
	select {
	case o := <-done:
		if o.err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("task timed out after %s: %w", soft, errSoftLimit)
		}
		return o.out, o.err
	case <-timer.C:
		return nil, fmt.Errorf("task killed after hard time limit %s: %w", hard, errHardLimit)
	}
}

func (w *Worker) fail(ctx context.Context, r Result, kind Kind, err error) {
	r.Error = err.Error()
	r.ErrorKind = kind
	r.Result = nil
	w.record(ctx, r, StateFailure)
	w.logger.Error("tasks: failed",
		slog.String("task", r.Name),
		slog.String("task_id", r.TaskID),
		slog.String("kind", string(kind)),
		slog.Int("retries", r.Retries),
		slog.String("error", err.Error()))
}

func (w *Worker) record(ctx context.Context, r Result, state State) {
	r.State = state
	r.UpdatedAt = w.now().UTC()
	w.metrics.TaskState(r.Name, string(state))
	// Results outlive a cancelled worker context.
	if err := w.backend.Set(context.WithoutCancel(ctx), r); err != nil {
		w.logger.Error("tasks: record result failed",
			slog.String("task_id", r.TaskID),
			slog.String("state", string(state)),
			slog.String("error", err.Error()))
	}
}
