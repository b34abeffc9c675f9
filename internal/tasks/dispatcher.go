package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Dispatcher submits tasks and reports their status.
type Dispatcher struct {
	queue   Queue
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher over q and b.
func NewDispatcher(q Queue, b Backend, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{queue: q, backend: b, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Submit records a PENDING result for a new task and enqueues it. The
// returned error wraps ErrSubmitFailed.
func (d *Dispatcher) Submit(ctx context.Context, name string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: encode payload: %w", ErrSubmitFailed, err)
	}
	t := Task{ID: uuid.NewString(), Name: name, Payload: data, Submitted: d.now().UTC()}
	pending := Result{TaskID: t.ID, Name: name, State: StatePending, UpdatedAt: t.Submitted}
	if err := d.backend.Set(ctx, pending); err != nil {
		return "", fmt.Errorf("%w: record %s: %w", ErrSubmitFailed, t.ID, err)
	}
	if err := d.queue.Enqueue(ctx, t); err != nil {
		d.logger.Warn("tasks: enqueue failed",
			slog.String("task", name),
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()))
		failed := pending
		failed.State = StateFailure
		failed.Error = "task could not be queued"
		failed.ErrorKind = KindTransient
		failed.UpdatedAt = d.now().UTC()
		_ = d.backend.Set(ctx, failed)
		return "", fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	d.logger.Debug("tasks: submitted", slog.String("task", name), slog.String("task_id", t.ID))
	return t.ID, nil
}

// Status returns the recorded result of id. Unknown ids are PENDING, since
// a worker may not have seen the task yet.
func (d *Dispatcher) Status(ctx context.Context, id string) (Result, error) {
	r, ok, err := d.backend.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{TaskID: id, State: StatePending}, nil
	}
	return r, nil
}
