// Package tasks runs searches and mutations as background tasks. A
// Dispatcher records a task and hands it to a Queue; a Worker consumes the
// queue, runs the registered handler under soft and hard time limits, retries
// transient failures with exponential backoff and stores every state change
// in a result Backend that callers poll.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/starford/feinschmecker/internal/apperr"
)

// State is the lifecycle state of a task.
type State string

const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateRetry   State = "RETRY"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool { return s == StateSuccess || s == StateFailure }

// Task names.
const (
	TaskSearch = "recipes.search"
	TaskCreate = "recipes.create"
	TaskUpdate = "recipes.update"
	TaskDelete = "recipes.delete"
)

// Kind classifies a task failure.
type Kind string

const (
	KindTransient Kind = "transient"
	KindTimeout   Kind = "timeout"
	KindPermanent Kind = "permanent"
)

var (
	// ErrSubmitFailed is returned when a task could not be recorded or queued.
	ErrSubmitFailed = errors.New("task submission failed")
	// ErrQueueFull is returned by the local queue when its buffer is full.
	ErrQueueFull = errors.New("task queue full")
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("task queue closed")
	// ErrUnknownTask is returned for a task name without a handler.
	ErrUnknownTask = errors.New("unknown task")
)

// Task is one unit of queued work.
type Task struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	Submitted time.Time       `json:"submitted"`
}

// Result is the polled status record of a task.
type Result struct {
	TaskID    string          `json:"task_id"`
	Name      string          `json:"name,omitempty"`
	State     State           `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind Kind            `json:"error_kind,omitempty"`
	Retries   int             `json:"retries"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Classify maps a handler error onto a failure kind. Only the worker's own
// time limits are timeouts. Network timeouts, deadlines the handler set
// itself, connection-level and explicitly marked errors are transient;
// everything else is permanent.
func Classify(err error) Kind {
	var te *transientError
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errSoftLimit), errors.Is(err, errHardLimit):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTransient
	case errors.As(err, &te):
		return KindTransient
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, apperr.ErrNoStoreLoaded):
		return KindTransient
	}
	return KindPermanent
}
