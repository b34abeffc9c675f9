package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/starford/feinschmecker/internal/natsutil"
)

// NATSQueueConfig names the work-queue stream and its consumer.
type NATSQueueConfig struct {
	Stream  string
	Subject string
	Durable string
	Workers int
	// AckWait must cover a task's full lifetime including retries.
	AckWait time.Duration
}

// NATSQueue is a JetStream work-queue stream consumed through a durable
// pull consumer.
type NATSQueue struct {
	js     jetstream.JetStream
	cfg    NATSQueueConfig
	logger *slog.Logger

	mu sync.Mutex
	cc jetstream.ConsumeContext
}

// NewNATSQueue creates or updates the stream.
func NewNATSQueue(ctx context.Context, js jetstream.JetStream, cfg NATSQueueConfig) (*NATSQueue, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 5 * time.Minute
	}
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("tasks: create stream %s: %w", cfg.Stream, err)
	}
	return &NATSQueue{js: js, cfg: cfg, logger: slog.Default()}, nil
}

func (q *NATSQueue) Enqueue(ctx context.Context, t Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("tasks: encode task: %w", err)
	}
	if _, err := q.js.Publish(ctx, q.cfg.Subject, data, jetstream.WithMsgID(t.ID)); err != nil {
		return fmt.Errorf("tasks: publish %s: %w", t.ID, err)
	}
	return nil
}

// Consume runs at most cfg.Workers tasks at a time. A message is acked after
// its task reached a terminal state; undecodable messages are terminated.
func (q *NATSQueue) Consume(ctx context.Context, fn func(context.Context, Task)) error {
	cons, err := q.js.CreateOrUpdateConsumer(ctx, q.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       q.cfg.Durable,
		FilterSubject: q.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.cfg.AckWait,
		MaxAckPending: q.cfg.Workers,
	})
	if err != nil {
		return fmt.Errorf("tasks: create consumer %s: %w", q.cfg.Durable, err)
	}

	sem := make(chan struct{}, q.cfg.Workers)
	var wg sync.WaitGroup
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var t Task
		if err := json.Unmarshal(msg.Data(), &t); err != nil {
			q.logger.Error("tasks: bad message", slog.String("error", err.Error()))
			_ = msg.Term()
			return
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			_ = msg.Nak()
			return
		}
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			fn(ctx, t)
			if err := msg.Ack(); err != nil {
				q.logger.Warn("tasks: ack failed",
					slog.String("task_id", t.ID),
					slog.String("error", err.Error()))
			}
		}()
	}, jetstream.PullMaxMessages(q.cfg.Workers))
	if err != nil {
		return fmt.Errorf("tasks: consume: %w", err)
	}
	q.mu.Lock()
	q.cc = cc
	q.mu.Unlock()

	<-ctx.Done()
	cc.Stop()
	wg.Wait()
	return nil
}

func (q *NATSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cc != nil {
		q.cc.Stop()
		q.cc = nil
	}
	return nil
}

// NATSBackend keeps results in a JetStream key-value bucket whose TTL
// expires old entries.
type NATSBackend struct {
	kv jetstream.KeyValue
}

// NewNATSBackend opens or creates bucket.
func NewNATSBackend(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*NATSBackend, error) {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	kv, err := natsutil.KeyValue(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "feinschmecker task results",
		History:     1,
		TTL:         ttl,
	})
	if err != nil {
		return nil, err
	}
	return &NATSBackend{kv: kv}, nil
}

func (b *NATSBackend) Set(ctx context.Context, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("tasks: encode result: %w", err)
	}
	if _, err := b.kv.Put(ctx, natsutil.KeyFor(r.TaskID), data); err != nil {
		return fmt.Errorf("tasks: put result %s: %w", r.TaskID, err)
	}
	return nil
}

func (b *NATSBackend) Get(ctx context.Context, id string) (Result, bool, error) {
	entry, err := b.kv.Get(ctx, natsutil.KeyFor(id))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("tasks: get result %s: %w", id, err)
	}
	var r Result
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return Result{}, false, fmt.Errorf("tasks: decode result %s: %w", id, err)
	}
	return r, true, nil
}

func (b *NATSBackend) Close() error { return nil }
