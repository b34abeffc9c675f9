package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/starford/feinschmecker/internal/natsutil"
	"github.com/starford/feinschmecker/internal/retry"
)

// NATSStore keeps the coordination keys in a JetStream key-value bucket.
// Keys containing ':' are stored with '.' instead.
type NATSStore struct {
	kv jetstream.KeyValue
}

// NewNATSStore opens or creates bucket.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket string) (*NATSStore, error) {
	kv, err := natsutil.KeyValue(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "feinschmecker graph version pointer",
		History:     1,
	})
	if err != nil {
		return nil, err
	}
	return &NATSStore{kv: kv}, nil
}

func (s *NATSStore) Get(ctx context.Context, key string) (string, bool, error) {
	entry, err := s.kv.Get(ctx, natsutil.KeyFor(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("coord: kv get %s: %w", key, err)
	}
	return string(entry.Value()), true, nil
}

func (s *NATSStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.kv.Put(ctx, natsutil.KeyFor(key), []byte(value)); err != nil {
		return fmt.Errorf("coord: kv put %s: %w", key, err)
	}
	return nil
}

// Update is a compare-and-set loop on the key revision.
func (s *NATSStore) Update(ctx context.Context, key string, fn func(string) (string, error)) (string, error) {
	k := natsutil.KeyFor(key)
	cfg := retry.Config{MaxAttempts: 10, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, AddJitter: true}
	return retry.DoWithResult(ctx, cfg, func() (string, error) {
		entry, err := s.kv.Get(ctx, k)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			next, err := fn("")
			if err != nil {
				return "", retry.Permanent(err)
			}
			if _, err := s.kv.Create(ctx, k, []byte(next)); err != nil {
				return "", casError(key, err)
			}
			return next, nil
		case err != nil:
			return "", fmt.Errorf("coord: kv get %s: %w", key, err)
		}
		next, err := fn(string(entry.Value()))
		if err != nil {
			return "", retry.Permanent(err)
		}
		if _, err := s.kv.Update(ctx, k, []byte(next), entry.Revision()); err != nil {
			return "", casError(key, err)
		}
		return next, nil
	})
}

func casError(key string, err error) error {
	if natsutil.IsConflict(err) {
		return fmt.Errorf("coord: kv %s changed concurrently: %w", key, err)
	}
	return retry.Permanent(fmt.Errorf("coord: kv write %s: %w", key, err))
}

// Close is a no-op; the connection is owned by the caller.
func (s *NATSStore) Close() error { return nil }
