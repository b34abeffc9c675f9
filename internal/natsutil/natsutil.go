// Package natsutil holds the NATS connection and JetStream bucket helpers
// shared by the coordination store and the task queue.
package natsutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/starford/feinschmecker/internal/retry"
)

// Conn is a NATS connection with its JetStream context.
type Conn struct {
	NC *nats.Conn
	JS jetstream.JetStream
}

// Connect dials url, retrying with the quick schedule while ctx allows.
func Connect(ctx context.Context, url, name string) (*Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats: disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats: reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := retry.DoWithResult(ctx, retry.Quick(), func() (*nats.Conn, error) {
		return nats.Connect(url, opts...)
	})
	if err != nil {
		return nil, fmt.Errorf("natsutil: connect %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natsutil: jetstream: %w", err)
	}
	return &Conn{NC: nc, JS: js}, nil
}

// Close drains and closes the connection.
func (c *Conn) Close() error {
	if c == nil || c.NC == nil {
		return nil
	}
	return c.NC.Drain()
}

// KeyValue returns the bucket, creating it when missing.
func KeyValue(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return kv, nil
	}
	kv, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) || strings.Contains(err.Error(), "already in use") {
			return js.KeyValue(ctx, cfg.Bucket)
		}
		return nil, fmt.Errorf("natsutil: create bucket %s: %w", cfg.Bucket, err)
	}
	return kv, nil
}

// IsConflict reports whether err is a failed compare-and-set.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") || strings.Contains(msg, "10071")
}

// KeyFor maps a colon-separated key onto the KV key alphabet.
func KeyFor(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}
