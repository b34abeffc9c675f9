package coord

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/feinschmecker/internal/natsutil"
)

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "coord.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
	if url := os.Getenv("FEINSCHMECKER_TEST_NATS_URL"); url != "" {
		conn, err := natsutil.Connect(context.Background(), url, "coord-test")
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		bucket := fmt.Sprintf("coord_test_%d", time.Now().UnixNano())
		ns, err := NewNATSStore(context.Background(), conn.JS, bucket)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.JS.DeleteKeyValue(context.Background(), bucket) })
		stores["nats"] = ns
	}
	return stores
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "feinschmecker:missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "feinschmecker:ontology_uri", "/data/graph.nt"))
			v, ok, err := s.Get(ctx, "feinschmecker:ontology_uri")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "/data/graph.nt", v)

			next, err := s.Update(ctx, "feinschmecker:counter", func(cur string) (string, error) {
				assert.Equal(t, "", cur)
				return "1", nil
			})
			require.NoError(t, err)
			assert.Equal(t, "1", next)
			next, err = s.Update(ctx, "feinschmecker:counter", func(cur string) (string, error) {
				assert.Equal(t, "1", cur)
				return "2", nil
			})
			require.NoError(t, err)
			assert.Equal(t, "2", next)
		})
	}
}

func TestPublishIsStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := New(s, "test_"+name+":", WithClock(fixedClock(1_700_000_000)))
			v1, err := c.Publish(ctx, "/data/graph.nt")
			require.NoError(t, err)
			assert.Equal(t, int64(1_700_000_000), v1)

			// Same second: still strictly greater.
			v2, err := c.Publish(ctx, "/data/graph.nt")
			require.NoError(t, err)
			assert.Greater(t, v2, v1)

			st, err := c.Current(ctx)
			require.NoError(t, err)
			assert.Equal(t, v2, st.Version)
			assert.Equal(t, v2, st.Ready)
			assert.Equal(t, "/data/graph.nt", st.Local)
		})
	}
}

func TestPublishConcurrentWritersNeverCollide(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "coord.db")
	var versions sync.Map
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		s, err := OpenSQLite(dbPath)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		c := New(s, DefaultPrefix, WithClock(fixedClock(100)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				v, err := c.Publish(ctx, "")
				if !assert.NoError(t, err) {
					return
				}
				_, dup := versions.LoadOrStore(v, true)
				assert.False(t, dup, "version %d published twice", v)
			}
		}()
	}
	wg.Wait()
}

func TestLocationResolution(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"local when ready", State{Version: 5, Ready: 5, Local: "/l.nt", URI: "https://x/g.nt"}, "/l.nt"},
		{"uri when local not ready", State{Version: 6, Ready: 5, Local: "/l.nt", URI: "https://x/g.nt"}, "https://x/g.nt"},
		{"fallback when empty", State{}, "/cfg.nt"},
		{"uri without local", State{Version: 3, URI: "/u.nt"}, "/u.nt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Location("/cfg.nt"))
		})
	}
}

func TestPublishSource(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), DefaultPrefix, WithClock(fixedClock(42)))
	v, err := c.PublishSource(ctx, "https://example.org/graph.nt", "/cache/graph.nt")
	require.NoError(t, err)
	st, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{Version: v, URI: "https://example.org/graph.nt", Local: "/cache/graph.nt", Ready: v}, st)
	assert.Equal(t, "/cache/graph.nt", st.Location(""))
}

func TestMalformedVersionReadsAsZero(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, DefaultPrefix+KeyVersion, "not-a-number"))
	c := New(s, DefaultPrefix, WithClock(fixedClock(10)))
	st, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Version)
	v, err := c.Publish(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestNATSKeyMapping(t *testing.T) {
	assert.Equal(t, "feinschmecker.ontology_version", natsutil.KeyFor(DefaultPrefix+KeyVersion))
}
