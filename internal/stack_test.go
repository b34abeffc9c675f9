package internal

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/feinschmecker/internal/models"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Graph.Location = filepath.Join(dir, "graph.nt")
	cfg.Graph.CacheDir = filepath.Join(dir, "cache")
	cfg.Graph.WaitTimeout = 0
	cfg.Graph.Placeholders = true
	cfg.Coord.Backend = CoordSQLite
	cfg.Coord.SQLitePath = filepath.Join(dir, "coord", "coord.db")
	cfg.Tasks.Workers = 1
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestNewApplicationRequiresConfig(t *testing.T) {
	if _, err := newApplication(nil); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestStackPublishesWrites(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	s, err := openStack(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.ready() {
		t.Fatal("ready before any graph was loaded")
	}
	if _, err := s.graph.PublishSource(ctx); err != nil {
		t.Fatal(err)
	}
	before := s.version(ctx)
	if before == 0 || !s.ready() {
		t.Fatalf("version after startup = %d, ready = %v", before, s.ready())
	}

	id, err := s.engine().Create(ctx, models.RecipeInput{
		Title:        models.String("Porridge"),
		Instructions: models.Instructions{"Simmer oats in milk."},
	})
	if err != nil {
		t.Fatal(err)
	}
	if after := s.version(ctx); after <= before {
		t.Errorf("version %d not greater than %d", after, before)
	}
	rec, err := s.recipes().Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "Porridge" {
		t.Errorf("recipe = %+v", rec)
	}
	if _, err := os.Stat(cfg.Graph.Location); err != nil {
		t.Errorf("graph not persisted: %v", err)
	}
}

func TestOpenTasksLocal(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openStack(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	queue, backend, err := s.openTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if queue == nil || backend == nil {
		t.Fatal("local task backend not opened")
	}
}

func TestRunWorkerRequiresNATS(t *testing.T) {
	cfg := testConfig(t)
	err := RunWorker(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "nats") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunImport(t *testing.T) {
	cfg := testConfig(t)
	dataset := filepath.Join(t.TempDir(), "recipes.json")
	data := `[{"title": "Tea", "instructions": "Steep.", "time": 5},
	          {"title": "Tea", "instructions": "Steep again."}]`
	if err := os.WriteFile(dataset, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	rep, err := RunImport(context.Background(), dataset, WithConfig(cfg), WithLogOutput(&logs))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Created != 1 || rep.Skipped != 1 {
		t.Errorf("report = %+v", rep)
	}
	if !strings.Contains(logs.String(), "importer: done") {
		t.Errorf("logs = %s", logs.String())
	}

	// A fresh process sees the imported recipe through the shared version.
	s, err := openStack(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	rec, err := s.recipes().Get(context.Background(), "tea")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Time != 5 || rec.Difficulty != 1 {
		t.Errorf("recipe = %+v", rec)
	}
}
