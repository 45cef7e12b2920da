package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/timmy/recipe-ingest/internal/config"
	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/inbox"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	body := "database:\n" +
		"  path: " + filepath.Join(dir, "db", "recipes.db") + "\n" +
		"  log_level: silent\n" +
		"ingestion:\n" +
		"  base_dir: " + filepath.Join(dir, "ingestion") + "\n" +
		"  drain_on_start: false\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if err := a.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if got := a.Catalog.Snapshot().Counts(); got.BaseIngredients == 0 || got.Units == 0 {
		t.Errorf("catalog counts = %+v, want seeded catalog", got)
	}
	for _, area := range []inbox.Area{inbox.AreaInbox, inbox.AreaProcessed, inbox.AreaFailed, inbox.AreaDLQ} {
		if _, err := os.Stat(a.Dirs.Dir(area)); err != nil {
			t.Errorf("area %s missing: %v", area, err)
		}
	}
	if a.Service.Status().Running {
		t.Error("service should not run before Start")
	}
}

func TestNewSeedsOnce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := first.Catalog.Snapshot().Counts()
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer second.Close()
	if got := second.Catalog.Snapshot().Counts(); got != want {
		t.Errorf("counts after restart = %+v, want %+v", got, want)
	}
}

func TestUnsupportedFileEndsInDLQ(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	path := filepath.Join(a.Dirs.Dir(inbox.AreaInbox), "scan.bin")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := a.Service.ProcessSingleFile(ctx, path)
	if err != nil {
		t.Fatalf("ProcessSingleFile() error = %v", err)
	}
	if res.Status != domain.JobStatusDLQ {
		t.Fatalf("status = %s, want DLQ", res.Status)
	}
	job, err := a.Service.GetJob(ctx, res.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Dirs.AreaOf(job.CurrentPath) != inbox.AreaDLQ {
		t.Errorf("file at %s, want dlq area", job.CurrentPath)
	}
}
