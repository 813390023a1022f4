package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Server-perf/watchman/pkg/pending"
)

func TestPollingBackendDetectsCreate(t *testing.T) {
	dir := t.TempDir()
	backend := NewPollingBackend(nil, time.Hour)
	defer backend.Close()

	if err := backend.Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := backend.StartWatchDir(dir, time.Now()); err != nil {
		t.Fatalf("StartWatchDir: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	items := pending.New()
	progressed, err := backend.ConsumeNotify(items)
	if err != nil {
		t.Fatalf("ConsumeNotify: %v", err)
	}
	if !progressed {
		t.Fatal("expected ConsumeNotify to report progress after a create")
	}

	drained := items.Drain()
	found := false
	for _, item := range drained {
		if item.Path == filepath.Join(dir, "new.txt") {
			found = true
		}
	}
	if !found {
		t.Fatalf("did not find new file in pending items: %+v", drained)
	}
}

func TestPollingBackendDetectsDelete(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	backend := NewPollingBackend(nil, time.Hour)
	defer backend.Close()
	backend.Init(dir)
	if _, err := backend.StartWatchDir(dir, time.Now()); err != nil {
		t.Fatalf("StartWatchDir: %v", err)
	}

	if err := os.Remove(target); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	items := pending.New()
	if _, err := backend.ConsumeNotify(items); err != nil {
		t.Fatalf("ConsumeNotify: %v", err)
	}

	drained := items.Drain()
	found := false
	for _, item := range drained {
		if item.Path == target && item.Flags.Has(pending.Recursive) {
			found = true
		}
	}
	if !found {
		t.Fatalf("did not find deleted file marked recursive in pending items: %+v", drained)
	}
}

func TestPollingBackendRootVanished(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	backend := NewPollingBackend(nil, time.Hour)
	defer backend.Close()
	backend.Init(root)
	if _, err := backend.StartWatchDir(root, time.Now()); err != nil {
		t.Fatalf("StartWatchDir: %v", err)
	}

	if err := os.Remove(root); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	items := pending.New()
	if _, err := backend.ConsumeNotify(items); err != ErrRootVanished {
		t.Fatalf("ConsumeNotify error = %v, want ErrRootVanished", err)
	}
}
