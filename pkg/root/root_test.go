package root

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Server-perf/watchman/pkg/logging"
)

func TestRootStartStopCrawlsInitialContent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal("unable to write test file:", err)
	}

	r := New(dir, logging.RootLogger)
	if err := r.Start(); err != nil {
		t.Fatal("unable to start root:", err)
	}
	defer r.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r.View().RLock(time.Second)
		root := r.View().Root()
		_, ok := root.ChildFile("a.txt")
		r.View().RUnlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("initial crawl did not observe a.txt in time")
}

func TestRootNumberAssignment(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	r1 := New(dir1, logging.RootLogger)
	r2 := New(dir2, logging.RootLogger)

	if r1.RootNumber() == r2.RootNumber() {
		t.Error("expected distinct roots to receive distinct root numbers")
	}
}

func TestRootSessionIDAssignment(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	r1 := New(dir1, logging.RootLogger)
	r2 := New(dir2, logging.RootLogger)

	if r1.SessionID() == "" {
		t.Error("expected a non-empty session identifier")
	}
	if r1.SessionID() == r2.SessionID() {
		t.Error("expected distinct roots to receive distinct session identifiers")
	}
}
