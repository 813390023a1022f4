// Package watch implements the platform watcher: the abstraction that
// observes filesystem changes and converts them into pending-collection
// items for the crawler to reconcile against the tree store. Concrete
// backends use inotify on Linux, FSEvents on Darwin, and directory-walk
// polling everywhere else.
package watch

import (
	"errors"
	"os"
	"time"

	"github.com/Server-perf/watchman/pkg/pending"
)

var (
	// ErrWatchTerminated indicates that a backend has been closed.
	ErrWatchTerminated = errors.New("watch: terminated")
	// ErrTooManyPendingPaths indicates that too many paths were coalesced
	// within a single window.
	ErrTooManyPendingPaths = errors.New("watch: too many pending paths")
	// ErrRootVanished indicates the watched root itself was deleted,
	// renamed or otherwise revoked.
	ErrRootVanished = errors.New("watch: root vanished")
	// ErrSyncLost indicates the kernel event queue overflowed and events
	// may have been missed; the caller must perform a recursive rescan.
	ErrSyncLost = errors.New("watch: sync lost")
)

// Filter excludes paths from being surfaced by a backend. It returns true
// for paths that should be ignored.
type Filter func(string) bool

const (
	// coalescingWindow is the time window for event coalescing before a
	// batch of raw events is translated into pending items.
	coalescingWindow = 20 * time.Millisecond
	// defaultCoalescingMaximumPendingPaths is CoalescingMaximumPendingPaths's
	// value before Configure is called.
	defaultCoalescingMaximumPendingPaths = 128
	// defaultHintNumDirs is HintNumDirs's value before Configure is
	// called, matching the reference design's suggested inotify watch
	// ceiling.
	defaultHintNumDirs = 8192
)

var (
	// CoalescingMaximumPendingPaths bounds memory use for a single
	// coalescing window's worth of raw paths. The inotify backend reads it
	// on every ConsumeNotify call. Set via Configure.
	CoalescingMaximumPendingPaths = defaultCoalescingMaximumPendingPaths
	// HintNumDirs is the initial capacity hint for a backend's
	// descriptor map, and (on backends with a bounded number of live
	// kernel watches, such as inotify) the LRU eviction ceiling. Set via
	// Configure before any Backend is constructed.
	HintNumDirs = defaultHintNumDirs
)

// Configure applies process-wide watcher tuning values, as loaded from
// pkg/configuration. It must be called before any Backend is constructed:
// HintNumDirs is read once, at construction time, while
// CoalescingMaximumPendingPaths is read on every ConsumeNotify call.
func Configure(hintNumDirs, coalescingMaximumPendingPaths int) {
	if hintNumDirs > 0 {
		HintNumDirs = hintNumDirs
	}
	if coalescingMaximumPendingPaths > 0 {
		CoalescingMaximumPendingPaths = coalescingMaximumPendingPaths
	}
}

// DirHandle is the readdir-style handle returned by StartWatchDir, which
// the crawler uses to enumerate a newly-watched directory's initial
// contents without a second syscall round-trip on backends that can
// produce one as a side effect of establishing the watch.
type DirHandle interface {
	// Close releases any resources held by the handle.
	Close() error
}

// Backend is the capability set every concrete watcher must provide (§4.2).
type Backend interface {
	// Init acquires platform resources for watching root.
	Init(root string) error
	// StartWatchDir begins observing dir for change events, returning a
	// handle the crawler may use to enumerate its initial contents.
	StartWatchDir(dir string, now time.Time) (DirHandle, error)
	// StartWatchFile begins observing one file. On backends where
	// directory watches subsume file watches this is a no-op.
	StartWatchFile(path string) error
	// StopWatchDir releases per-directory resources.
	StopWatchDir(dir string) error
	// ConsumeNotify drains available events into pending, returning
	// whether any item was enqueued.
	ConsumeNotify(pending *pending.Collection) (bool, error)
	// WaitNotify blocks up to timeout for new events. It reports whether
	// an event became available; it does not observe context
	// cancellation.
	WaitNotify(timeout time.Duration) bool
	// Close releases all platform resources held by the backend.
	Close() error
}

// simpleDirHandle is used by backends that have nothing to hold onto
// beyond the fact that the watch was established.
type simpleDirHandle struct{}

// Close implements DirHandle.Close.
func (simpleDirHandle) Close() error { return nil }

// ListedDirHandle carries the directory entries obtained as a side effect
// of establishing a watch, sparing the crawler a second readdir.
type ListedDirHandle struct {
	entries []os.DirEntry
}

// Close implements DirHandle.Close.
func (h *ListedDirHandle) Close() error { return nil }

// Entries returns the directory's entries as observed when the watch was
// established.
func (h *ListedDirHandle) Entries() []os.DirEntry { return h.entries }
