//go:build linux
// +build linux

package watch

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/Server-perf/watchman/pkg/pending"
	"github.com/Server-perf/watchman/pkg/timeutil"
	"github.com/Server-perf/watchman/pkg/watch/internal/third_party/notify"
)

const (
	// inotifyChannelCapacity is the capacity of the raw inotify event
	// channel.
	inotifyChannelCapacity = 50

	// watchMask is the set of inotify events a directory watch requests.
	watchMask = notify.InModify | notify.InAttrib |
		notify.InCloseWrite |
		notify.InMovedFrom | notify.InMovedTo |
		notify.InCreate | notify.InDelete |
		notify.InDeleteSelf | notify.InMoveSelf
)

// linuxBackend implements Backend using inotify, with watched directories
// evicted on an LRU basis to bound live watch descriptors.
type linuxBackend struct {
	filter Filter

	watch   notify.Watcher
	evictor *lru.Cache

	// descriptors guards the watcher's descriptor-to-path bookkeeping,
	// kept as a dedicated mutex per the watcher's concurrency contract:
	// mapping updates must be visible before the corresponding kernel
	// registration completes.
	descriptors sync.Mutex
	watchedDirs map[string]bool

	root string

	rawEvents chan notify.EventInfo

	bufferMu sync.Mutex
	buffer   []notify.EventInfo
	ready    chan struct{}

	rootVanished bool
	overflowed   bool

	// waitTimer is reused across WaitNotify calls (which run one at a time
	// from the root's dedicated watcher goroutine) rather than allocated
	// fresh on every call.
	waitTimer *time.Timer
}

// NewBackend constructs the platform-appropriate Backend. On Linux this is
// always the inotify-based backend; callers wanting the polling fallback
// use NewPollingBackend explicitly.
func NewBackend(filter Filter) Backend {
	rawEvents := make(chan notify.EventInfo, inotifyChannelCapacity)
	b := &linuxBackend{
		filter:      filter,
		watch:       notify.NewWatcher(rawEvents),
		rawEvents:   rawEvents,
		watchedDirs: make(map[string]bool, HintNumDirs),
		ready:       make(chan struct{}, 1),
		waitTimer:   time.NewTimer(0),
	}
	timeutil.StopAndDrainTimer(b.waitTimer)
	b.evictor = lru.New(HintNumDirs)
	b.evictor.OnEvicted = func(key lru.Key, _ interface{}) {
		path := key.(string)
		b.descriptors.Lock()
		delete(b.watchedDirs, path)
		b.descriptors.Unlock()
		b.watch.Unwatch(path)
	}
	go b.pump()
	return b
}

// pump drains the underlying notify watcher's raw channel into an
// internally buffered queue, signaling ready whenever the buffer
// transitions from empty to non-empty.
func (b *linuxBackend) pump() {
	for e := range b.rawEvents {
		b.bufferMu.Lock()
		wasEmpty := len(b.buffer) == 0
		b.buffer = append(b.buffer, e)
		b.bufferMu.Unlock()
		if wasEmpty {
			select {
			case b.ready <- struct{}{}:
			default:
			}
		}
	}
}

// Init implements Backend.Init.
func (b *linuxBackend) Init(root string) error {
	b.root = root
	return nil
}

// StartWatchDir implements Backend.StartWatchDir.
func (b *linuxBackend) StartWatchDir(dir string, now time.Time) (DirHandle, error) {
	b.descriptors.Lock()
	b.watchedDirs[dir] = true
	b.descriptors.Unlock()

	b.evictor.Remove(dir)
	if err := b.watch.Watch(dir, watchMask); err != nil {
		b.descriptors.Lock()
		delete(b.watchedDirs, dir)
		b.descriptors.Unlock()
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("watch: inotify watch failed for %s: %w", dir, err)
	}
	b.evictor.Add(dir, struct{}{})

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: readdir failed for %s: %w", dir, err)
	}
	return &ListedDirHandle{entries: entries}, nil
}

// StartWatchFile implements Backend.StartWatchFile. Inotify directory
// watches already report changes to their immediate children, so watching
// individual files is unnecessary.
func (b *linuxBackend) StartWatchFile(path string) error {
	return nil
}

// StopWatchDir implements Backend.StopWatchDir.
func (b *linuxBackend) StopWatchDir(dir string) error {
	b.descriptors.Lock()
	delete(b.watchedDirs, dir)
	b.descriptors.Unlock()
	b.evictor.Remove(dir)
	return b.watch.Unwatch(dir)
}

// ConsumeNotify implements Backend.ConsumeNotify, applying the
// event-to-pending mapping rules: root deletion/rename surfaces
// ErrRootVanished immediately, directory deletion/rename enqueues a
// recursive item and unregisters the watch, everything else enqueues a
// plain via-notify item.
func (b *linuxBackend) ConsumeNotify(items *pending.Collection) (bool, error) {
	b.bufferMu.Lock()
	batch := b.buffer
	b.buffer = nil
	b.bufferMu.Unlock()

	if len(batch) == 0 {
		return false, nil
	}
	if len(batch) > CoalescingMaximumPendingPaths {
		return false, ErrTooManyPendingPaths
	}

	now := time.Now()
	progressed := false
	for _, e := range batch {
		path := e.Path()
		if b.filter != nil && b.filter(path) {
			continue
		}

		mask := e.Event()
		isDeletionOrRename := mask&(notify.InDelete|notify.InDeleteSelf|notify.InMovedFrom|notify.InMoveSelf) != 0

		if path == b.root && isDeletionOrRename {
			return progressed, ErrRootVanished
		}

		if isDeletionOrRename {
			b.descriptors.Lock()
			_, watched := b.watchedDirs[path]
			delete(b.watchedDirs, path)
			b.descriptors.Unlock()
			if watched {
				b.evictor.Remove(path)
				b.watch.Unwatch(path)
			}
			items.Add(path, now, pending.ViaNotify|pending.Recursive)
		} else {
			items.Add(path, now, pending.ViaNotify)
		}
		progressed = true
	}

	return progressed, nil
}

// WaitNotify implements Backend.WaitNotify. The ready channel only
// signals empty-to-non-empty transitions, so a stale signal left over from
// a wakeup that raced with a concurrent ConsumeNotify drain is possible;
// the buffer is rechecked after every wakeup to guard against reporting a
// ready event that's already been consumed.
func (b *linuxBackend) WaitNotify(timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		b.bufferMu.Lock()
		nonEmpty := len(b.buffer) > 0
		b.bufferMu.Unlock()
		if nonEmpty {
			return true
		}

		if deadline.IsZero() {
			<-b.ready
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		b.waitTimer.Reset(remaining)
		select {
		case <-b.ready:
			timeutil.StopAndDrainTimer(b.waitTimer)
		case <-b.waitTimer.C:
			return false
		}
	}
}

// Close implements Backend.Close.
func (b *linuxBackend) Close() error {
	return b.watch.Close()
}
