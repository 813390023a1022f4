//go:build darwin
// +build darwin

package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mutagen-io/fsevents"

	"github.com/Server-perf/watchman/pkg/pending"
	"github.com/Server-perf/watchman/pkg/timeutil"
)

const (
	// fseventsChannelCapacity is the capacity of the raw FSEvents batch
	// channel.
	fseventsChannelCapacity = 50
	// fseventsCoalescingPeriod is the FSEvents API's own internal
	// coalescing latency.
	fseventsCoalescingPeriod = 10 * time.Millisecond
	// fseventsFlags request per-file granularity with immediate delivery
	// of isolated events outside a coalescing window.
	fseventsFlags = fsevents.NoDefer | fsevents.WatchRoot | fsevents.FileEvents
)

// darwinBackend implements Backend using a single recursive FSEvents
// stream rooted at the watched path. Unlike inotify, FSEvents watches a
// subtree natively, so StartWatchDir/StopWatchDir/StartWatchFile are all
// no-ops here; the root watch already covers everything beneath it.
type darwinBackend struct {
	filter Filter
	root   string

	stream *fsevents.EventStream
	raw    chan []fsevents.Event

	bufferMu sync.Mutex
	buffer   []fsevents.Event
	ready    chan struct{}

	closeOnce sync.Once

	// waitTimer is reused across WaitNotify calls rather than allocated
	// fresh on every call.
	waitTimer *time.Timer
}

// NewBackend constructs the platform-appropriate Backend, an
// FSEvents-based recursive watcher on Darwin.
func NewBackend(filter Filter) Backend {
	waitTimer := time.NewTimer(0)
	timeutil.StopAndDrainTimer(waitTimer)
	return &darwinBackend{
		filter:    filter,
		ready:     make(chan struct{}, 1),
		waitTimer: waitTimer,
	}
}

// Init implements Backend.Init.
func (b *darwinBackend) Init(root string) error {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("watch: unable to resolve root: %w", err)
	}
	b.root = resolved

	b.raw = make(chan []fsevents.Event, fseventsChannelCapacity)
	b.stream = &fsevents.EventStream{
		Events:  b.raw,
		Paths:   []string{resolved},
		Latency: fseventsCoalescingPeriod,
		Flags:   fseventsFlags,
	}
	b.stream.Start()
	go b.pump()
	return nil
}

// pump drains FSEvents batches into an internal buffer.
func (b *darwinBackend) pump() {
	for batch := range b.raw {
		b.bufferMu.Lock()
		wasEmpty := len(b.buffer) == 0
		b.buffer = append(b.buffer, batch...)
		b.bufferMu.Unlock()
		if wasEmpty {
			select {
			case b.ready <- struct{}{}:
			default:
			}
		}
	}
}

// StartWatchDir implements Backend.StartWatchDir. The recursive root watch
// already covers dir, so this just lists its current contents.
func (b *darwinBackend) StartWatchDir(dir string, now time.Time) (DirHandle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: readdir failed for %s: %w", dir, err)
	}
	return &ListedDirHandle{entries: entries}, nil
}

// StartWatchFile implements Backend.StartWatchFile.
func (b *darwinBackend) StartWatchFile(path string) error { return nil }

// StopWatchDir implements Backend.StopWatchDir. Nothing per-directory to
// release since one stream covers the whole subtree.
func (b *darwinBackend) StopWatchDir(dir string) error { return nil }

// ConsumeNotify implements Backend.ConsumeNotify.
func (b *darwinBackend) ConsumeNotify(items *pending.Collection) (bool, error) {
	b.bufferMu.Lock()
	batch := b.buffer
	b.buffer = nil
	b.bufferMu.Unlock()

	if len(batch) == 0 {
		return false, nil
	}

	now := time.Now()
	progressed := false
	prefix := b.root + "/"

	for _, event := range batch {
		if event.Flags&fsevents.MustScanSubDirs != 0 {
			return progressed, ErrSyncLost
		}
		if event.Flags&(fsevents.Mount|fsevents.Unmount) != 0 {
			return progressed, ErrRootVanished
		}

		path := event.Path
		relative := path
		if path == b.root {
			relative = ""
		} else if strings.HasPrefix(path, prefix) {
			relative = path[len(prefix):]
		}

		if relative == "" {
			if _, err := os.Lstat(path); err != nil {
				return progressed, ErrRootVanished
			}
			continue
		}

		if b.filter != nil && b.filter(relative) {
			continue
		}

		flags := pending.ViaNotify
		if _, err := os.Lstat(path); err != nil {
			// FSEvents doesn't reliably distinguish create/modify/
			// delete at this API surface; a failed stat is treated
			// the same way the crawler treats a vanished path
			// elsewhere, by requesting a recursive re-examination.
			flags |= pending.Recursive
		}
		items.Add(relative, now, flags)
		progressed = true
	}

	return progressed, nil
}

// WaitNotify implements Backend.WaitNotify.
func (b *darwinBackend) WaitNotify(timeout time.Duration) bool {
	b.bufferMu.Lock()
	nonEmpty := len(b.buffer) > 0
	b.bufferMu.Unlock()
	if nonEmpty {
		return true
	}

	if timeout <= 0 {
		<-b.ready
		return true
	}
	b.waitTimer.Reset(timeout)
	select {
	case <-b.ready:
		timeutil.StopAndDrainTimer(b.waitTimer)
		return true
	case <-b.waitTimer.C:
		return false
	}
}

// Close implements Backend.Close.
func (b *darwinBackend) Close() error {
	b.closeOnce.Do(func() {
		if b.stream != nil {
			b.stream.Stop()
		}
	})
	return nil
}
