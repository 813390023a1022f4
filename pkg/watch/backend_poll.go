package watch

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Server-perf/watchman/pkg/pending"
	"github.com/Server-perf/watchman/pkg/timeutil"
)

// PollDefaultInterval is the default period between polling sweeps.
const PollDefaultInterval = 1 * time.Second

// pollSnapshot is the subset of directory-entry state the polling backend
// compares between sweeps to detect changes without relying on any kernel
// notification mechanism.
type pollSnapshot struct {
	modTime time.Time
	size    int64
	mode    os.FileMode
}

// pollingBackend implements Backend by periodically re-listing watched
// directories and diffing entries against the previous sweep. NewBackend
// selects it on platforms where neither inotify nor FSEvents is available;
// elsewhere it is used only when constructed with NewPollingBackend.
type pollingBackend struct {
	filter   Filter
	interval time.Duration

	mu       sync.Mutex
	watched  map[string]map[string]pollSnapshot
	root     string
	timerHit chan struct{}
	closed   bool
	stop     chan struct{}

	// waitTimer is reused across WaitNotify calls rather than allocated
	// fresh on every call.
	waitTimer *time.Timer
}

// NewPollingBackend constructs a Backend that polls watched directories on
// a fixed interval rather than relying on kernel-delivered events.
func NewPollingBackend(filter Filter, interval time.Duration) Backend {
	if interval <= 0 {
		interval = PollDefaultInterval
	}
	waitTimer := time.NewTimer(0)
	timeutil.StopAndDrainTimer(waitTimer)
	b := &pollingBackend{
		filter:    filter,
		interval:  interval,
		watched:   make(map[string]map[string]pollSnapshot),
		timerHit:  make(chan struct{}, 1),
		stop:      make(chan struct{}),
		waitTimer: waitTimer,
	}
	go b.tick()
	return b
}

// tick signals timerHit once per interval until Close is called.
func (b *pollingBackend) tick() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			select {
			case b.timerHit <- struct{}{}:
			default:
			}
		}
	}
}

// Init implements Backend.Init.
func (b *pollingBackend) Init(root string) error {
	b.mu.Lock()
	b.root = root
	b.mu.Unlock()
	return nil
}

// StartWatchDir implements Backend.StartWatchDir. There's no kernel
// registration to perform; the directory is simply added to the set of
// paths swept on each poll.
func (b *pollingBackend) StartWatchDir(dir string, now time.Time) (DirHandle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: readdir failed for %s: %w", dir, err)
	}

	snapshot := make(map[string]pollSnapshot, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshot[entry.Name()] = pollSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
			mode:    info.Mode(),
		}
	}

	b.mu.Lock()
	b.watched[dir] = snapshot
	b.mu.Unlock()

	return &ListedDirHandle{entries: entries}, nil
}

// StartWatchFile implements Backend.StartWatchFile. Individual files are
// covered by their containing directory's sweep.
func (b *pollingBackend) StartWatchFile(path string) error {
	return nil
}

// StopWatchDir implements Backend.StopWatchDir.
func (b *pollingBackend) StopWatchDir(dir string) error {
	b.mu.Lock()
	delete(b.watched, dir)
	b.mu.Unlock()
	return nil
}

// ConsumeNotify implements Backend.ConsumeNotify by re-listing every
// watched directory and diffing against the last sweep.
func (b *pollingBackend) ConsumeNotify(items *pending.Collection) (bool, error) {
	b.mu.Lock()
	dirs := make([]string, 0, len(b.watched))
	for dir := range b.watched {
		dirs = append(dirs, dir)
	}
	root := b.root
	b.mu.Unlock()

	now := time.Now()
	progressed := false

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				if dir == root {
					return progressed, ErrRootVanished
				}
				b.mu.Lock()
				delete(b.watched, dir)
				b.mu.Unlock()
				if b.filter == nil || !b.filter(dir) {
					items.Add(dir, now, pending.ViaNotify|pending.Recursive)
					progressed = true
				}
				continue
			}
			return progressed, err
		}

		current := make(map[string]pollSnapshot, len(entries))
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			current[entry.Name()] = pollSnapshot{
				modTime: info.ModTime(),
				size:    info.Size(),
				mode:    info.Mode(),
			}
		}

		b.mu.Lock()
		previous := b.watched[dir]
		b.watched[dir] = current
		b.mu.Unlock()

		for name, snap := range current {
			prev, existed := previous[name]
			if !existed || prev != snap {
				childPath := dir + "/" + name
				if b.filter != nil && b.filter(childPath) {
					continue
				}
				items.Add(childPath, now, pending.ViaNotify)
				progressed = true
			}
		}
		for name := range previous {
			if _, stillThere := current[name]; !stillThere {
				childPath := dir + "/" + name
				if b.filter != nil && b.filter(childPath) {
					continue
				}
				items.Add(childPath, now, pending.ViaNotify|pending.Recursive)
				progressed = true
			}
		}
	}

	return progressed, nil
}

// WaitNotify implements Backend.WaitNotify.
func (b *pollingBackend) WaitNotify(timeout time.Duration) bool {
	if timeout <= 0 {
		<-b.timerHit
		return true
	}
	b.waitTimer.Reset(timeout)
	select {
	case <-b.timerHit:
		timeutil.StopAndDrainTimer(b.waitTimer)
		return true
	case <-b.waitTimer.C:
		return false
	}
}

// Close implements Backend.Close.
func (b *pollingBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	close(b.stop)
	return nil
}
