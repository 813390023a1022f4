// Package root implements the per-watched-root orchestrator: it owns a
// root's view, backend and crawler, and runs the dedicated watcher/crawler
// loop that drives them.
package root

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/Server-perf/watchman/pkg/crawl"
	"github.com/Server-perf/watchman/pkg/filesystem/locking"
	"github.com/Server-perf/watchman/pkg/identifier"
	"github.com/Server-perf/watchman/pkg/logging"
	"github.com/Server-perf/watchman/pkg/must"
	"github.com/Server-perf/watchman/pkg/pending"
	"github.com/Server-perf/watchman/pkg/state"
	"github.com/Server-perf/watchman/pkg/view"
	"github.com/Server-perf/watchman/pkg/watch"
)

// waitTimeout bounds how long the run loop blocks in Backend.WaitNotify
// between crawl cycles, so it can still observe context cancellation
// promptly even when the backend produces no events.
const waitTimeout = 1 * time.Second

// rootNumberCounter assigns process-unique root numbers. It starts at 1 so
// that a zero value can be used to mean "no root" by callers.
var rootNumberCounter uint32

// nextRootNumber returns a fresh root number, incremented on every call
// (including recrawls, per the query engine's fresh-instance semantics).
func nextRootNumber() uint32 {
	return atomic.AddUint32(&rootNumberCounter, 1)
}

// Root owns the tree view, watch backend, pending collection and crawler for
// a single watched filesystem root, along with the goroutine that drives
// them.
type Root struct {
	path string

	view    *view.View
	backend watch.Backend
	pending *pending.Collection
	crawler *crawl.Crawler
	logger  *logging.Logger

	// number is the current root_number, bumped on every recrawl.
	number uint32

	// sessionLock guards sessionID, which changes alongside number on every
	// recrawl but (unlike number) isn't a fixed-width type atomic supports
	// directly.
	sessionLock sync.Mutex
	// sessionID is a human-readable identifier for the current incarnation
	// of number, attached to log lines so a recrawl is traceable across a
	// long-running process's logs without cross-referencing bare integers.
	sessionID string

	// lifecycleLock guards cancel and done, matching the start/stop pattern
	// used for other long-running loops in this codebase.
	lifecycleLock sync.Mutex
	cancel        context.CancelFunc
	done          chan struct{}

	// changeTracker lets callers block until the crawler has made progress
	// (drained pending work or recrawled) rather than polling the view on a
	// timer. It's poisoned in Stop so a waiter is never stranded past the
	// root's own lifetime.
	changeTracker *state.Tracker
	// bootstrapped marks once the initial crawl in Start has completed.
	bootstrapped state.Marker

	// lock is an advisory file lock preventing a second process from
	// watching the same root concurrently, which would otherwise produce
	// two independent, inconsistent tree views over the same filesystem
	// state. Held for the lifetime of Start/Stop.
	lock *locking.Locker
}

// New creates a Root for the given filesystem path, selecting the
// platform's default watch backend.
func New(path string, logger *logging.Logger) *Root {
	v := view.New(path)
	backend := watch.NewBackend(nil)
	items := pending.New()
	crawler := crawl.New(path, v, backend, items)

	return &Root{
		path:          path,
		view:          v,
		backend:       backend,
		pending:       items,
		crawler:       crawler,
		logger:        logger,
		number:        nextRootNumber(),
		sessionID:     newSessionID(logger),
		changeTracker: state.NewTracker(),
	}
}

// lockPath computes a per-root advisory lock file path under the system
// temporary directory, keyed by the root's absolute path so that watching
// the same root twice (even across separate process invocations) contends
// on the same file.
func lockPath(path string) string {
	digest := sha256.Sum256([]byte(path))
	return filepath.Join(os.TempDir(), fmt.Sprintf("watchman-%x.lock", digest))
}

// newSessionID generates a human-readable identifier for a root
// incarnation. Generation only fails if the system random source is
// unavailable, in which case the root still functions (root_number remains
// the authoritative identity) but its log lines carry an empty session ID.
func newSessionID(logger *logging.Logger) string {
	id, err := identifier.New(identifier.PrefixRoot)
	if err != nil {
		logger.Warn(errors.Wrap(err, "unable to generate root session identifier"))
		return ""
	}
	return id
}

// Path returns the root's filesystem path.
func (r *Root) Path() string {
	return r.path
}

// View returns the root's tree view.
func (r *Root) View() *view.View {
	return r.view
}

// RootNumber returns the root's current session identifier. It changes
// every time the root is recrawled.
func (r *Root) RootNumber() uint32 {
	return atomic.LoadUint32(&r.number)
}

// SessionID returns the human-readable identifier for the root's current
// incarnation. It changes every time the root is recrawled.
func (r *Root) SessionID() string {
	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()
	return r.sessionID
}

// Bootstrapped reports whether the initial crawl performed by Start has
// completed.
func (r *Root) Bootstrapped() bool {
	return r.bootstrapped.Marked()
}

// WaitForChange blocks until the crawler has made progress since
// previousIndex, returning the new index, or returns immediately with
// poisoned set to true if the root has been stopped. Callers wanting a
// bounded wait should run this in a goroutine and select against their own
// timeout, since it has no timeout of its own.
func (r *Root) WaitForChange(previousIndex uint64) (index uint64, poisoned bool) {
	return r.changeTracker.WaitForChange(previousIndex)
}

// Start bootstraps the crawler and launches the watcher/crawler loop in a
// dedicated goroutine. It is a no-op if the root is already running.
func (r *Root) Start() error {
	r.lifecycleLock.Lock()
	defer r.lifecycleLock.Unlock()

	if r.cancel != nil {
		return nil
	}

	lock, err := locking.NewLocker(lockPath(r.path), 0600)
	if err != nil {
		return errors.Wrap(err, "unable to open root lock file")
	}
	if err := lock.Lock(false); err != nil {
		must.Close(lock, r.logger)
		return errors.Wrap(err, "root is already being watched by another process")
	}
	r.lock = lock

	if err := r.crawler.Bootstrap(); err != nil {
		must.Close(r.lock, r.logger)
		r.lock = nil
		return err
	}
	r.bootstrapped.Mark()

	r.logger.Debugf("starting root %s (root_number=%d) at %s", r.SessionID(), r.RootNumber(), r.path)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, r.done)

	return nil
}

// Stop cancels the watcher/crawler loop and waits for it to exit.
func (r *Root) Stop() {
	r.lifecycleLock.Lock()
	defer r.lifecycleLock.Unlock()

	if r.cancel == nil {
		return
	}

	r.cancel()
	<-r.done

	r.cancel = nil
	r.done = nil

	r.crawler.Close()
	must.Close(r.backend, r.logger)
	r.changeTracker.Poison()

	if r.lock != nil {
		must.Unlock(r.lock, r.logger)
		must.Close(r.lock, r.logger)
		r.lock = nil
	}
}

// run is the dedicated watcher/crawler loop body: drain whatever is
// pending, then block for the next notification (or the wait timeout,
// whichever comes first), recrawling from scratch whenever the backend
// reports that its view of the root can no longer be trusted incrementally.
func (r *Root) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		cycleStart := time.Now()
		if drained, err := r.crawler.Drain(ctx); err != nil {
			if err == crawl.ErrCancelled {
				return
			}
			r.logger.Warn(err)
		} else if drained > 0 {
			r.logger.Debugf("crawled %s items (started %s)", humanize.Comma(int64(drained)), humanize.Time(cycleStart))
			r.changeTracker.NotifyOfChange()
		}

		more, err := r.backend.ConsumeNotify(r.pending)
		if err != nil {
			r.recrawl(err)
			continue
		}
		if more {
			continue
		}

		if ctx.Err() != nil {
			return
		}
		r.backend.WaitNotify(waitTimeout)
	}
}

// recrawl handles a backend error that invalidates the root's incremental
// state (root vanished, sync lost, or the pending queue overflowed) by
// discarding all pending work, reinitializing the backend, and bumping the
// root number so that outstanding query cursors see a fresh instance.
func (r *Root) recrawl(cause error) {
	r.logger.Warn(cause)
	if err := r.crawler.Recrawl(); err != nil {
		r.logger.Warn(err)
		return
	}
	atomic.StoreUint32(&r.number, nextRootNumber())

	r.sessionLock.Lock()
	r.sessionID = newSessionID(r.logger)
	r.sessionLock.Unlock()

	r.logger.Debugf("recrawled root at %s, now %s (root_number=%d)", r.path, r.SessionID(), r.RootNumber())
	r.changeTracker.NotifyOfChange()
}
