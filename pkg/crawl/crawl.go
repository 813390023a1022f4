// Package crawl implements the crawler/updater: it drains the pending
// collection, reconciles each item against the tree store, stamps ticks,
// and enumerates directory children, watching them as it goes.
package crawl

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/Server-perf/watchman/pkg/contextutil"
	"github.com/Server-perf/watchman/pkg/filesystem"
	"github.com/Server-perf/watchman/pkg/parallelism"
	"github.com/Server-perf/watchman/pkg/pending"
	"github.com/Server-perf/watchman/pkg/view"
	"github.com/Server-perf/watchman/pkg/watch"
)

// ErrCancelled is returned by Drain when the supplied context is cancelled
// between pending items.
var ErrCancelled = errors.New("crawl: cancelled")

// entryLister is implemented by watch.DirHandle values that carry the
// directory listing obtained as a side effect of establishing a watch,
// sparing a second readdir syscall.
type entryLister interface {
	Entries() []os.DirEntry
}

// Crawler drains a pending.Collection against a view.View, using a
// watch.Backend to observe and enumerate directories as it discovers them.
type Crawler struct {
	rootFSPath string
	view       *view.View
	backend    watch.Backend
	pending    *pending.Collection

	// lockTimeout bounds how long Drain waits to acquire the view's
	// write lock before giving up.
	lockTimeout time.Duration

	// workers parallelizes per-entry Lstat calls during directory
	// enumeration.
	workers *parallelism.SIMDWorkerArray
}

// New creates a Crawler for the given root path, view and backend, sharing
// ownership of the pending collection with the watcher that feeds it.
func New(rootFSPath string, v *view.View, backend watch.Backend, items *pending.Collection) *Crawler {
	return &Crawler{
		rootFSPath:  filepath.Clean(rootFSPath),
		view:        v,
		backend:     backend,
		pending:     items,
		lockTimeout: view.DefaultLockTimeout,
		workers:     parallelism.NewSIMDWorkerArray(0),
	}
}

// Close releases the crawler's worker pool.
func (c *Crawler) Close() {
	c.workers.Terminate()
}

// Bootstrap initializes the backend and enqueues the root itself for a
// recursive initial crawl.
func (c *Crawler) Bootstrap() error {
	if err := c.backend.Init(c.rootFSPath); err != nil {
		return errors.Wrap(err, "crawl: backend init failed")
	}
	c.pending.Add(c.rootFSPath, time.Now(), pending.Recursive)
	return nil
}

// Recrawl discards the pending collection, re-initializes the backend for
// the root, and enqueues the root itself with Recursive, per the crawler's
// recrawl policy on root-vanished or sync-lost.
func (c *Crawler) Recrawl() error {
	c.pending.Discard()
	if err := c.backend.Init(c.rootFSPath); err != nil {
		return errors.Wrap(err, "crawl: backend re-init failed")
	}
	c.pending.Add(c.rootFSPath, time.Now(), pending.Recursive)
	return nil
}

// Drain processes every item currently in the pending collection, in
// dequeue order, under a single write-lock hold and a single tick advance.
// It reports the number of items drained (0 meaning nothing was pending).
// If ctx is cancelled between items, it returns ErrCancelled with the
// remaining items discarded (they were already removed from the pending
// collection by the initial Drain call, matching the crawler's own
// cancellation contract of checking between pending items rather than
// mid-item).
func (c *Crawler) Drain(ctx context.Context) (int, error) {
	items := c.pending.Drain()
	if len(items) == 0 {
		return 0, nil
	}

	if !c.view.Lock(c.lockTimeout) {
		// Failed to acquire the lock in time; put the items back so a
		// later call can retry them.
		for _, item := range items {
			c.pending.Add(item.Path, item.ObservedTime, item.Flags)
		}
		return 0, errors.New("crawl: timed out acquiring write lock")
	}
	defer c.view.Unlock()

	tick := c.view.AdvanceTick()

	for i, item := range items {
		if contextutil.IsCancelled(ctx) {
			return i, ErrCancelled
		}
		c.processItem(item, tick)
	}

	return len(items), nil
}

// relPath converts a full filesystem path into a root-relative path using
// forward slashes, matching the view's internal path representation.
func (c *Crawler) relPath(fullPath string) string {
	fullPath = filepath.Clean(fullPath)
	if fullPath == c.rootFSPath {
		return ""
	}
	rel := strings.TrimPrefix(fullPath, c.rootFSPath+string(filepath.Separator))
	return filepath.ToSlash(rel)
}

// fullPath converts a root-relative path back into a full filesystem path.
func (c *Crawler) fullPath(relPath string) string {
	if relPath == "" {
		return c.rootFSPath
	}
	return filepath.Join(c.rootFSPath, filepath.FromSlash(relPath))
}

// processItem reconciles a single pending item against the tree,
// implementing the crawler's four-step algorithm.
func (c *Crawler) processItem(item pending.Item, tick uint32) {
	now := item.ObservedTime
	rel := c.relPath(item.Path)

	info, statErr := os.Lstat(item.Path)
	if statErr != nil {
		c.markMissing(rel, now, tick, item.Flags.Has(pending.Recursive))
		return
	}

	if info.IsDir() {
		c.crawlDirectory(rel, now, tick)
		return
	}

	c.crawlFile(rel, info, now, tick)
}

// markMissing marks the tree entity at rel as no longer existing, whether
// it was tracked as a File or a Directory.
func (c *Crawler) markMissing(rel string, now time.Time, tick uint32, recursive bool) {
	parentRel, name := path.Split(rel)
	parentRel = strings.TrimSuffix(parentRel, "/")

	if dirNode, err := c.view.ResolveDir(rel, false); err == nil {
		dirNode.SetExists(false)
		c.view.MarkDirDeleted(dirNode, now, tick, recursive)
		return
	}

	parentDir, err := c.view.ResolveDir(parentRel, false)
	if err != nil {
		return
	}
	if f, ok := parentDir.ChildFile(name); ok {
		f.SetStat(false, f.Stat())
		c.view.MarkFileChanged(f, now, tick)
	}
}

// crawlDirectory reconciles a directory: it ensures the directory is
// watched, enumerates its children, creates tree entries for new children,
// stats file children in place, enqueues child directories for their own
// crawl pass, and marks vanished children deleted.
func (c *Crawler) crawlDirectory(rel string, now time.Time, tick uint32) {
	dirNode, err := c.view.ResolveDir(rel, true)
	if err != nil {
		return
	}
	dirNode.SetExists(true)

	full := c.fullPath(rel)
	handle, err := c.backend.StartWatchDir(full, now)
	if err != nil || handle == nil {
		return
	}
	defer handle.Close()

	var entries []os.DirEntry
	if lister, ok := handle.(entryLister); ok {
		entries = lister.Entries()
	} else {
		entries, _ = os.ReadDir(full)
	}

	var fileNames []string
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		// Filesystems that decompose Unicode (notably HFS+/APFS) hand back
		// entry names in NFD; normalize to NFC so the same file has the same
		// name regardless of which platform crawled it.
		name := norm.NFC.String(entry.Name())
		seen[name] = true
		childRel := joinRel(rel, name)

		if entry.IsDir() {
			child, err := c.view.ResolveDir(childRel, true)
			if err != nil {
				continue
			}
			child.SetExists(true)
			// Directories still need their own crawl cycle to be
			// watched and enumerated.
			c.pending.Add(c.fullPath(childRel), now, 0)
			continue
		}

		fileNames = append(fileNames, name)
	}

	// Stat every plain file entry concurrently: directory enumeration
	// commonly dominates crawl latency for wide directories, and each
	// entry's stat is independent of the others.
	infos := c.statAll(full, fileNames)
	for i, name := range fileNames {
		f := c.view.GetOrCreateChildFile(dirNode, name, now, tick)
		if info := infos[i]; info != nil {
			f.SetStat(true, statSnapshotFromInfo(info))
			c.view.MarkFileChanged(f, now, tick)
		}
	}

	for name, f := range dirNode.Files() {
		if !seen[name] {
			f.SetStat(false, f.Stat())
			c.view.MarkFileChanged(f, now, tick)
		}
	}
	for name, child := range dirNode.Dirs() {
		if !seen[name] {
			child.SetExists(false)
			c.view.MarkDirDeleted(child, now, tick, true)
		}
	}
}

// crawlFile reconciles a single file against the tree, recording its
// current stat snapshot and bumping its observation tick.
func (c *Crawler) crawlFile(rel string, info os.FileInfo, now time.Time, tick uint32) {
	parentRel, name := path.Split(rel)
	parentRel = strings.TrimSuffix(parentRel, "/")

	parentDir, err := c.view.ResolveDir(parentRel, true)
	if err != nil {
		return
	}

	f := c.view.GetOrCreateChildFile(parentDir, name, now, tick)
	f.SetStat(true, statSnapshotFromInfo(info))
	c.view.MarkFileChanged(f, now, tick)
}

// direntStatWork stats a slice of paths across the worker array, striped by
// worker index so each worker handles a disjoint subset.
type direntStatWork struct {
	paths []string
	infos []os.FileInfo
}

// Do implements parallelism.SIMDWork.
func (w *direntStatWork) Do(index, size int) error {
	for i := index; i < len(w.paths); i += size {
		if info, err := os.Lstat(w.paths[i]); err == nil {
			w.infos[i] = info
		}
	}
	return nil
}

// statAll lstats every name in dir concurrently across the crawler's
// worker array, returning a slice parallel to names (nil entries denote a
// failed or vanished stat).
func (c *Crawler) statAll(dir string, names []string) []os.FileInfo {
	if len(names) == 0 {
		return nil
	}
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	work := &direntStatWork{paths: paths, infos: make([]os.FileInfo, len(paths))}
	c.workers.Do(work)
	return work.infos
}

// joinRel joins a root-relative directory path and a child name using
// forward slashes.
func joinRel(dirRel, name string) string {
	if dirRel == "" {
		return name
	}
	return dirRel + "/" + name
}

// statSnapshotFromInfo builds a view.StatSnapshot from a standard
// os.FileInfo, filling in inode/device/ctime via pkg/filesystem's
// platform-specific stat_t extraction where available.
func statSnapshotFromInfo(info os.FileInfo) view.StatSnapshot {
	snapshot := view.StatSnapshot{
		Size:  info.Size(),
		Mode:  info.Mode(),
		Mtime: info.ModTime(),
	}
	if inode, ctime, err := filesystem.StatExtra(info); err == nil {
		snapshot.Inode = inode
		snapshot.Ctime = ctime
	}
	if dev, err := filesystem.DeviceID(info); err == nil {
		snapshot.Dev = dev
	}
	return snapshot
}
