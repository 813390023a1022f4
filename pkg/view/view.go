// Package view implements the in-memory tree store: the authoritative
// representation of a watched filesystem subtree, augmented with a
// doubly-linked recency list and per-suffix indexes, kept in lockstep with
// File mutations as described by the reference InMemoryView design.
//
// A View's tree, recency list and suffix index are all guarded by a single
// timed reader/writer lock. Callers that mutate the tree (the crawler) must
// hold the write lock; callers that only read it (the query engine) must
// hold the read lock. Methods here assume the appropriate lock is already
// held, mirroring InMemoryView's own locking contract.
package view

import (
	"errors"
	"strings"
	"time"

	"github.com/Server-perf/watchman/pkg/refstring"
)

// ErrInvalidPath is returned by ResolveDir when the requested path contains
// a ".." component, or when create is false and a component does not exist.
var ErrInvalidPath = errors.New("view: path escapes root")

// DefaultLockTimeout is used by callers that don't have a more specific
// deadline in mind.
const DefaultLockTimeout = 60 * time.Second

// View is the in-memory tree store for one watched root.
type View struct {
	lock *timedRWMutex

	rootPath refstring.StringRef
	root     *Directory

	recency recencyList
	suffix  *suffixIndex
	ticks   tickCounter

	lastAgeOutTick      uint32
	lastAgeOutTimestamp time.Time
}

// New creates a View rooted at rootPath with an empty tree.
func New(rootPath string) *View {
	root := refstring.New(rootPath)
	v := &View{
		lock:     newTimedRWMutex(),
		rootPath: root,
		suffix:   newSuffixIndex(),
	}
	v.root = newDirectory(nil, refstring.New(""), refstring.New(""))
	return v
}

// RootPath returns the path this View is rooted at.
func (v *View) RootPath() refstring.StringRef {
	return v.rootPath
}

// Root returns the root Directory.
func (v *View) Root() *Directory {
	return v.root
}

// Lock acquires the view for exclusive (write) access, returning false if
// timeout elapses first. A non-positive timeout waits indefinitely.
func (v *View) Lock(timeout time.Duration) bool {
	return v.lock.lock(timeout)
}

// Unlock releases an exclusive lock acquired via Lock.
func (v *View) Unlock() {
	v.lock.unlock()
}

// RLock acquires the view for shared (read) access, returning false if
// timeout elapses first. A non-positive timeout waits indefinitely.
func (v *View) RLock(timeout time.Duration) bool {
	return v.lock.rLock(timeout)
}

// RUnlock releases a shared lock acquired via RLock.
func (v *View) RUnlock() {
	v.lock.rUnlock()
}

// MostRecentTick returns the tick counter's current value.
func (v *View) MostRecentTick() uint32 {
	return v.ticks.Load()
}

// AdvanceTick advances and returns the tick counter. The crawler calls this
// once per drain cycle.
func (v *View) AdvanceTick() uint32 {
	return v.ticks.Advance()
}

// LastAgeOutTick returns the tick counter's value as of the most recent
// AgeOut call.
func (v *View) LastAgeOutTick() uint32 {
	return v.lastAgeOutTick
}

// LastAgeOutTimestamp returns the wall-clock time of the most recent AgeOut
// call.
func (v *View) LastAgeOutTimestamp() time.Time {
	return v.lastAgeOutTimestamp
}

// RecencyHead returns the most recently observed File in the whole view, or
// nil if the view has no Files.
func (v *View) RecencyHead() *File {
	return v.recency.Head()
}

// SuffixHead returns the head of the per-suffix list for the given
// lowercase suffix.
func (v *View) SuffixHead(suffix string) *File {
	return v.suffix.Head(suffix)
}

// ResolveDir returns the Directory at path (relative to the root). If
// create is true, missing intermediate directories are inserted. Fails
// with ErrInvalidPath when path contains any ".." component, or when
// create is false and a component of path does not exist.
func (v *View) ResolveDir(path string, create bool) (*Directory, error) {
	if path == "" || path == "." {
		return v.root, nil
	}
	parts := strings.Split(path, "/")

	dir := v.root
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			return nil, ErrInvalidPath
		}
		child, ok := dir.dirs[part]
		if !ok {
			if !create {
				return nil, ErrInvalidPath
			}
			child = newDirectory(dir, refstring.New(part), refstring.Join(dir.fullPath, refstring.New(part)))
			dir.dirs[part] = child
		}
		dir = child
	}
	return dir, nil
}

// GetOrCreateChildFile returns the direct child File named name under dir,
// creating it if absent. A newly created File has ctimeTicks = tick,
// exists = false (pending its first stat), and is linked into the recency
// list at the head and into the appropriate suffix list.
func (v *View) GetOrCreateChildFile(dir *Directory, name string, now time.Time, tick uint32) *File {
	if existing, ok := dir.files[name]; ok {
		return existing
	}

	f := &File{
		parent:     dir,
		name:       refstring.New(name),
		exists:     false,
		ctimeTicks: tick,
		otime:      tick,
	}
	dir.files[name] = f
	v.recency.pushFront(f)
	v.suffix.insert(f)
	return f
}

// MarkFileChanged sets the File's observation tick and moves it to the
// head of the recency list. Idempotent when file is already at the head.
func (v *View) MarkFileChanged(file *File, now time.Time, tick uint32) {
	file.otime = tick
	v.recency.pushFront(file)
}

// MarkDirDeleted marks every child File of dir as no longer existing and
// stamps mark_file_changed on each. If recursive, it recurses into child
// Directories (marking them not-existing too).
func (v *View) MarkDirDeleted(dir *Directory, now time.Time, tick uint32, recursive bool) {
	for _, f := range dir.files {
		f.exists = false
		v.MarkFileChanged(f, now, tick)
	}
	if !recursive {
		return
	}
	dir.exists = false
	for _, child := range dir.dirs {
		v.MarkDirDeleted(child, now, tick, true)
	}
}

// AgeOut removes every File whose otime is older than minAge and which no
// longer exists, together with any Directory left empty and non-existent
// as a result. It records lastAgeOutTick and lastAgeOutTimestamp.
//
// The caller must hold the write lock: age-out mutates the tree and must
// not race with a query walking the recency list or suffix index.
func (v *View) AgeOut(minAge time.Duration, now time.Time) AgeOutStats {
	var stats AgeOutStats

	cutoff := uint32(0)
	if ticks := uint32(minAge / time.Second); ticks < v.ticks.Load() {
		cutoff = v.ticks.Load() - ticks
	}

	dirsToCheck := make(map[*Directory]struct{})

	// Walk the whole list from the tail, removing every File that
	// qualifies; a non-qualifying File does not stop the walk.
	for f := v.recency.tail; f != nil; {
		prev := f.recencyPrev
		if !f.exists && f.otime < cutoff {
			v.ageOutFile(f)
			dirsToCheck[f.parent] = struct{}{}
			stats.FilesRemoved++
		}
		f = prev
	}

	for dir := range dirsToCheck {
		v.pruneEmptyAncestors(dir, &stats)
	}

	v.lastAgeOutTick = v.ticks.Load()
	v.lastAgeOutTimestamp = now
	return stats
}

// AgeOutStats reports what an AgeOut call actually removed, supplementing
// the reference design's bare age_out signature so callers (and metrics)
// can observe its effect.
type AgeOutStats struct {
	FilesRemoved int
	DirsRemoved  int
}

// ageOutFile removes f from the recency list, suffix index and its parent
// Directory's child map.
func (v *View) ageOutFile(f *File) {
	v.recency.remove(f)
	v.suffix.remove(f)
	if f.parent != nil {
		delete(f.parent.files, f.name.String())
	}
}

// pruneEmptyAncestors removes dir, and any ancestor left empty as a
// result, provided each is marked non-existent and has no children.
func (v *View) pruneEmptyAncestors(dir *Directory, stats *AgeOutStats) {
	for dir != nil && dir.parent != nil {
		if dir.exists || !dir.IsEmpty() {
			return
		}
		parent := dir.parent
		delete(parent.dirs, dir.name.String())
		stats.DirsRemoved++
		dir = parent
	}
}
