package view

import (
	"os"
	"time"

	"github.com/Server-perf/watchman/pkg/refstring"
)

// StatSnapshot is the subset of stat(2) fields the view records for each
// File, captured at the moment the crawler last observed the path.
type StatSnapshot struct {
	Size  int64
	Mode  os.FileMode
	Mtime time.Time
	Ctime time.Time
	Inode uint64
	Dev   uint64
}

// File represents one filesystem entry (regular, symlink, special) within a
// Directory. Its parent link is a non-owning back-reference; ownership flows
// from Directory to File, never the other way.
type File struct {
	// parent is the owning Directory. Never nil once a File has been
	// created; the root has no File representation.
	parent *Directory
	// name is the File's local name within parent.
	name refstring.StringRef
	// exists is the last-observed existence flag.
	exists bool
	// stat is the last-observed stat snapshot. Meaningless when !exists.
	stat StatSnapshot

	// otime is the tick at which this File was last observed to change
	// ("observation tick").
	otime uint32
	// ctimeTicks is the tick at which this File was first created in the
	// view ("creation tick"), used to distinguish is_new at query time.
	ctimeTicks uint32

	// recencyPrev/recencyNext form the intrusive doubly-linked recency
	// list, ordered head (most recent) to tail (stalest).
	recencyPrev *File
	recencyNext *File

	// suffixPrev/suffixNext form the intrusive doubly-linked per-suffix
	// list. A File appears in at most one suffix list.
	suffixPrev *File
	suffixNext *File
	// suffix is the lowercase suffix this File is currently indexed
	// under, or the empty StringRef if the name has no suffix.
	suffix refstring.StringRef
}

// Parent returns the File's owning Directory.
func (f *File) Parent() *Directory {
	return f.parent
}

// Name returns the File's local name.
func (f *File) Name() refstring.StringRef {
	return f.name
}

// Exists reports the last-observed existence flag.
func (f *File) Exists() bool {
	return f.exists
}

// Stat returns the last-observed stat snapshot.
func (f *File) Stat() StatSnapshot {
	return f.stat
}

// Otime returns the observation tick.
func (f *File) Otime() uint32 {
	return f.otime
}

// CtimeTicks returns the creation tick.
func (f *File) CtimeTicks() uint32 {
	return f.ctimeTicks
}

// RecencyNext returns the next-stalest File in the recency list, or nil if
// f is the tail. Callers walk from View.RecencyHead.
func (f *File) RecencyNext() *File {
	return f.recencyNext
}

// SuffixNext returns the next File in f's suffix list, or nil if f is the
// tail. Callers walk from View.SuffixHead.
func (f *File) SuffixNext() *File {
	return f.suffixNext
}

// SetStat records a fresh stat observation and existence flag. It does not
// itself stamp a tick or move the File in the recency list; callers use
// View.MarkFileChanged for that.
func (f *File) SetStat(exists bool, stat StatSnapshot) {
	f.exists = exists
	f.stat = stat
}

// fileSuffix computes the lowercase suffix of name, i.e. the substring
// after the final '.', or the empty StringRef if name has no '.'.
func fileSuffix(name refstring.StringRef) refstring.StringRef {
	s := name.String()
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			if i == len(s)-1 {
				return refstring.New("")
			}
			return refstring.New(s[i+1:]).Lower()
		}
		if s[i] == '/' {
			break
		}
	}
	return refstring.New("")
}
