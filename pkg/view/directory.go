package view

import "github.com/Server-perf/watchman/pkg/refstring"

// Directory represents one filesystem directory currently known to the
// view. The tree store owns all Directories transitively from the root; a
// Directory owns its child Directories and Files.
type Directory struct {
	// parent is the owning Directory, or nil for the root.
	parent *Directory
	// name is the Directory's local name within parent. The root's name
	// is the empty StringRef.
	name refstring.StringRef
	// fullPath is cached at creation time so path composition on lookup
	// doesn't need to walk to the root on every call.
	fullPath refstring.StringRef

	// dirs holds child Directories keyed by local name.
	dirs map[string]*Directory
	// files holds child Files keyed by local name.
	files map[string]*File

	// exists is the last-observed existence flag.
	exists bool
}

// newDirectory constructs a Directory with empty child maps.
func newDirectory(parent *Directory, name refstring.StringRef, fullPath refstring.StringRef) *Directory {
	return &Directory{
		parent:   parent,
		name:     name,
		fullPath: fullPath,
		dirs:     make(map[string]*Directory),
		files:    make(map[string]*File),
		exists:   true,
	}
}

// Parent returns the owning Directory, or nil for the root.
func (d *Directory) Parent() *Directory {
	return d.parent
}

// Name returns the Directory's local name.
func (d *Directory) Name() refstring.StringRef {
	return d.name
}

// FullPath returns the Directory's path relative to the root.
func (d *Directory) FullPath() refstring.StringRef {
	return d.fullPath
}

// Exists reports the last-observed existence flag.
func (d *Directory) Exists() bool {
	return d.exists
}

// SetExists updates the last-observed existence flag.
func (d *Directory) SetExists(exists bool) {
	d.exists = exists
}

// ChildDir returns the named child Directory, if present.
func (d *Directory) ChildDir(name string) (*Directory, bool) {
	child, ok := d.dirs[name]
	return child, ok
}

// ChildFile returns the named child File, if present.
func (d *Directory) ChildFile(name string) (*File, bool) {
	child, ok := d.files[name]
	return child, ok
}

// Dirs returns the child Directories keyed by local name. The returned map
// must not be mutated by the caller.
func (d *Directory) Dirs() map[string]*Directory {
	return d.dirs
}

// Files returns the child Files keyed by local name. The returned map must
// not be mutated by the caller.
func (d *Directory) Files() map[string]*File {
	return d.files
}

// IsEmpty reports whether the Directory has no children at all.
func (d *Directory) IsEmpty() bool {
	return len(d.dirs) == 0 && len(d.files) == 0
}
