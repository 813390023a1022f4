// Package refstring provides StringRef, a content-equal, cheaply copyable
// handle for path components and full paths. The core treats StringRef as an
// opaque collaborator (see the reference specification's data model); this
// package is the concrete implementation the rest of the tree depends on.
package refstring

import "strings"

// StringRef is a lightweight, content-equal string handle. Equality and
// hashing are content-based, and copies are cheap because Go strings are
// themselves immutable, reference-counted-by-the-runtime values: assigning
// or passing a StringRef never copies the underlying bytes.
//
// The originating specification describes StringRef as manually
// reference-counted, incremented when stored in a map and decremented on
// removal. That bookkeeping exists to keep the backing bytes alive exactly as
// long as something references them, which is precisely what the Go garbage
// collector already guarantees for a string value; StringRef therefore adds
// no refcount of its own.
type StringRef struct {
	value string
}

// New wraps a string in a StringRef.
func New(value string) StringRef {
	return StringRef{value: value}
}

// Empty reports whether the reference holds the empty string.
func (r StringRef) Empty() bool {
	return r.value == ""
}

// String returns the referenced string.
func (r StringRef) String() string {
	return r.value
}

// Equal reports content equality with another StringRef.
func (r StringRef) Equal(other StringRef) bool {
	return r.value == other.value
}

// EqualFold reports case-insensitive content equality with another
// StringRef.
func (r StringRef) EqualFold(other StringRef) bool {
	return strings.EqualFold(r.value, other.value)
}

// Lower returns a StringRef holding the lowercase form of the referenced
// string.
func (r StringRef) Lower() StringRef {
	return StringRef{value: strings.ToLower(r.value)}
}

// Join concatenates two StringRefs with a path separator between them,
// mirroring the "parent.full_path / local_name" composition rule for a
// Directory's full path.
func Join(parent StringRef, child StringRef) StringRef {
	if parent.Empty() {
		return child
	}
	if strings.HasSuffix(parent.value, "/") {
		return StringRef{value: parent.value + child.value}
	}
	return StringRef{value: parent.value + "/" + child.value}
}
