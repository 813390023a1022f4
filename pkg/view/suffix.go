package view

import "github.com/Server-perf/watchman/pkg/refstring"

// suffixIndex maps a lowercase file-suffix string to the head of a
// doubly-linked list of all Files whose name ends in that suffix. A File
// appears in at most one suffix list at a time.
type suffixIndex struct {
	heads map[string]*File
}

// newSuffixIndex constructs an empty suffixIndex.
func newSuffixIndex() *suffixIndex {
	return &suffixIndex{heads: make(map[string]*File)}
}

// insert adds f to the list for its computed suffix. Files with no suffix
// are not indexed. Assumes f is not currently indexed under any suffix.
func (s *suffixIndex) insert(f *File) {
	suffix := fileSuffix(f.name)
	if suffix.Empty() {
		return
	}
	f.suffix = suffix

	key := suffix.String()
	head := s.heads[key]
	f.suffixPrev = nil
	f.suffixNext = head
	if head != nil {
		head.suffixPrev = f
	}
	s.heads[key] = f
}

// remove unlinks f from its suffix list, if it is indexed at all.
func (s *suffixIndex) remove(f *File) {
	if f.suffix.Empty() {
		return
	}
	key := f.suffix.String()

	if f.suffixPrev != nil {
		f.suffixPrev.suffixNext = f.suffixNext
	} else if s.heads[key] == f {
		if f.suffixNext != nil {
			s.heads[key] = f.suffixNext
		} else {
			delete(s.heads, key)
		}
	}
	if f.suffixNext != nil {
		f.suffixNext.suffixPrev = f.suffixPrev
	}

	f.suffixPrev = nil
	f.suffixNext = nil
	f.suffix = refstring.StringRef{}
}

// Head returns the head of the list for the given lowercase suffix, or nil
// if no File carries that suffix.
func (s *suffixIndex) Head(suffix string) *File {
	return s.heads[suffix]
}
