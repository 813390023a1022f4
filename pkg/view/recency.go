package view

// recencyList is the global doubly-linked list of all Files ordered by most
// recent observation, head (most recent) to tail (stalest). It's intrusive:
// the links live on File itself rather than in separate list nodes, per the
// reference implementation's insertAtHeadOfFileList.
type recencyList struct {
	head *File
	tail *File
}

// pushFront unlinks f from its current position, if any, and links it at
// the head of the list. Idempotent when f is already at the head.
func (l *recencyList) pushFront(f *File) {
	if l.head == f {
		return
	}
	l.unlink(f)

	f.recencyPrev = nil
	f.recencyNext = l.head
	if l.head != nil {
		l.head.recencyPrev = f
	}
	l.head = f
	if l.tail == nil {
		l.tail = f
	}
}

// remove unlinks f from the list entirely, leaving it in no recency list.
func (l *recencyList) remove(f *File) {
	l.unlink(f)
	f.recencyPrev = nil
	f.recencyNext = nil
}

// unlink splices f out of the list without clearing its own link fields,
// used both by pushFront (which immediately re-links f) and remove.
func (l *recencyList) unlink(f *File) {
	if f.recencyPrev != nil {
		f.recencyPrev.recencyNext = f.recencyNext
	} else if l.head == f {
		l.head = f.recencyNext
	}
	if f.recencyNext != nil {
		f.recencyNext.recencyPrev = f.recencyPrev
	} else if l.tail == f {
		l.tail = f.recencyPrev
	}
}

// Head returns the most recently observed File, or nil if the list is
// empty.
func (l *recencyList) Head() *File {
	return l.head
}
