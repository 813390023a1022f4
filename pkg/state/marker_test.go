package state

import "testing"

func TestMarker(t *testing.T) {
	var m Marker
	if m.Marked() {
		t.Fatal("zero-value marker reports marked")
	}
	m.Mark()
	if !m.Marked() {
		t.Fatal("marker did not report marked after Mark")
	}
	m.Mark()
	if !m.Marked() {
		t.Fatal("marker did not remain marked after a second Mark")
	}
}
