package query

import "testing"

func TestGlobMatcherPathModeStarDoesNotCrossSeparator(t *testing.T) {
	m, err := compileGlobs([]string{"src/*.go"}, true, true, false)
	if err != nil {
		t.Fatal("unexpected error compiling pattern:", err)
	}
	if m.match("src/sub/main.go") {
		t.Error("expected `*` not to cross a directory separator in path mode")
	}
	if !m.match("src/main.go") {
		t.Error("expected a same-directory match to succeed")
	}
}

func TestGlobMatcherNonPathModeStarCrossesSeparator(t *testing.T) {
	m, err := compileGlobs([]string{"src/*.go"}, true, false, false)
	if err != nil {
		t.Fatal("unexpected error compiling pattern:", err)
	}
	if !m.match("src/sub/main.go") {
		t.Error("expected `*` to cross a directory separator outside path mode")
	}
}

func TestGlobMatcherPeriodLeadingRequiredHidesDotfiles(t *testing.T) {
	m, err := compileGlobs([]string{"*.go"}, true, true, true)
	if err != nil {
		t.Fatal("unexpected error compiling pattern:", err)
	}
	if m.match(".main.go") {
		t.Error("expected a pattern without an explicit leading period not to match a hidden file")
	}
	if !m.match("main.go") {
		t.Error("expected a non-hidden file to still match")
	}
}

func TestGlobMatcherPeriodLeadingRequiredAllowsExplicitDot(t *testing.T) {
	m, err := compileGlobs([]string{".*.go"}, true, true, true)
	if err != nil {
		t.Fatal("unexpected error compiling pattern:", err)
	}
	if !m.match(".main.go") {
		t.Error("expected a pattern with an explicit leading period to match a hidden file")
	}
}

func TestGlobMatcherPeriodLeadingNotRequiredByDefault(t *testing.T) {
	m, err := compileGlobs([]string{"*.go"}, true, true, false)
	if err != nil {
		t.Fatal("unexpected error compiling pattern:", err)
	}
	if !m.match(".main.go") {
		t.Error("expected hidden files to match freely when the restriction is disabled")
	}
}
