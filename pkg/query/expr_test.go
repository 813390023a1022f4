package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Server-perf/watchman/pkg/view"
)

func newTestFile(t *testing.T, v *view.View, dirPath, name string, size int64) *view.File {
	t.Helper()
	v.Lock(0)
	defer v.Unlock()

	tick := v.AdvanceTick()
	now := time.Now()
	dir, _ := v.ResolveDir(dirPath, true)
	f := v.GetOrCreateChildFile(dir, name, now, tick)
	v.MarkFileChanged(f, now, tick)
	f.SetStat(true, view.StatSnapshot{Size: size, Mtime: now})
	return f
}

func TestParseTermSimple(t *testing.T) {
	term := []interface{}{"name", "main.go"}
	expr, err := ParseTerm(term)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	v := view.New("/root")
	f := newTestFile(t, v, "", "main.go", 10)
	ec := &evalContext{}
	if !expr.Evaluate(ec, f) {
		t.Error("expected name match to succeed")
	}
}

func TestParseTermAllOf(t *testing.T) {
	term := []interface{}{
		"allof",
		[]interface{}{"suffix", "go"},
		[]interface{}{"size", []interface{}{">", int64(5)}},
	}
	expr, err := ParseTerm(term)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	v := view.New("/root")
	f := newTestFile(t, v, "", "main.go", 10)
	ec := &evalContext{}
	if !expr.Evaluate(ec, f) {
		t.Error("expected allof to match")
	}
}

func TestParseTermAnyOf(t *testing.T) {
	term := []interface{}{
		"anyof",
		[]interface{}{"name", "nope.txt"},
		[]interface{}{"suffix", "go"},
	}
	expr, err := ParseTerm(term)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	v := view.New("/root")
	f := newTestFile(t, v, "", "main.go", 10)
	ec := &evalContext{}
	if !expr.Evaluate(ec, f) {
		t.Error("expected anyof to match via second operand")
	}
}

func TestParseTermNot(t *testing.T) {
	term := []interface{}{"not", []interface{}{"name", "other.go"}}
	expr, err := ParseTerm(term)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	v := view.New("/root")
	f := newTestFile(t, v, "", "main.go", 10)
	ec := &evalContext{}
	if !expr.Evaluate(ec, f) {
		t.Error("expected not to negate a non-matching name")
	}
}

func TestParseTermBareIntegerEqualsComparison(t *testing.T) {
	term := []interface{}{"size", int64(10)}
	expr, err := ParseTerm(term)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	v := view.New("/root")
	f := newTestFile(t, v, "", "main.go", 10)
	ec := &evalContext{}
	if !expr.Evaluate(ec, f) {
		t.Error("expected bare integer to be treated as equality")
	}
}

func TestParseTermBareIntegerFromJSON(t *testing.T) {
	var term []interface{}
	if err := json.Unmarshal([]byte(`["size", 10]`), &term); err != nil {
		t.Fatal("unexpected error decoding term:", err)
	}
	expr, err := ParseTerm(term)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	v := view.New("/root")
	f := newTestFile(t, v, "", "main.go", 10)
	ec := &evalContext{}
	if !expr.Evaluate(ec, f) {
		t.Error("expected a JSON-decoded bare integer to be treated as equality")
	}
}

func TestParseTermBadOperator(t *testing.T) {
	term := []interface{}{"size", []interface{}{"bogus", int64(10)}}
	_, err := ParseTerm(term)
	if err == nil {
		t.Fatal("expected an error for a bad operator")
	}
}

func TestParseTermUnknownKind(t *testing.T) {
	_, err := ParseTerm([]interface{}{"nonsense"})
	if err == nil {
		t.Fatal("expected an error for an unknown term kind")
	}
}

func TestParseTermEmpty(t *testing.T) {
	_, err := ParseTerm(nil)
	if err == nil {
		t.Fatal("expected an error for an empty term")
	}
}

func TestExistsMatch(t *testing.T) {
	v := view.New("/root")
	f := newTestFile(t, v, "", "main.go", 10)

	if !ExistsMatch(true).Evaluate(&evalContext{}, f) {
		t.Error("expected exists=true to match an observed file")
	}
	if ExistsMatch(false).Evaluate(&evalContext{}, f) {
		t.Error("expected exists=false to fail to match an observed file")
	}
}

func TestSubExprLazyLookup(t *testing.T) {
	v := view.New("/root")
	f := newTestFile(t, v, "", "main.go", 10)

	if SubExpr("never-registered").Evaluate(&evalContext{}, f) {
		t.Error("expected an unregistered subexpression to fail to match")
	}

	RegisterNamed("is-go", SuffixMatch("go"))
	if !SubExpr("is-go").Evaluate(&evalContext{}, f) {
		t.Error("expected a registered subexpression to match")
	}
}

func TestCompareOpMapping(t *testing.T) {
	cases := map[string]CompareOp{
		"eq": OpEQ, "==": OpEQ,
		"ne": OpNE, "!=": OpNE,
		"gt": OpGT, ">": OpGT,
		"ge": OpGE, ">=": OpGE,
		"lt": OpLT, "<": OpLT,
		"le": OpLE, "<=": OpLE,
	}
	for token, want := range cases {
		got, err := ParseCompareOp(token)
		if err != nil {
			t.Errorf("token %q: unexpected error: %v", token, err)
			continue
		}
		if got != want {
			t.Errorf("token %q: got %v, want %v", token, got, want)
		}
	}
}
