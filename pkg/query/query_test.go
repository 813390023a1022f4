package query

import (
	"context"
	"testing"
	"time"

	"github.com/Server-perf/watchman/pkg/view"
)

// populate builds a small tree directly against a View, bypassing the
// crawler, so query tests can control ticks and stat data precisely.
func populate(v *view.View) {
	v.Lock(0)
	defer v.Unlock()

	tick := v.AdvanceTick()
	now := time.Now()

	srcDir, _ := v.ResolveDir("src", true)
	mainFile := v.GetOrCreateChildFile(srcDir, "main.go", now, tick)
	v.MarkFileChanged(mainFile, now, tick)
	mainFile.SetStat(true, view.StatSnapshot{Size: 100, Mtime: now})

	readmeFile := v.GetOrCreateChildFile(v.Root(), "README.md", now, tick)
	v.MarkFileChanged(readmeFile, now, tick)
	readmeFile.SetStat(true, view.StatSnapshot{Size: 50, Mtime: now})

	tick2 := v.AdvanceTick()
	testFile := v.GetOrCreateChildFile(srcDir, "main_test.go", now, tick2)
	v.MarkFileChanged(testFile, now, tick2)
	testFile.SetStat(true, view.StatSnapshot{Size: 20, Mtime: now})
}

func TestExecuteAllFiles(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}
	if len(result.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(result.Matches))
	}
}

func TestExecuteSuffixGenerator(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{Suffixes: []string{"go"}}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 .go matches, got %d", len(result.Matches))
	}
	for _, m := range result.Matches {
		if m.WholeName != "src/main.go" && m.WholeName != "src/main_test.go" {
			t.Errorf("unexpected match: %s", m.WholeName)
		}
	}
}

func TestExecutePathGenerator(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{
		Paths: []PathSpec{{Name: "src", Depth: DepthUnlimited}},
	}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 matches under src, got %d", len(result.Matches))
	}
}

func TestExecuteGlobGenerator(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{Globs: []string{"src/*.go"}}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 glob matches, got %d", len(result.Matches))
	}
}

func TestExecuteExpressionFilter(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{
		Expression: SizeCompare(OpGT, 40),
	}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 matches with size > 40, got %d", len(result.Matches))
	}
}

func TestExecuteFreshInstanceOnRootNumberMismatch(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{
		Since: SinceCursor(999, 0),
	}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}
	if !result.IsFreshInstance {
		t.Error("expected fresh instance when cursor root number mismatches")
	}
	if len(result.Matches) != 3 {
		t.Fatalf("expected fresh instance to fall back to all files, got %d", len(result.Matches))
	}
}

func TestExecuteFreshInstanceEmptyOnRequest(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{
		Since:                SinceCursor(999, 0),
		EmptyOnFreshInstance: true,
	}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}
	if !result.IsFreshInstance {
		t.Error("expected fresh instance")
	}
	if len(result.Matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(result.Matches))
	}
}

func TestExecuteSinceCursorIsNewFlag(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{
		Since: SinceCursor(1, 1),
	}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}

	foundNew := false
	for _, m := range result.Matches {
		if m.WholeName == "src/main_test.go" {
			if !m.IsNew {
				t.Error("expected src/main_test.go to be flagged is_new")
			}
			foundNew = true
		}
	}
	if !foundNew {
		t.Fatal("expected to find src/main_test.go among matches")
	}
}

func TestExecuteRelativeRoot(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{
		RelativeRoot: "src",
	}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}
	if len(result.Matches) != 2 {
		t.Fatalf("expected 2 matches under relative root, got %d", len(result.Matches))
	}
	for _, m := range result.Matches {
		if m.WholeName != "main.go" && m.WholeName != "main_test.go" {
			t.Errorf("unexpected wholename under relative root: %s", m.WholeName)
		}
	}
}

func TestExecuteDedupResults(t *testing.T) {
	v := view.New("/root")
	populate(v)

	result, err := Execute(context.Background(), v, &Query{
		DedupResults: true,
		Expression:   True(),
	}, 1)
	if err != nil {
		t.Fatal("execute failed:", err)
	}
	if len(result.Matches) != 3 {
		t.Fatalf("expected 3 deduped matches, got %d", len(result.Matches))
	}
}

func TestExecuteLockTimeout(t *testing.T) {
	v := view.New("/root")
	v.Lock(0)
	defer v.Unlock()

	_, err := Execute(context.Background(), v, &Query{LockTimeout: 10 * time.Millisecond}, 1)
	if err != ErrLockTimeout {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestFieldSetValidateAcceptsKnownFields(t *testing.T) {
	fields := FieldSet{"name", "size", "mtime"}
	if err := fields.Validate(); err != nil {
		t.Fatal("unexpected error for known fields:", err)
	}
}

func TestFieldSetValidateRejectsUnknownField(t *testing.T) {
	fields := FieldSet{"name", "bogus"}
	if err := fields.Validate(); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestExecuteRejectsUnknownField(t *testing.T) {
	v := view.New("/root")
	populate(v)

	_, err := Execute(context.Background(), v, &Query{Fields: FieldSet{"bogus"}}, 1)
	if err == nil {
		t.Fatal("expected an error for an unknown field selection")
	}
}
