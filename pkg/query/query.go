// Package query implements the query engine: it evaluates a compiled
// expression tree against a view.View under a read lock, selecting
// candidate files via one of five generators and producing a cursor plus
// a deque of matches.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Server-perf/watchman/pkg/contextutil"
	"github.com/Server-perf/watchman/pkg/logging"
	"github.com/Server-perf/watchman/pkg/view"
)

var logger = logging.RootLogger.Sublogger("query")

// ErrLockTimeout is returned by Execute when the view's read lock could not
// be acquired within LockTimeout.
var ErrLockTimeout = errors.New("query: timed out acquiring read lock")

// ErrCancelled is returned by Execute when ctx is cancelled mid-generation.
var ErrCancelled = errors.New("query: cancelled")

// PathSpec is one (name, depth) pair for the path generator. Depth is the
// number of directory levels below name to recurse into; DepthUnlimited
// recurses without bound.
type PathSpec struct {
	Name  string
	Depth int
}

// DepthUnlimited is the sentinel PathSpec.Depth value requesting unbounded
// recursion.
const DepthUnlimited = -1

// Since is a tagged union of the three ways a query can specify its
// baseline: a wall-clock timestamp, an explicit (root_number, tick) pair
// tied to a specific watch-session incarnation, or nothing at all.
type Since struct {
	set         bool
	isTimestamp bool
	timestamp   time.Time
	rootNumber  uint32
	tick        uint32
}

// SinceTimestamp builds a Since baseline from a wall-clock time.
func SinceTimestamp(t time.Time) Since {
	return Since{set: true, isTimestamp: true, timestamp: t}
}

// SinceCursor builds a Since baseline from a prior cursor's root number and
// tick.
func SinceCursor(rootNumber, tick uint32) Since {
	return Since{set: true, rootNumber: rootNumber, tick: tick}
}

// FieldName identifies a single known File attribute that can be selected
// for rendered output.
type FieldName string

// The fixed registry of field names a FieldSet may reference. Rendering
// itself is out of scope for this package (owned by the caller's own
// encoder), but the registry gives that encoder a stable, named contract to
// render against, matching the original implementation's field list.
const (
	FieldNameName   FieldName = "name"
	FieldNameExists FieldName = "exists"
	FieldNameSize   FieldName = "size"
	FieldNameMode   FieldName = "mode"
	FieldNameMTime  FieldName = "mtime"
	FieldNameCTime  FieldName = "ctime"
	FieldNameNew    FieldName = "new"
)

// KnownFields is the registry of every valid FieldName, in the original's
// field-list order.
var KnownFields = []FieldName{
	FieldNameName,
	FieldNameExists,
	FieldNameSize,
	FieldNameMode,
	FieldNameMTime,
	FieldNameCTime,
	FieldNameNew,
}

func isKnownField(name string) bool {
	for _, known := range KnownFields {
		if string(known) == name {
			return true
		}
	}
	return false
}

// FieldSet selects which File attributes should appear in rendered output.
// Rendering itself is out of scope for this package; FieldSet is carried
// on Query for the caller's own encoder, and Execute only validates it.
// Result does not carry it.
type FieldSet []string

// Validate reports an error if the FieldSet references any name outside the
// KnownFields registry.
func (s FieldSet) Validate() error {
	for _, name := range s {
		if !isKnownField(name) {
			return errors.Errorf("unknown field: %q", name)
		}
	}
	return nil
}

// Query is a parsed, validated query description.
type Query struct {
	// CaseSensitive controls glob matching. Name and path terms carry
	// their own case flag, and suffix matching is always
	// case-insensitive.
	CaseSensitive bool
	// RelativeRoot restricts matches to this subtree, expressed relative
	// to the view's root. Empty means the whole tree.
	RelativeRoot string

	Paths    []PathSpec
	Suffixes []string
	Globs    []string

	// GlobDisablePathMode, when set, allows a glob's `*` to match `/`
	// (wildmatch's non-path mode). The default (false) is path-mode: `*`
	// never crosses a directory separator, only `**` does.
	GlobDisablePathMode bool
	// GlobRequirePeriodLeading, when set, only matches a hidden file (one
	// whose name begins with a period) against a pattern whose final
	// segment explicitly begins with a period (wildmatch's WM_PERIOD). The
	// default (false) imposes no such restriction.
	GlobRequirePeriodLeading bool

	Since Since

	Expression QueryExpr

	Fields FieldSet

	DedupResults        bool
	EmptyOnFreshInstance bool

	LockTimeout time.Duration
}

// RuleMatch is a single query result.
type RuleMatch struct {
	RootNumber uint32
	WholeName  string
	IsNew      bool
	File       *view.File
}

// Result is the output of a query execution.
type Result struct {
	IsFreshInstance bool
	Matches         []RuleMatch
	RootNumber      uint32
	Ticks           uint32
	NumDeduped      int
}

// evalContext carries per-execution state threaded through the generator
// and the expression tree: the wholename cache, the dedup set, and the
// since-tick cutoff used to compute IsNew.
type evalContext struct {
	ctx context.Context

	relativeRoot string
	sinceTick    uint32
	dedup        bool
	seen         map[string]struct{}

	// lastParentDir/lastParentPath cache the most recently computed
	// wholename prefix, reused when consecutive candidates share a
	// parent directory.
	lastParentDir  *view.Directory
	lastParentPath string

	traceID string
}

// wholename computes f's path relative to relativeRoot (or the view root
// if unset), reusing the cached parent prefix when possible.
func (c *evalContext) wholename(f *view.File) string {
	parent := f.Parent()
	var prefix string
	if parent == c.lastParentDir {
		prefix = c.lastParentPath
	} else {
		prefix = parent.FullPath().String()
		c.lastParentDir = parent
		c.lastParentPath = prefix
	}

	full := f.Name().String()
	if prefix != "" {
		full = prefix + "/" + full
	}

	if c.relativeRoot == "" {
		return full
	}
	if full == c.relativeRoot {
		return ""
	}
	if rest := strings.TrimPrefix(full, c.relativeRoot+"/"); rest != full {
		return rest
	}
	return ""
}

// underRelativeRoot reports whether f's full path falls under
// relativeRoot, per step 1 of the per-file evaluation pipeline.
func (c *evalContext) underRelativeRoot(f *view.File) bool {
	if c.relativeRoot == "" {
		return true
	}
	parentPath := f.Parent().FullPath().String()
	full := f.Name().String()
	if parentPath != "" {
		full = parentPath + "/" + full
	}
	return full == c.relativeRoot || strings.HasPrefix(full, c.relativeRoot+"/")
}

// Execute evaluates q against v, selecting a generator and running the
// per-file evaluation pipeline over every candidate it produces.
func Execute(ctx context.Context, v *view.View, q *Query, currentRootNumber uint32) (*Result, error) {
	if err := q.Fields.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid field selection")
	}

	timeout := q.LockTimeout
	if timeout == 0 {
		timeout = view.DefaultLockTimeout
	}
	if !v.RLock(timeout) {
		return nil, ErrLockTimeout
	}
	defer v.RUnlock()

	traceID := uuid.NewString()
	ticks := v.MostRecentTick()

	freshInstance, sinceTick := resolveSince(v, q.Since, currentRootNumber)

	result := &Result{
		RootNumber: currentRootNumber,
		Ticks:      ticks,
	}

	if freshInstance {
		result.IsFreshInstance = true
		if q.EmptyOnFreshInstance {
			logger.Debugf("query %s: fresh instance, returning empty result", traceID)
			return result, nil
		}
		// Fresh instance without suppression: the time generator is
		// skipped, since there's no recency baseline to trust; a path,
		// suffix or glob generator still applies, else all-files.
	}

	ec := &evalContext{
		ctx:          ctx,
		relativeRoot: q.RelativeRoot,
		sinceTick:    sinceTick,
		dedup:        q.DedupResults,
		seen:         make(map[string]struct{}),
		traceID:      traceID,
	}

	generator := selectGenerator(q, freshInstance)
	logger.Debugf("query %s: using %s generator", traceID, generator.name)

	var cancelled bool
	generator.run(v, q, func(f *view.File) bool {
		if contextutil.IsCancelled(ctx) {
			cancelled = true
			return false
		}
		evaluateCandidate(ec, q, f, result)
		return true
	})

	if cancelled {
		result.Matches = nil
		return result, ErrCancelled
	}

	return result, nil
}

// resolveSince determines whether q's since baseline refers to a stale
// root incarnation (or predates the last age-out), and if not, converts it
// into a tick cutoff for the time generator and the IsNew computation.
func resolveSince(v *view.View, since Since, currentRootNumber uint32) (freshInstance bool, sinceTick uint32) {
	if !since.set {
		return false, 0
	}

	if since.isTimestamp {
		if !since.timestamp.Before(v.LastAgeOutTimestamp()) {
			return false, v.LastAgeOutTick()
		}
		return true, 0
	}

	if since.rootNumber != currentRootNumber {
		return true, 0
	}
	if since.tick < v.LastAgeOutTick() {
		return true, 0
	}
	return false, since.tick
}

// evaluateCandidate runs the per-file evaluation steps against one
// candidate File: the relative-root check (no generator restricts its own
// traversal to the subtree), the expression, dedup, and emission.
func evaluateCandidate(ec *evalContext, q *Query, f *view.File, result *Result) {
	if !ec.underRelativeRoot(f) {
		return
	}

	if q.Expression != nil && !q.Expression.Evaluate(ec, f) {
		return
	}

	wholename := ec.wholename(f)

	if ec.dedup {
		if _, ok := ec.seen[wholename]; ok {
			result.NumDeduped++
			return
		}
		ec.seen[wholename] = struct{}{}
	}

	result.Matches = append(result.Matches, RuleMatch{
		RootNumber: result.RootNumber,
		WholeName:  wholename,
		IsNew:      f.CtimeTicks() > ec.sinceTick,
		File:       f,
	})
}
