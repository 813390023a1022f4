package query

import (
	"strings"

	"github.com/Server-perf/watchman/pkg/view"
)

// generator selects and walks candidate Files for one query execution.
// emit is called once per candidate; it returns false to request an early
// stop (used for cancellation).
type generator struct {
	name string
	run  func(v *view.View, q *Query, emit func(*view.File) bool)
}

// selectGenerator implements the generator-selection precedence table:
// paths, then suffixes, then globs, then time (if applicable), else
// all-files.
func selectGenerator(q *Query, freshInstance bool) generator {
	switch {
	case len(q.Paths) > 0:
		return generator{name: "path", run: runPathGenerator}
	case len(q.Suffixes) > 0:
		return generator{name: "suffix", run: runSuffixGenerator}
	case len(q.Globs) > 0:
		return generator{name: "glob", run: runGlobGenerator}
	case q.Since.set && !freshInstance:
		return generator{name: "time", run: runTimeGenerator}
	default:
		return generator{name: "all-files", run: runAllFilesGenerator}
	}
}

// runTimeGenerator walks the recency list from head to tail, stopping at
// the first File whose observation tick predates the since cutoff. No
// directory traversal is required; results are naturally in recency order.
func runTimeGenerator(v *view.View, q *Query, emit func(*view.File) bool) {
	// selectGenerator only picks this generator when since is not a fresh
	// instance, so resolving it against its own root number yields its
	// tick cutoff.
	_, sinceTick := resolveSince(v, q.Since, q.Since.rootNumber)
	for f := v.RecencyHead(); f != nil; f = f.RecencyNext() {
		if f.Otime() < sinceTick {
			return
		}
		if !emit(f) {
			return
		}
	}
}

// runSuffixGenerator walks each configured suffix's list head to tail.
func runSuffixGenerator(v *view.View, q *Query, emit func(*view.File) bool) {
	for _, suffix := range q.Suffixes {
		key := strings.ToLower(suffix)
		for f := v.SuffixHead(key); f != nil; f = f.SuffixNext() {
			if !emit(f) {
				return
			}
		}
	}
}

// runPathGenerator resolves each configured (name, depth) pair and visits
// matching files, recursing into directories up to the configured depth.
func runPathGenerator(v *view.View, q *Query, emit func(*view.File) bool) {
	for _, spec := range q.Paths {
		dir, err := v.ResolveDir(spec.Name, false)
		if err == nil {
			if !walkDirToDepth(dir, spec.Depth, emit) {
				return
			}
			continue
		}

		// Not a directory; maybe it names a single file directly.
		parentPath, name := splitPathSpec(spec.Name)
		parent, err := v.ResolveDir(parentPath, false)
		if err != nil {
			continue
		}
		if f, ok := parent.ChildFile(name); ok {
			if !emit(f) {
				return
			}
		}
	}
}

func splitPathSpec(p string) (parent, name string) {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

// walkDirToDepth visits every File directly in dir, then recurses into
// child Directories while depth remains, decrementing by one per level.
// DepthUnlimited never runs out.
func walkDirToDepth(dir *view.Directory, depth int, emit func(*view.File) bool) bool {
	for _, f := range dir.Files() {
		if !emit(f) {
			return false
		}
	}
	if depth == 0 {
		return true
	}
	nextDepth := depth
	if nextDepth != DepthUnlimited {
		nextDepth--
	}
	for _, child := range dir.Dirs() {
		if !walkDirToDepth(child, nextDepth, emit) {
			return false
		}
	}
	return true
}

// runGlobGenerator performs a full pre-order traversal of the tree,
// emitting Files whose wholename matches at least one compiled glob
// pattern.
//
// The reference design describes a generator that walks a compiled glob
// tree in lockstep with the directory tree, forking on doublestar
// fragments. Go's doublestar package matches whole strings rather than
// exposing a per-component fragment AST, so this generator instead
// precompiles each pattern once and matches candidate wholenames directly
// during a single traversal; the result set is identical, at the cost of
// visiting files a lockstep walk could have pruned early.
func runGlobGenerator(v *view.View, q *Query, emit func(*view.File) bool) {
	matcher, err := compileGlobs(q.Globs, q.CaseSensitive, !q.GlobDisablePathMode, q.GlobRequirePeriodLeading)
	if err != nil {
		return
	}
	walkAll(v.Root(), "", func(f *view.File, wholename string) bool {
		if !matcher.match(wholename) {
			return true
		}
		return emit(f)
	})
}

// runAllFilesGenerator performs a recursive pre-order traversal of the
// entire root.
func runAllFilesGenerator(v *view.View, q *Query, emit func(*view.File) bool) {
	walkAll(v.Root(), "", func(f *view.File, _ string) bool {
		return emit(f)
	})
}

// walkAll visits every File in the tree rooted at dir in pre-order,
// tracking the accumulated wholename for generators (glob) that need it
// during traversal rather than via evalContext's cache.
func walkAll(dir *view.Directory, prefix string, visit func(f *view.File, wholename string) bool) bool {
	for name, f := range dir.Files() {
		wholename := name
		if prefix != "" {
			wholename = prefix + "/" + name
		}
		if !visit(f, wholename) {
			return false
		}
	}
	for name, child := range dir.Dirs() {
		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		if !walkAll(child, childPrefix, visit) {
			return false
		}
	}
	return true
}
