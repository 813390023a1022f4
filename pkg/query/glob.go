package query

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// globMatcher holds a compiled set of doublestar patterns and the wildmatch
// flags they should be matched with.
type globMatcher struct {
	patterns              []string
	caseSensitive         bool
	pathMode              bool
	periodLeadingRequired bool
}

// compileGlobs validates each pattern by test-matching it against a dummy
// path up front, so a malformed pattern fails the whole query rather than
// silently matching nothing partway through a traversal. Patterns are
// rewritten once, at compile time, to account for pathMode; doublestar
// itself has no toggle for it.
func compileGlobs(patterns []string, caseSensitive, pathMode, periodLeadingRequired bool) (*globMatcher, error) {
	compiled := make([]string, len(patterns))
	for i, p := range patterns {
		pattern := p
		if !pathMode {
			pattern = allowStarsAcrossSeparators(pattern)
		}
		if _, err := doublestar.Match(pattern, "a"); err != nil {
			return nil, errors.Wrapf(err, "invalid glob pattern: %q", p)
		}
		compiled[i] = pattern
	}
	return &globMatcher{
		patterns:              compiled,
		caseSensitive:         caseSensitive,
		pathMode:              pathMode,
		periodLeadingRequired: periodLeadingRequired,
	}, nil
}

// allowStarsAcrossSeparators rewrites every run of one or more `*` into `**`
// for non-path-mode ("`*` matches `/`"), which doublestar does not implement
// natively. doublestar only lets `**` cross a `/` when it fills a whole path
// segment; match completes non-path-mode by hiding `/` from doublestar.
func allowStarsAcrossSeparators(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '*' {
			b.WriteByte(pattern[i])
			continue
		}
		for i < len(pattern) && pattern[i] == '*' {
			i++
		}
		i--
		b.WriteString("**")
	}
	return b.String()
}

// isHiddenBasename reports whether wholename's final path component begins
// with a period.
func isHiddenBasename(wholename string) bool {
	if i := strings.LastIndex(wholename, "/"); i >= 0 {
		wholename = wholename[i+1:]
	}
	return strings.HasPrefix(wholename, ".")
}

// patternExplicitlyMatchesLeadingDot reports whether pattern's final segment
// begins with a literal period, rather than a wildcard that happens to
// expand to one.
func patternExplicitlyMatchesLeadingDot(pattern string) bool {
	if i := strings.LastIndex(pattern, "/"); i >= 0 {
		pattern = pattern[i+1:]
	}
	return strings.HasPrefix(pattern, ".")
}

// match reports whether wholename satisfies at least one compiled pattern.
func (m *globMatcher) match(wholename string) bool {
	name := wholename
	if !m.pathMode {
		// doublestar lets `**` cross a `/` only when it fills a whole path
		// segment, so outside path mode every `/` is hidden from it, in
		// both name and pattern, leaving any star run free to match one.
		name = strings.ReplaceAll(name, "/", "\x00")
	}
	if !m.caseSensitive {
		name = strings.ToLower(name)
	}
	hidden := m.periodLeadingRequired && isHiddenBasename(wholename)

	for _, p := range m.patterns {
		if hidden && !patternExplicitlyMatchesLeadingDot(p) {
			continue
		}

		pattern := p
		if !m.pathMode {
			pattern = strings.ReplaceAll(pattern, "/", "\x00")
		}
		if !m.caseSensitive {
			pattern = strings.ToLower(pattern)
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
