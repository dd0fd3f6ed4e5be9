package output

import (
	"path"
	"strings"
)

type excludePattern struct {
	glob string
	full bool // match the whole course-relative path instead of the basename
}

// Matcher decides which course-relative paths are excluded from download.
// Patterns without '/' match the basename; patterns with '/' match the
// whole path from the course directory.
type Matcher struct {
	patterns []excludePattern
}

// NewMatcher parses patterns. Blank entries and '#' comments are skipped.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		m.patterns = append(m.patterns, excludePattern{glob: p, full: strings.Contains(p, "/")})
	}
	return m
}

// Match reports whether relPath (slash separated) is excluded. Malformed
// patterns never match.
func (m *Matcher) Match(relPath string) bool {
	if m == nil {
		return false
	}
	base := path.Base(relPath)
	for _, p := range m.patterns {
		subject := base
		if p.full {
			subject = relPath
		}
		if ok, err := path.Match(p.glob, subject); err == nil && ok {
			return true
		}
	}
	return false
}
