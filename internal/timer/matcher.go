package timer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// ErrInvalidPattern is returned when a tracked process pattern does not compile
var ErrInvalidPattern = errors.New("invalid tracked process pattern")

// Matcher decides whether a foreground process is the tracked one. Patterns
// are matched against the base name of the process, case-insensitively and
// ignoring a trailing ".exe" on either side, so "Photoshop.exe" matches
// "photoshop". Glob syntax ("krita*", "{gimp,krita}", `\*`) is accepted; a
// pattern is never cut at path separators.
type Matcher struct {
	pattern string
	g       glob.Glob
}

// NewMatcher compiles pattern
func NewMatcher(pattern string) (*Matcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}

	g, err := glob.Compile(normalizePattern(pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	return &Matcher{pattern: pattern, g: g}, nil
}

// Pattern returns the pattern as configured
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Match reports whether process matches. An empty process (Unknown) never
// matches.
func (m *Matcher) Match(process string) bool {
	if process == "" {
		return false
	}
	return m.g.Match(baseName(process))
}

func normalizePattern(pattern string) string {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	return strings.TrimSuffix(pattern, ".exe")
}

// baseName reduces a process name or path to its comparable form
func baseName(process string) string {
	process = strings.TrimSpace(process)
	if i := strings.LastIndexAny(process, `/\`); i >= 0 {
		process = process[i+1:]
	}
	return normalizePattern(process)
}
