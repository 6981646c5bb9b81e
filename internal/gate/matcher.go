package gate

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrConfiguration marks gate settings that can never produce a working gate.
var ErrConfiguration = errors.New("gate configuration error")

// Matcher decides whether a request path is subject to gating.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// CompileMatcher compiles pattern with whole-path semantics: "/health.*"
// matches "/health/live" but not "/api/health".
func CompileMatcher(pattern string) (*Matcher, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid path pattern %q: %v", ErrConfiguration, pattern, err)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

func (m *Matcher) Match(path string) bool {
	return m.re.MatchString(path)
}

func (m *Matcher) String() string { return m.pattern }
