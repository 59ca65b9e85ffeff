// Package pattern selects table names with glob or regex patterns.
// The consolidate command uses it to pick configured sources by name.
package pattern

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentstation/crmsync/pkg/errors"
)

// Type is the kind of pattern.
type Type int

const (
	// Glob uses shell-style glob patterns (*, ?, []).
	Glob Type = iota
	// Regex uses regular expressions.
	Regex
	// Auto detects the kind from the pattern text.
	Auto
)

// String returns a string representation of the Type.
func (t Type) String() string {
	switch t {
	case Glob:
		return "glob"
	case Regex:
		return "regex"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// Matcher reports whether names match one compiled pattern.
type Matcher struct {
	pattern  string
	kind     Type
	compiled *regexp.Regexp
	fold     bool
}

// New compiles pattern. With fold set matching ignores case.
func New(kind Type, pattern string, fold bool) (*Matcher, error) {
	m := &Matcher{pattern: pattern, kind: kind, fold: fold}
	if kind == Auto {
		m.kind = Detect(pattern)
	}

	switch m.kind {
	case Glob:
		if _, err := filepath.Match(m.glob(), ""); err != nil {
			return nil, errors.NewValidationError("pattern", pattern, "invalid glob: "+err.Error())
		}
	case Regex:
		expr := pattern
		if fold && !strings.HasPrefix(expr, "(?i)") {
			expr = "(?i)" + expr
		}
		compiled, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.NewValidationError("pattern", pattern, "invalid regex: "+err.Error())
		}
		m.compiled = compiled
	default:
		return nil, errors.NewValidationError("pattern", pattern, fmt.Sprintf("unsupported pattern type %v", kind))
	}
	return m, nil
}

func (m *Matcher) glob() string {
	if m.fold {
		return strings.ToLower(m.pattern)
	}
	return m.pattern
}

// Match reports whether name matches.
func (m *Matcher) Match(name string) bool {
	if m.kind == Regex {
		return m.compiled.MatchString(name)
	}
	if m.fold {
		name = strings.ToLower(name)
	}
	ok, _ := filepath.Match(m.glob(), name)
	return ok
}

// Pattern returns the original pattern string.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Type returns the resolved pattern type.
func (m *Matcher) Type() Type {
	return m.kind
}

// Detect guesses whether pattern is a regex or a glob.
func Detect(pattern string) Type {
	for _, indicator := range []string{
		"^", "$", `\d`, `\w`, `\s`, "(?:", "(?i)", "{", "}", "+", "|", "(", ")",
	} {
		if strings.Contains(pattern, indicator) {
			return Regex
		}
	}
	return Glob
}

// IsLiteral reports whether pattern has no glob or regex syntax.
func IsLiteral(pattern string) bool {
	return Detect(pattern) == Glob && !strings.ContainsAny(pattern, `*?[]\`)
}

// Filter returns the names matched by any of patterns, in input order
// and without duplicates. Names matched by no pattern are dropped.
func Filter(names []string, patterns ...string) ([]string, error) {
	matchers := make([]*Matcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := New(Auto, p, true)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}

	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		if seen[name] {
			continue
		}
		for _, m := range matchers {
			if m.Match(name) {
				out = append(out, name)
				seen[name] = true
				break
			}
		}
	}
	return out, nil
}
