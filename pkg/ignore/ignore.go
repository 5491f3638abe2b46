// Package ignore decides which paths are left out of synchronization.
package ignore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sidkik/dirsync/pkg/errors"
)

// Matcher holds a compiled set of ignore patterns. The zero value ignores
// nothing.
type Matcher struct {
	patterns []*regexp.Regexp
}

// Compile compiles each pattern as a regular expression.
func Compile(patterns []string) (Matcher, error) {
	var m Matcher
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Matcher{}, errors.WithContext(err, fmt.Sprintf("compile pattern %q", pattern))
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// MustCompile is like Compile but panics on an invalid pattern.
func MustCompile(patterns ...string) Matcher {
	m, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

// IsIgnored returns whether any pattern matches somewhere in path. Backslashes
// are converted to forward slashes first, so patterns are written the same
// way on every platform.
//
// Callers pass paths relative to a synchronization root with a leading slash,
// e.g. "/src/.git/config". This lets a pattern such as `/\.git/` match a
// directory name exactly without also matching "my.git/".
func (m Matcher) IsIgnored(path string) bool {
	normalized := strings.Replace(path, `\`, "/", -1)
	for _, re := range m.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// Patterns returns the source of the compiled patterns.
func (m Matcher) Patterns() (patterns []string) {
	for _, re := range m.patterns {
		patterns = append(patterns, re.String())
	}
	return patterns
}
