// Package pathmatch decides which request paths are never forwarded to the
// primary.
//
// Patterns are either regular expressions, written with a "re:" prefix and
// matched from the start of the path, or case-sensitive globs matched against
// the whole path. In globs "*" matches any run of characters, path
// separators included, so "/api/*" covers "/api/v1/items". "**" matches the
// text before it literally and then anything: whatever follows "**" in the
// pattern is ignored, so "/api/**/status" covers every path under "/api/".
// "?" matches a single character and "[...]" a character class ("[!...]"
// negates).
package pathmatch

import (
	"fmt"
	"regexp"
	"strings"
)

const regexPrefix = "re:"

// Matcher holds compiled exclusion patterns in their configured order
type Matcher struct {
	patterns []*regexp.Regexp
	sources  []string
}

// NewMatcher compiles patterns. An invalid regex or an unterminated glob
// class is an error.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{
		patterns: make([]*regexp.Regexp, 0, len(patterns)),
		sources:  append([]string(nil), patterns...),
	}
	for _, p := range patterns {
		var expr string
		if re, ok := strings.CutPrefix(p, regexPrefix); ok {
			expr = "^(?:" + re + ")"
		} else {
			g, err := globToRegexp(p)
			if err != nil {
				return nil, err
			}
			expr = g
		}
		compiled, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, compiled)
	}
	return m, nil
}

// IsExcluded reports whether path matches any pattern. The query string must
// already be stripped.
func (m *Matcher) IsExcluded(path string) bool {
	for _, re := range m.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Patterns returns the configured pattern strings
func (m *Matcher) Patterns() []string {
	return append([]string(nil), m.sources...)
}

func globToRegexp(glob string) (string, error) {
	var b strings.Builder
	b.WriteString("^")

	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				b.WriteString(".*")
				return b.String(), nil
			}
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				return "", fmt.Errorf("invalid glob %q: unterminated character class", glob)
			}
			class := glob[i+1 : i+1+end]
			b.WriteString("[")
			if strings.HasPrefix(class, "!") {
				b.WriteString("^")
				class = class[1:]
			}
			b.WriteString(strings.ReplaceAll(class, `\`, `\\`))
			b.WriteString("]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	b.WriteString("$")
	return b.String(), nil
}
