package store

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidPattern reports whether p is a usable origin pattern: an exact host
// name, a glob such as "hv-*", or a regular expression prefixed with "~"
// that is anchored at the start of the name.
func ValidPattern(p string) error {
	if re, ok := strings.CutPrefix(p, "~"); ok {
		if _, err := regexp.Compile("^(?:" + re + ")"); err != nil {
			return fmt.Errorf("invalid regex pattern %q: %w", p, err)
		}
		return nil
	}
	if !doublestar.ValidatePattern(p) {
		return fmt.Errorf("invalid glob pattern %q", p)
	}
	return nil
}

// matcher caches compiled regular expressions across queries.
type matcher struct {
	mu  sync.RWMutex
	res map[string]*regexp.Regexp
}

func newMatcher() *matcher {
	return &matcher{res: make(map[string]*regexp.Regexp)}
}

// match reports whether name matches the non-empty pattern p. Invalid
// patterns match nothing.
func (m *matcher) match(p, name string) bool {
	if p == name {
		return true
	}
	if expr, ok := strings.CutPrefix(p, "~"); ok {
		re := m.regexp(expr)
		return re != nil && re.MatchString(name)
	}
	ok, err := doublestar.Match(p, name)
	return err == nil && ok
}

func (m *matcher) regexp(expr string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.res[expr]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile("^(?:" + expr + ")")
	if err != nil {
		re = nil
	}
	m.mu.Lock()
	m.res[expr] = re
	m.mu.Unlock()
	return re
}
