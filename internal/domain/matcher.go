package domain

import "strings"

// StringMatcher matches a value iff it equals some member of Eq, or some
// member of StartWith is a prefix of it. Both fields absent means "match
// nothing" when the matcher is actually invoked; a nil *StringMatcher at the
// call site (as opposed to an empty-but-present one) instead means "match
// anything of this kind" and is handled by callers before invoking Matches.
type StringMatcher struct {
	Eq        []string `yaml:"eq,omitempty" json:"eq,omitempty"`
	StartWith []string `yaml:"start_with,omitempty" json:"start_with,omitempty"`
}

// Matches reports whether v is matched by m.
func (m *StringMatcher) Matches(v string) bool {
	if m == nil {
		return true
	}
	for _, e := range m.Eq {
		if e == v {
			return true
		}
	}
	for _, p := range m.StartWith {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}

// ConflictWith returns the first value two matchers both accept, if any.
// Eq/Eq overlap and StartWith/StartWith overlap are each checked; a matcher
// missing a field never conflicts with the other on that field.
func (m *StringMatcher) ConflictWith(other *StringMatcher) (string, bool) {
	if m == nil || other == nil {
		return "", false
	}
	for _, a := range m.Eq {
		for _, b := range other.Eq {
			if a == b {
				return a, true
			}
		}
	}
	for _, a := range m.StartWith {
		for _, b := range other.StartWith {
			if a == b {
				return a, true
			}
		}
	}
	return "", false
}
