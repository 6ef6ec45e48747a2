package textscan

import "regexp"

// Matcher is an optional capture over some input.
type Matcher[T any] func(T) (string, bool)

// FirstOf tries matchers in priority order; the first success wins.
func FirstOf[T any](matchers ...Matcher[T]) Matcher[T] {
	return func(in T) (string, bool) {
		for _, m := range matchers {
			if m == nil {
				continue
			}
			if v, ok := m(in); ok {
				return v, true
			}
		}
		return "", false
	}
}

// Capture returns a text matcher yielding the first capture group of re, or the
// whole match when re has no groups.
func Capture(re *regexp.Regexp) Matcher[string] {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	}
}

// Scan adapts a line scanner into a matcher over a Lines value.
func Scan(s Scanner) Matcher[Lines] {
	return func(lines Lines) (string, bool) {
		m, ok := s(lines, 0)
		if !ok {
			return "", false
		}
		return m.Value, true
	}
}
