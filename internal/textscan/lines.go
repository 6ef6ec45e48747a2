// Package textscan provides small positional scanners over layout-derived text.
//
// Text produced by the extraction collaborator is line oriented: labels sit on
// one line and their values on the next. Scanners here operate over an
// immutable, indexed line array so callers split the text once and run any
// number of lookups against it.
package textscan

import "strings"

// Lines is an immutable sequence of trimmed, non-blank lines.
type Lines struct {
	items []string
}

// Split breaks text into trimmed lines, dropping blank ones.
func Split(text string) Lines {
	if text == "" {
		return Lines{}
	}
	raw := strings.Split(text, "\n")
	items := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		items = append(items, line)
	}
	return Lines{items: items}
}

// Len reports the number of lines.
func (l Lines) Len() int {
	return len(l.items)
}

// At returns the line at i, or "" when i is out of range.
func (l Lines) At(i int) string {
	if i < 0 || i >= len(l.items) {
		return ""
	}
	return l.items[i]
}

// Match is the result of a successful scan.
type Match struct {
	Index int
	Value string
}

// Scanner inspects lines starting at an index and optionally reports a match.
type Scanner func(lines Lines, start int) (Match, bool)

// Find returns the index of the first line at or after start satisfying pred.
func (l Lines) Find(start int, pred func(string) bool) (int, bool) {
	if start < 0 {
		start = 0
	}
	for i := start; i < len(l.items); i++ {
		if pred(l.items[i]) {
			return i, true
		}
	}
	return -1, false
}

// Equals matches lines equal to one of the given labels.
func Equals(labels ...string) func(string) bool {
	return func(line string) bool {
		for _, label := range labels {
			if line == label {
				return true
			}
		}
		return false
	}
}

// Contains matches lines containing one of the given fragments.
func Contains(fragments ...string) func(string) bool {
	return func(line string) bool {
		for _, fragment := range fragments {
			if strings.Contains(line, fragment) {
				return true
			}
		}
		return false
	}
}

// NextAfter locates the first line satisfying label and returns the line
// directly after it. Only the first label occurrence is considered.
func NextAfter(label func(string) bool) Scanner {
	return func(lines Lines, start int) (Match, bool) {
		i, ok := lines.Find(start, label)
		if !ok || i+1 >= lines.Len() {
			return Match{}, false
		}
		return Match{Index: i + 1, Value: lines.At(i + 1)}, true
	}
}

// PrevBefore returns the line preceding each line satisfying label, accepting
// the first preceding line for which accept returns true. Every label
// occurrence is tried in order.
func PrevBefore(label func(string) bool, accept func(string) bool) Scanner {
	return func(lines Lines, start int) (Match, bool) {
		for i := start; i < lines.Len(); i++ {
			if i <= 0 || !label(lines.At(i)) {
				continue
			}
			prev := lines.At(i - 1)
			if accept(prev) {
				return Match{Index: i - 1, Value: prev}, true
			}
		}
		return Match{}, false
	}
}

// WithinAfter locates the first line satisfying label and then searches the
// following window lines for the first one extract accepts.
func WithinAfter(label func(string) bool, window int, extract func(string) (string, bool)) Scanner {
	return func(lines Lines, start int) (Match, bool) {
		i, ok := lines.Find(start, label)
		if !ok {
			return Match{}, false
		}
		for j := i + 1; j <= i+window && j < lines.Len(); j++ {
			if v, ok := extract(lines.At(j)); ok {
				return Match{Index: j, Value: v}, true
			}
		}
		return Match{}, false
	}
}
