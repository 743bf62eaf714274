package extraction

import (
	"regexp"
	"strings"
)

// Mode selects how repeated matches of one pattern are collected.
type Mode int

const (
	// AllUnique keeps every non-empty match, deduplicated by exact trimmed
	// value in first-occurrence order. Used for catalog fields.
	AllUnique Mode = iota
	// FirstOnly keeps the first non-empty match. Used for vitals and labs.
	FirstOnly
	// All keeps every match in order with no filtering or dedup. Used for
	// medications.
	All
)

func (m Mode) String() string {
	switch m {
	case AllUnique:
		return "all-unique"
	case FirstOnly:
		return "first-only"
	case All:
		return "all"
	default:
		return "unknown"
	}
}

// Match is one regexp hit. Index i holds capture group i (0 is the whole
// match), trimmed, absent when the group did not participate.
type Match []Optional[string]

// Group returns capture group i, absent when out of range.
func (m Match) Group(i int) Optional[string] {
	if i < 0 || i >= len(m) {
		return None[string]()
	}
	return m[i]
}

func newMatch(text string, loc []int) Match {
	m := make(Match, len(loc)/2)
	for i := range m {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			m[i] = None[string]()
			continue
		}
		m[i] = Some(strings.TrimSpace(text[start:end]))
	}
	return m
}

// Find applies re globally to text and collects hits according to mode.
// group is the capture group that AllUnique and FirstOnly filter and
// deduplicate on.
func Find(re *regexp.Regexp, group int, text string, mode Mode) []Match {
	locs := re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	var seen map[string]struct{}
	if mode == AllUnique {
		seen = make(map[string]struct{}, len(locs))
	}

	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		m := newMatch(text, loc)
		if mode != All {
			v, ok := m.Group(group).Get()
			if !ok || v == "" {
				continue
			}
			if mode == AllUnique {
				if _, dup := seen[v]; dup {
					continue
				}
				seen[v] = struct{}{}
			}
		}
		out = append(out, m)
		if mode == FirstOnly {
			break
		}
	}
	return out
}

// Values runs the pattern and returns the value group of each collected
// match. The result is never nil.
func (p Pattern) Values(text string, mode Mode) []string {
	matches := Find(p.Re, p.Group, text, mode)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, m.Group(p.Group).OrElse(""))
	}
	return values
}

// First returns the first non-empty value of the pattern.
func (p Pattern) First(text string) Optional[string] {
	values := p.Values(text, FirstOnly)
	if len(values) == 0 {
		return None[string]()
	}
	return Some(values[0])
}
