package filter

import (
	"strings"

	"github.com/vietddude/listen/internal/core/domain"
)

// Set is an immutable collection of filters. An event matches the set if any
// member matches it.
type Set struct {
	filters []Filter
}

// NewSet builds a set from the given filters. An empty selection selects
// every known category.
func NewSet(filters ...Filter) Set {
	if len(filters) == 0 {
		filters = All
	}
	out := make([]Filter, len(filters))
	copy(out, filters)
	return Set{filters: out}
}

// Filters returns a copy of the set's members.
func (s Set) Filters() []Filter {
	out := make([]Filter, len(s.filters))
	copy(out, s.filters)
	return out
}

// Match reports whether at least one member matches the event.
func (s Set) Match(event domain.Event) bool {
	for _, f := range s.filters {
		if f.Matches(event) {
			return true
		}
	}
	return false
}

// Apply returns the matching events in their original order. It returns nil
// when nothing matches.
func (s Set) Apply(events []domain.Event) []domain.Event {
	var matched []domain.Event
	for _, e := range events {
		if s.Match(e) {
			matched = append(matched, e)
		}
	}
	return matched
}

func (s Set) String() string {
	names := make([]string, len(s.filters))
	for i, f := range s.filters {
		names[i] = f.String()
	}
	return strings.Join(names, ", ")
}
