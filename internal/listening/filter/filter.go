// Package filter classifies chain events into the categories a listener
// reports on.
package filter

import (
	"errors"
	"fmt"

	"github.com/vietddude/listen/internal/core/domain"
)

// Filter selects a category of events.
type Filter uint8

const (
	// NewBlock matches new block events.
	NewBlock Filter = iota + 1
	// Tx matches everything that is neither a new block nor a chain error.
	Tx
)

// All lists every known filter in display order.
var All = []Filter{NewBlock, Tx}

// ErrUnrecognizedFilter is matched by every UnrecognizedFilterError.
var ErrUnrecognizedFilter = errors.New("unrecognized event type")

// UnrecognizedFilterError is returned by Parse for an unknown token.
type UnrecognizedFilterError struct {
	Token string
}

func (e *UnrecognizedFilterError) Error() string {
	return fmt.Sprintf("unrecognized event type: %s", e.Token)
}

func (e *UnrecognizedFilterError) Is(target error) bool {
	return target == ErrUnrecognizedFilter
}

// Parse converts a case-sensitive token ("NewBlock" or "Tx") into a Filter.
func Parse(token string) (Filter, error) {
	switch token {
	case "NewBlock":
		return NewBlock, nil
	case "Tx":
		return Tx, nil
	default:
		return 0, &UnrecognizedFilterError{Token: token}
	}
}

// ParseAll parses every token, failing on the first unrecognized one.
func ParseAll(tokens []string) ([]Filter, error) {
	filters := make([]Filter, 0, len(tokens))
	for _, t := range tokens {
		f, err := Parse(t)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// String returns the token the filter was parsed from.
func (f Filter) String() string {
	switch f {
	case NewBlock:
		return "NewBlock"
	case Tx:
		return "Tx"
	default:
		return fmt.Sprintf("Filter(%d)", uint8(f))
	}
}

// Matches reports whether the event belongs to the filter's category.
func (f Filter) Matches(event domain.Event) bool {
	switch f {
	case NewBlock:
		_, ok := event.(domain.NewBlockEvent)
		return ok
	case Tx:
		switch event.(type) {
		case domain.NewBlockEvent, domain.ChainErrorEvent:
			return false
		default:
			return event != nil
		}
	default:
		return false
	}
}
