package emitter

import (
	"context"
	"fmt"
	"io"

	"github.com/vietddude/listen/internal/core/domain"
)

// Emitter defines the interface for reporting matched events
type Emitter interface {
	// EmitBatch reports the matching events of one batch
	EmitBatch(ctx context.Context, chainID domain.ChainID, height int64, events []domain.Event) error

	// EmitError reports a batch-level delivery error
	EmitError(ctx context.Context, chainID domain.ChainID, err error) error

	// Close flushes and releases the emitter
	Close() error
}

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// New returns the emitter for the given format writing to w.
func New(format Format, w io.Writer) (Emitter, error) {
	switch format {
	case FormatText, "":
		return NewTextEmitter(w), nil
	case FormatJSON:
		return NewJSONEmitter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text or json)", format)
	}
}

// record is the tagged JSON form of an event.
type record struct {
	Kind  domain.EventKind `json:"kind"`
	Event domain.Event     `json:"event"`
}

func newRecord(e domain.Event) record {
	return record{Kind: e.Kind(), Event: e}
}
