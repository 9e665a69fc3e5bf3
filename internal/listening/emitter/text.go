package emitter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/vietddude/listen/internal/core/domain"
)

// TextEmitter writes human-readable reports. A batch is a
// "- event batch at height H" header, one "+ <event JSON>" line per event and
// a blank line. Errors are written as "- error: ...".
type TextEmitter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewTextEmitter creates a text emitter writing to w.
func NewTextEmitter(w io.Writer) *TextEmitter {
	return &TextEmitter{w: bufio.NewWriter(w)}
}

func (e *TextEmitter) EmitBatch(
	ctx context.Context,
	chainID domain.ChainID,
	height int64,
	events []domain.Event,
) error {
	lines := make([][]byte, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(newRecord(ev))
		if err != nil {
			return fmt.Errorf("failed to encode %s event at height %d: %w", ev.Kind(), height, err)
		}
		lines = append(lines, data)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fmt.Fprintf(e.w, "- event batch at height %d\n", height)
	for _, data := range lines {
		fmt.Fprintf(e.w, "+ %s\n", data)
	}
	fmt.Fprintln(e.w)

	return e.w.Flush()
}

func (e *TextEmitter) EmitError(ctx context.Context, chainID domain.ChainID, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fmt.Fprintf(e.w, "- error: %v\n", err)
	return e.w.Flush()
}

func (e *TextEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w.Flush()
}
