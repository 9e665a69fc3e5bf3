package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/vietddude/listen/internal/core/domain"
)

// JSONEmitter writes one JSON object per line: a batch report or an error.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

type batchLine struct {
	Chain  domain.ChainID `json:"chain"`
	Height int64          `json:"height"`
	Events []record       `json:"events"`
}

type errorLine struct {
	Chain domain.ChainID `json:"chain"`
	Error string         `json:"error"`
}

// NewJSONEmitter creates a JSON-lines emitter writing to w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

func (e *JSONEmitter) EmitBatch(
	ctx context.Context,
	chainID domain.ChainID,
	height int64,
	events []domain.Event,
) error {
	line := batchLine{Chain: chainID, Height: height, Events: make([]record, len(events))}
	for i, ev := range events {
		line.Events[i] = newRecord(ev)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(line); err != nil {
		return fmt.Errorf("failed to encode batch at height %d: %w", height, err)
	}
	return nil
}

func (e *JSONEmitter) EmitError(ctx context.Context, chainID domain.ChainID, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Encode(errorLine{Chain: chainID, Error: err.Error()})
}

func (e *JSONEmitter) Close() error { return nil }
