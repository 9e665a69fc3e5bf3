package cometbft

import (
	"time"

	"github.com/vietddude/listen/internal/core/domain"
)

// batcher groups consecutive events of the same height.
type batcher struct {
	chainID domain.ChainID
	height  int64
	events  []domain.Event
	last    time.Time
}

func newBatcher(chainID domain.ChainID) *batcher {
	return &batcher{chainID: chainID}
}

// add appends e to the pending batch. If e starts a new height, the previous
// batch is returned with ok set.
func (b *batcher) add(e domain.Event, now time.Time) (flushed domain.Batch, ok bool) {
	h := e.EventHeight()
	if len(b.events) > 0 && h != b.height {
		flushed, ok = b.take(), true
	}
	b.height = h
	b.events = append(b.events, e)
	b.last = now
	return flushed, ok
}

// stale reports whether the pending batch has been idle for at least d.
func (b *batcher) stale(now time.Time, d time.Duration) bool {
	return len(b.events) > 0 && now.Sub(b.last) >= d
}

func (b *batcher) pending() bool {
	return len(b.events) > 0
}

// take returns the pending batch and resets the batcher.
func (b *batcher) take() domain.Batch {
	batch := domain.NewBatch(b.chainID, b.height, b.events)
	b.events = nil
	return batch
}
