// Package dispatch drains an event stream, filters each batch and reports
// the matching events.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/vietddude/listen/internal/core/domain"
	"github.com/vietddude/listen/internal/listening/emitter"
	"github.com/vietddude/listen/internal/listening/filter"
	"github.com/vietddude/listen/internal/listening/metrics"
)

// BatchStream yields batches until the source is exhausted.
type BatchStream interface {
	// Next blocks for the next batch. It returns false when no batch will
	// ever arrive again or ctx is done.
	Next(ctx context.Context) (domain.Batch, bool)
}

// Stats counts what a loop has processed.
type Stats struct {
	Batches  int
	Errors   int
	Reported int
	Events   int
}

// Loop is the consumer of an event stream.
type Loop struct {
	chainID domain.ChainID
	filters filter.Set
	emitter emitter.Emitter
	log     *slog.Logger

	stats Stats
}

// NewLoop creates a loop reporting events that match filters.
func NewLoop(chainID domain.ChainID, filters filter.Set, em emitter.Emitter, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		chainID: chainID,
		filters: filters,
		emitter: em,
		log:     log.With("chain", chainID),
	}
}

// Run processes batches until the stream ends or ctx is cancelled. Batch
// delivery errors and report failures are logged and never end the loop.
func (l *Loop) Run(ctx context.Context, stream BatchStream) error {
	for {
		batch, ok := stream.Next(ctx)
		if !ok {
			l.log.Info("Event stream ended",
				"batches", l.stats.Batches,
				"errors", l.stats.Errors,
				"reported", l.stats.Reported)
			return nil
		}
		l.process(ctx, batch)
	}
}

// Stats returns the counters accumulated so far. Not safe to call while Run
// is in progress.
func (l *Loop) Stats() Stats {
	return l.stats
}

func (l *Loop) process(ctx context.Context, batch domain.Batch) {
	chain := string(l.chainID)
	l.stats.Batches++

	if batch.Failed() {
		l.stats.Errors++
		metrics.BatchesReceived.WithLabelValues(chain, metrics.ResultError).Inc()
		l.log.Warn("Event batch failed", "error", batch.Err)
		if err := l.emitter.EmitError(ctx, l.chainID, batch.Err); err != nil {
			l.emitFailed(err)
		}
		return
	}

	metrics.BatchesReceived.WithLabelValues(chain, metrics.ResultOK).Inc()
	metrics.LatestHeight.WithLabelValues(chain).Set(float64(batch.Height))

	matched := l.filters.Apply(batch.Events)
	if len(matched) == 0 {
		l.log.Debug("No matching events", "height", batch.Height, "events", len(batch.Events))
		return
	}

	if err := l.emitter.EmitBatch(ctx, l.chainID, batch.Height, matched); err != nil {
		l.emitFailed(err)
		return
	}

	l.stats.Reported++
	l.stats.Events += len(matched)
	for _, e := range matched {
		metrics.EventsMatched.WithLabelValues(chain, string(e.Kind())).Inc()
	}
	l.log.Debug("Reported event batch",
		"height", batch.Height,
		"matched", len(matched),
		"total", len(batch.Events))
}

func (l *Loop) emitFailed(err error) {
	metrics.EmitErrors.WithLabelValues(string(l.chainID)).Inc()
	l.log.Error("Failed to report events", "error", err)
}
