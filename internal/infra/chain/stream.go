package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/listen/internal/core/domain"
	"github.com/vietddude/listen/internal/listening/metrics"
)

// BackpressurePolicy decides what the producer does when the stream is full.
type BackpressurePolicy string

const (
	// BackpressureBlock makes the producer wait for the consumer.
	BackpressureBlock BackpressurePolicy = "block"
	// BackpressureDropNewest discards the batch that did not fit.
	BackpressureDropNewest BackpressurePolicy = "drop_newest"
)

// DefaultBufferSize is the stream capacity used when none is configured.
const DefaultBufferSize = 64

// ParseBackpressure validates a policy name. Empty selects BackpressureBlock.
func ParseBackpressure(s string) (BackpressurePolicy, error) {
	switch BackpressurePolicy(s) {
	case "", BackpressureBlock:
		return BackpressureBlock, nil
	case BackpressureDropNewest:
		return BackpressureDropNewest, nil
	default:
		return "", fmt.Errorf("unknown backpressure policy %q (want block or drop_newest)", s)
	}
}

// StreamConfig configures the channel between producer and consumer.
type StreamConfig struct {
	BufferSize   int
	Backpressure BackpressurePolicy
}

// Sink is the producer side of a stream.
type Sink struct {
	chainID domain.ChainID
	out     chan<- domain.Batch
	policy  BackpressurePolicy
}

// Send enqueues a batch according to the backpressure policy. It returns
// false if the batch was not enqueued.
func (s *Sink) Send(ctx context.Context, b domain.Batch) bool {
	if s.policy == BackpressureDropNewest {
		select {
		case s.out <- b:
			return true
		case <-ctx.Done():
			return false
		default:
			metrics.BatchesDropped.WithLabelValues(string(s.chainID)).Inc()
			slog.Warn("Stream full, dropping batch", "chain", s.chainID, "height", b.Height)
			return false
		}
	}

	select {
	case s.out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stream is the consumer side of a running event source.
type Stream struct {
	batches <-chan domain.Batch
	src     EventSource
	cancel  context.CancelFunc
	done    chan struct{}

	stopOnce sync.Once
	err      error
	stopErr  error
}

// Start runs src.Produce on a new goroutine and returns the stream it feeds.
// The stream is closed when Produce returns. Call Stop to release the source.
func Start(ctx context.Context, src EventSource, cfg StreamConfig) *Stream {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	policy := cfg.Backpressure
	if policy == "" {
		policy = BackpressureBlock
	}

	ch := make(chan domain.Batch, size)
	pctx, cancel := context.WithCancel(ctx)

	s := &Stream{
		batches: ch,
		src:     src,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	sink := &Sink{chainID: src.ChainID(), out: ch, policy: policy}
	go func() {
		defer close(s.done)
		defer close(ch)
		s.err = src.Produce(pctx, sink)
	}()

	return s
}

// Next blocks until a batch is available. It returns false once the source
// will never produce again or ctx is done.
func (s *Stream) Next(ctx context.Context) (domain.Batch, bool) {
	select {
	case b, ok := <-s.batches:
		return b, ok
	case <-ctx.Done():
		return domain.Batch{}, false
	}
}

// Done is closed when the producer has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Stop tells the producer to stop, waits for it to exit and closes the
// source. The source is closed even when ctx expires first. It is safe to
// call more than once.
func (s *Stream) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.cancel()

		var waitErr error
		select {
		case <-s.done:
		case <-ctx.Done():
			waitErr = fmt.Errorf("producer did not stop: %w", ctx.Err())
		}

		var closeErr error
		if err := s.src.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close event source: %w", err)
		}
		s.stopErr = errors.Join(waitErr, closeErr)
	})
	return s.stopErr
}

// Err returns the error Produce exited with. Only valid after Done is closed.
func (s *Stream) Err() error {
	return s.err
}
