package chain

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/listen/internal/core/domain"
)

// fakeSource sends its batches, then either returns or waits for cancellation.
type fakeSource struct {
	batches   []domain.Batch
	holdOpen  bool
	stuck     chan struct{} // ignores cancellation until closed
	closed    atomic.Bool
	sent      atomic.Int32
	exitedErr error
}

func (f *fakeSource) ChainID() domain.ChainID             { return "test-1" }
func (f *fakeSource) Connect(ctx context.Context) error   { return nil }
func (f *fakeSource) Subscribe(ctx context.Context) error { return nil }
func (f *fakeSource) Queries() []string                   { return []string{"q"} }
func (f *fakeSource) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeSource) Produce(ctx context.Context, sink *Sink) error {
	for _, b := range f.batches {
		if sink.Send(ctx, b) {
			f.sent.Add(1)
		}
	}
	if f.stuck != nil {
		<-f.stuck
		return nil
	}
	if f.holdOpen {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.exitedErr
}

func TestStream_DeliversInOrderThenEnds(t *testing.T) {
	src := &fakeSource{batches: []domain.Batch{
		domain.NewBatch("test-1", 3, nil),
		domain.NewBatch("test-1", 1, nil),
		domain.NewBatch("test-1", 2, nil),
	}}
	s := Start(context.Background(), src, StreamConfig{BufferSize: 1})

	var heights []int64
	for {
		b, ok := s.Next(context.Background())
		if !ok {
			break
		}
		heights = append(heights, b.Height)
	}

	assert.Equal(t, []int64{3, 1, 2}, heights)
	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, src.closed.Load())
}

func TestStream_StopCancelsBlockedProducer(t *testing.T) {
	src := &fakeSource{
		holdOpen: true,
		batches: []domain.Batch{
			domain.NewBatch("test-1", 1, nil),
			domain.NewBatch("test-1", 2, nil),
			domain.NewBatch("test-1", 3, nil),
		},
	}
	s := Start(context.Background(), src, StreamConfig{BufferSize: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case <-s.Done():
	default:
		t.Fatal("producer still running after Stop")
	}
	assert.True(t, src.closed.Load())
	assert.ErrorIs(t, s.Err(), context.Canceled)

	// Stop is idempotent.
	require.NoError(t, s.Stop(ctx))
}

func TestStream_NextObservesCancellation(t *testing.T) {
	src := &fakeSource{holdOpen: true}
	s := Start(context.Background(), src, StreamConfig{})
	defer s.Stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := s.Next(ctx)
	assert.False(t, ok)
}

func TestSink_DropNewest(t *testing.T) {
	ch := make(chan domain.Batch, 1)
	sink := &Sink{chainID: "test-1", out: ch, policy: BackpressureDropNewest}

	assert.True(t, sink.Send(context.Background(), domain.NewBatch("test-1", 1, nil)))
	assert.False(t, sink.Send(context.Background(), domain.NewBatch("test-1", 2, nil)))

	b := <-ch
	assert.Equal(t, int64(1), b.Height)
}

func TestSink_BlockHonoursContext(t *testing.T) {
	ch := make(chan domain.Batch, 1)
	sink := &Sink{chainID: "test-1", out: ch, policy: BackpressureBlock}
	require.True(t, sink.Send(context.Background(), domain.NewBatch("test-1", 1, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, sink.Send(ctx, domain.NewBatch("test-1", 2, nil)))
}

func TestParseBackpressure(t *testing.T) {
	p, err := ParseBackpressure("")
	require.NoError(t, err)
	assert.Equal(t, BackpressureBlock, p)

	p, err = ParseBackpressure("drop_newest")
	require.NoError(t, err)
	assert.Equal(t, BackpressureDropNewest, p)

	_, err = ParseBackpressure("drop_oldest")
	assert.Error(t, err)
}

func TestBackoff_GetDelay(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, 2*time.Second, b.GetDelay(0))
	assert.Equal(t, 16*time.Second, b.GetDelay(3))
	assert.Equal(t, 60*time.Second, b.GetDelay(10))
}

func TestBackoff_Retry(t *testing.T) {
	b := ExponentialBackoff{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 3}

	calls := 0
	err := b.Retry(context.Background(), func(int) error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	errBoom := errors.New("boom")
	err = b.Retry(context.Background(), func(int) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)

	err = ExponentialBackoff{}.Retry(context.Background(), func(int) error { return nil })
	assert.Error(t, err)
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	setup := &SubscriptionSetupError{ChainID: "test-1", Addr: "ws://x", Err: cause}
	assert.ErrorIs(t, setup, cause)
	assert.Contains(t, setup.Error(), "could not initialize event monitor")

	req := &SubscriptionRequestError{ChainID: "test-1", Query: "tm.event = 'Tx'", Err: cause}
	assert.ErrorIs(t, req, cause)
	assert.Contains(t, req.Error(), "could not initialize subscription")
}

func TestStream_StopTimeoutStillClosesSource(t *testing.T) {
	src := &fakeSource{stuck: make(chan struct{})}
	defer close(src.stuck)
	s := Start(context.Background(), src, StreamConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Stop(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, src.closed.Load())

	// The result is remembered.
	assert.Equal(t, err, s.Stop(context.Background()))
}
