package control

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/listen/internal/core/domain"
	"github.com/vietddude/listen/internal/infra/chain"
	"github.com/vietddude/listen/internal/listening/emitter"
	"github.com/vietddude/listen/internal/listening/filter"
)

type fakeSource struct {
	mu sync.Mutex

	connectErr   error
	subscribeErr error
	batches      []domain.Batch
	hold         bool // keep producing until cancelled

	produced bool
	closed   int
}

func (f *fakeSource) ChainID() domain.ChainID { return "test-1" }
func (f *fakeSource) Queries() []string       { return []string{"tm.event = 'Tx'"} }

func (f *fakeSource) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeSource) Subscribe(ctx context.Context) error { return f.subscribeErr }

func (f *fakeSource) Produce(ctx context.Context, sink *chain.Sink) error {
	f.mu.Lock()
	f.produced = true
	f.mu.Unlock()

	for _, b := range f.batches {
		if !sink.Send(ctx, b) {
			return ctx.Err()
		}
	}
	if f.hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func newTestListener(src *fakeSource, out *bytes.Buffer, filters ...filter.Filter) *Listener {
	return NewListener(Config{
		ChainID: "test-1",
		Filters: filter.NewSet(filters...),
		Session: "session-1",
	}, src, emitter.NewTextEmitter(out), nil)
}

func TestListener_ReportsMatchingBatches(t *testing.T) {
	src := &fakeSource{batches: []domain.Batch{
		domain.NewBatch("test-1", 1, []domain.Event{domain.NewBlockEvent{Height: 1}}),
		domain.NewBatch("test-1", 2, []domain.Event{domain.TxEvent{Height: 2, Hash: "AA"}}),
		domain.NewErrorBatch("test-1", errors.New("lost connection")),
	}}
	var out bytes.Buffer

	l := newTestListener(src, &out, filter.Tx)
	require.NoError(t, l.Run(context.Background()))

	text := out.String()
	assert.NotContains(t, text, "height 1")
	assert.Contains(t, text, "- event batch at height 2")
	assert.Contains(t, text, "- error: ")
	assert.Contains(t, text, "lost connection")
	assert.Equal(t, 1, src.closed)

	stats := l.Stats()
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 1, stats.Reported)
	assert.Equal(t, 1, stats.Errors)
}

func TestListener_SetupErrorSkipsLoop(t *testing.T) {
	setupErr := &chain.SubscriptionSetupError{ChainID: "test-1", Addr: "ws://x", Err: errors.New("refused")}
	src := &fakeSource{connectErr: setupErr}

	err := newTestListener(src, &bytes.Buffer{}).Run(context.Background())

	var target *chain.SubscriptionSetupError
	require.ErrorAs(t, err, &target)
	assert.False(t, src.produced)
}

func TestListener_SubscribeErrorClosesSource(t *testing.T) {
	src := &fakeSource{subscribeErr: &chain.SubscriptionRequestError{
		ChainID: "test-1",
		Query:   "tm.event = 'Tx'",
		Err:     errors.New("too many subscriptions"),
	}}

	err := newTestListener(src, &bytes.Buffer{}).Run(context.Background())

	var target *chain.SubscriptionRequestError
	require.ErrorAs(t, err, &target)
	assert.False(t, src.produced)
	assert.Equal(t, 1, src.closed)
}

func TestListener_CancelStopsProducer(t *testing.T) {
	src := &fakeSource{hold: true}
	l := newTestListener(src, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.produced
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not return after cancellation")
	}
	assert.Equal(t, 1, src.closed)
}

func TestListener_GeneratesSession(t *testing.T) {
	l := NewListener(Config{ChainID: "test-1"}, &fakeSource{}, emitter.NewTextEmitter(&bytes.Buffer{}), nil)
	assert.Len(t, l.Session(), 36)
	assert.Equal(t, 4, strings.Count(l.Session(), "-"))
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestListener_StreamEndWithHealthServers(t *testing.T) {
	for i := 0; i < 3; i++ {
		src := &fakeSource{batches: []domain.Batch{
			domain.NewBatch("test-1", 4, []domain.Event{domain.TxEvent{Height: 4, Hash: "CC"}}),
		}}
		var out bytes.Buffer

		l := NewListener(Config{
			ChainID:  "test-1",
			Filters:  filter.NewSet(),
			Port:     freePort(t),
			GRPCPort: freePort(t),
		}, src, emitter.NewTextEmitter(&out), nil)

		require.NoError(t, l.Run(context.Background()), "run %d", i)
		assert.Contains(t, out.String(), "- event batch at height 4")
		assert.Equal(t, 1, src.closed)
	}
}
