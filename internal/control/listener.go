// Package control wires an event source, the dispatch loop and the health
// endpoints into one listening session.
package control

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/listen/internal/core/domain"
	"github.com/vietddude/listen/internal/infra/chain"
	"github.com/vietddude/listen/internal/listening/dispatch"
	"github.com/vietddude/listen/internal/listening/emitter"
	"github.com/vietddude/listen/internal/listening/filter"
	"github.com/vietddude/listen/internal/listening/health"
)

const stopTimeout = 10 * time.Second

// Config holds the settings of a listening session.
type Config struct {
	ChainID  domain.ChainID
	Filters  filter.Set
	Stream   chain.StreamConfig
	Port     int
	GRPCPort int
	Session  string // generated when empty
}

// Listener runs a single listening session.
type Listener struct {
	cfg     Config
	src     chain.EventSource
	emitter emitter.Emitter
	loop    *dispatch.Loop
	log     *slog.Logger
}

// NewListener creates a listener. The listener owns src and em and releases
// both when Run returns.
func NewListener(cfg Config, src chain.EventSource, em emitter.Emitter, log *slog.Logger) *Listener {
	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", cfg.Session)

	return &Listener{
		cfg:     cfg,
		src:     src,
		emitter: em,
		loop:    dispatch.NewLoop(cfg.ChainID, cfg.Filters, em, log),
		log:     log,
	}
}

// Session returns the session ID.
func (l *Listener) Session() string {
	return l.cfg.Session
}

// Stats returns the dispatch counters. Call after Run has returned.
func (l *Listener) Stats() dispatch.Stats {
	return l.loop.Stats()
}

// Run connects, subscribes and reports matching events until the event
// stream ends or ctx is cancelled. Connection and subscription failures are
// returned before any event is processed.
func (l *Listener) Run(ctx context.Context) error {
	defer func() {
		if err := l.emitter.Close(); err != nil {
			l.log.Warn("Failed to flush output", "error", err)
		}
	}()

	if err := l.src.Connect(ctx); err != nil {
		return err
	}
	if err := l.src.Subscribe(ctx); err != nil {
		if cerr := l.src.Close(); cerr != nil {
			l.log.Warn("Failed to close event source", "error", cerr)
		}
		return err
	}

	l.log.Info("Listening for queries",
		"chain", l.cfg.ChainID,
		"queries", l.src.Queries(),
		"filters", l.cfg.Filters.String())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	hs := health.NewServer(health.NewState(l.cfg.ChainID, l.cfg.Session), l.cfg.Port, l.cfg.GRPCPort, l.log)
	if hs.Enabled() {
		g.Go(func() error { return hs.Run(gctx) })
	}

	stream := chain.Start(gctx, l.src, l.cfg.Stream)
	hs.SetServing(true)

	g.Go(func() error {
		// Servers follow the loop.
		defer cancel()

		err := l.loop.Run(gctx, stream)
		hs.SetServing(false)
		l.stop(stream)
		return err
	})

	return g.Wait()
}

func (l *Listener) stop(stream *chain.Stream) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := stream.Stop(ctx); err != nil {
		l.log.Warn("Event source did not stop cleanly", "error", err)
		return
	}
	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		l.log.Error("Event source ended", "error", err)
	}
}
