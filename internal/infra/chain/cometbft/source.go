// Package cometbft implements an event source over the CometBFT RPC
// websocket.
package cometbft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/vietddude/listen/internal/core/domain"
	"github.com/vietddude/listen/internal/infra/chain"
)

const (
	defaultFlushInterval = 500 * time.Millisecond
	defaultCapacity      = 100
)

var (
	newBlockQuery = cmttypes.EventQueryNewBlock.String()
	txQuery       = cmttypes.EventQueryTx.String()

	errSubscriptionClosed = errors.New("subscription closed by node")
)

// rpcClient is the subset of the CometBFT HTTP/websocket client used here.
type rpcClient interface {
	Start() error
	Stop() error
	IsRunning() bool
	Status(ctx context.Context) (*ctypes.ResultStatus, error)
	Subscribe(
		ctx context.Context,
		subscriber, query string,
		outCapacity ...int,
	) (<-chan ctypes.ResultEvent, error)
	UnsubscribeAll(ctx context.Context, subscriber string) error
}

// Config holds settings for a CometBFT event source.
type Config struct {
	ChainID       domain.ChainID
	WebsocketAddr string
	Subscriber    string
	FlushInterval time.Duration
	Capacity      int
	Backoff       chain.ExponentialBackoff
}

// Source streams NewBlock and Tx events from a CometBFT node.
type Source struct {
	cfg    Config
	remote string
	client rpcClient
	log    *slog.Logger

	blocks <-chan ctypes.ResultEvent
	txs    <-chan ctypes.ResultEvent
}

var _ chain.EventSource = (*Source)(nil)

// NewSource creates a source for the node at cfg.WebsocketAddr. No
// connection is made until Connect.
func NewSource(cfg Config, log *slog.Logger) (*Source, error) {
	remote, err := remoteAddr(cfg.WebsocketAddr)
	if err != nil {
		return nil, &chain.SubscriptionSetupError{ChainID: cfg.ChainID, Addr: cfg.WebsocketAddr, Err: err}
	}

	client, err := rpchttp.New(remote, "/websocket")
	if err != nil {
		return nil, &chain.SubscriptionSetupError{
			ChainID: cfg.ChainID,
			Addr:    cfg.WebsocketAddr,
			Err:     fmt.Errorf("failed to create RPC client: %w", err),
		}
	}

	return newSource(cfg, remote, client, log), nil
}

func newSource(cfg Config, remote string, client rpcClient, log *slog.Logger) *Source {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.Subscriber == "" {
		cfg.Subscriber = "listen"
	}
	if cfg.Backoff == (chain.ExponentialBackoff{}) {
		cfg.Backoff = chain.DefaultBackoff()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		cfg:    cfg,
		remote: remote,
		client: client,
		log:    log.With("chain", cfg.ChainID),
	}
}

// remoteAddr converts a websocket address into the RPC base address the
// CometBFT client expects: ws:// becomes tcp://, wss:// becomes https:// and
// any /websocket suffix is removed.
func remoteAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("websocket address is empty")
	}

	switch {
	case strings.HasPrefix(addr, "ws://"):
		addr = "tcp://" + strings.TrimPrefix(addr, "ws://")
	case strings.HasPrefix(addr, "wss://"):
		addr = "https://" + strings.TrimPrefix(addr, "wss://")
	case strings.Contains(addr, "://"):
	default:
		addr = "tcp://" + addr
	}

	return strings.TrimSuffix(strings.TrimSuffix(addr, "/"), "/websocket"), nil
}

func (s *Source) ChainID() domain.ChainID { return s.cfg.ChainID }

func (s *Source) Queries() []string {
	return []string{newBlockQuery, txQuery}
}

// Connect starts the websocket client and checks that the node serves the
// configured chain.
func (s *Source) Connect(ctx context.Context) error {
	setupErr := func(err error) error {
		return &chain.SubscriptionSetupError{ChainID: s.cfg.ChainID, Addr: s.cfg.WebsocketAddr, Err: err}
	}

	s.log.Debug("Starting RPC client", "remote", s.remote)
	if err := s.client.Start(); err != nil {
		return setupErr(fmt.Errorf("failed to start RPC client: %w", err))
	}

	status, err := s.client.Status(ctx)
	if err != nil {
		_ = s.client.Stop()
		return setupErr(fmt.Errorf("failed to get node status: %w", err))
	}

	network := status.NodeInfo.Network
	if network != string(s.cfg.ChainID) {
		_ = s.client.Stop()
		return setupErr(fmt.Errorf("node serves chain %q, expected %q", network, s.cfg.ChainID))
	}

	s.log.Info("Connected to node",
		"remote", s.remote,
		"latest_block", status.SyncInfo.LatestBlockHeight)
	return nil
}

// Subscribe registers the NewBlock and Tx subscriptions.
func (s *Source) Subscribe(ctx context.Context) error {
	blocks, err := s.client.Subscribe(ctx, s.cfg.Subscriber, newBlockQuery, s.cfg.Capacity)
	if err != nil {
		return &chain.SubscriptionRequestError{ChainID: s.cfg.ChainID, Query: newBlockQuery, Err: err}
	}

	txs, err := s.client.Subscribe(ctx, s.cfg.Subscriber, txQuery, s.cfg.Capacity)
	if err != nil {
		_ = s.client.UnsubscribeAll(ctx, s.cfg.Subscriber)
		return &chain.SubscriptionRequestError{ChainID: s.cfg.ChainID, Query: txQuery, Err: err}
	}

	s.blocks, s.txs = blocks, txs
	return nil
}

// Produce converts node events into batches until ctx is cancelled or the
// subscriptions cannot be restored.
func (s *Source) Produce(ctx context.Context, sink *chain.Sink) error {
	b := newBatcher(s.cfg.ChainID)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-s.blocks:
			if !ok {
				if err := s.resubscribe(ctx, sink, b); err != nil {
					return err
				}
				continue
			}
			s.handle(ctx, sink, b, ev)

		case ev, ok := <-s.txs:
			if !ok {
				if err := s.resubscribe(ctx, sink, b); err != nil {
					return err
				}
				continue
			}
			s.handle(ctx, sink, b, ev)

		case now := <-ticker.C:
			if b.stale(now, s.cfg.FlushInterval) {
				sink.Send(ctx, b.take())
			}
		}
	}
}

func (s *Source) handle(ctx context.Context, sink *chain.Sink, b *batcher, ev ctypes.ResultEvent) {
	event := convertEvent(ev, b.height)
	if flushed, ok := b.add(event, time.Now()); ok {
		sink.Send(ctx, flushed)
	}
}

// resubscribe reports the lost subscription as a delivery error and tries to
// restore both subscriptions with backoff.
func (s *Source) resubscribe(ctx context.Context, sink *chain.Sink, b *batcher) error {
	if b.pending() {
		sink.Send(ctx, b.take())
	}
	sink.Send(ctx, domain.NewErrorBatch(s.cfg.ChainID, errSubscriptionClosed))
	s.blocks, s.txs = nil, nil

	err := s.cfg.Backoff.Retry(ctx, func(attempt int) error {
		s.log.Warn("Resubscribing to node events", "attempt", attempt+1)
		_ = s.client.UnsubscribeAll(ctx, s.cfg.Subscriber)
		return s.Subscribe(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to restore subscriptions: %w", err)
	}

	s.log.Info("Subscriptions restored")
	return nil
}

// Close removes the subscriptions and stops the client.
func (s *Source) Close() error {
	if !s.client.IsRunning() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.UnsubscribeAll(ctx, s.cfg.Subscriber); err != nil {
		s.log.Warn("Failed to unsubscribe", "error", err)
	}
	return s.client.Stop()
}
