package chain

import (
	"context"
	"fmt"

	"github.com/vietddude/listen/internal/core/domain"
)

// EventSource is the boundary between the listener and a node's event feed.
// Connect and Subscribe run once before any batch is produced; Produce runs
// on its own goroutine (see Start) until its context is cancelled or the
// feed can no longer be recovered.
type EventSource interface {
	// ChainID returns the chain the source is attached to
	ChainID() domain.ChainID

	// Connect establishes the connection to the node
	Connect(ctx context.Context) error

	// Subscribe registers the event subscriptions
	Subscribe(ctx context.Context) error

	// Queries describes the active subscriptions
	Queries() []string

	// Produce sends batches to sink. It must not retain sink after returning.
	Produce(ctx context.Context, sink *Sink) error

	// Close releases the subscription and the connection
	Close() error
}

// SubscriptionSetupError means the initial connection could not be made.
type SubscriptionSetupError struct {
	ChainID domain.ChainID
	Addr    string
	Err     error
}

func (e *SubscriptionSetupError) Error() string {
	return fmt.Sprintf("could not initialize event monitor for %s at %s: %v", e.ChainID, e.Addr, e.Err)
}

func (e *SubscriptionSetupError) Unwrap() error { return e.Err }

// SubscriptionRequestError means the connection succeeded but the
// subscriptions could not be registered.
type SubscriptionRequestError struct {
	ChainID domain.ChainID
	Query   string
	Err     error
}

func (e *SubscriptionRequestError) Error() string {
	return fmt.Sprintf("could not initialize subscription %q for %s: %v", e.Query, e.ChainID, e.Err)
}

func (e *SubscriptionRequestError) Unwrap() error { return e.Err }
