package domain

import "time"

// EventKind names the variant of an Event.
type EventKind string

const (
	EventKindNewBlock   EventKind = "NewBlock"
	EventKindTx         EventKind = "Tx"
	EventKindChainError EventKind = "ChainError"
)

// Event is a single occurrence reported by the chain.
//
// The set of implementations is closed: NewBlockEvent, TxEvent and
// ChainErrorEvent. Code switching on an Event should handle all three.
type Event interface {
	Kind() EventKind
	EventHeight() int64

	isEvent()
}

// NewBlockEvent is emitted when the node commits a new block.
type NewBlockEvent struct {
	Height   int64     `json:"height"`
	Hash     string    `json:"hash"`
	Time     time.Time `json:"time"`
	NumTxs   int       `json:"num_txs"`
	Proposer string    `json:"proposer"`
}

func (NewBlockEvent) Kind() EventKind      { return EventKindNewBlock }
func (e NewBlockEvent) EventHeight() int64 { return e.Height }
func (NewBlockEvent) isEvent()             {}

// ABCIAttribute is a key/value pair attached to an ABCIEvent.
type ABCIAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ABCIEvent is an application event emitted while executing a transaction.
type ABCIEvent struct {
	Type       string          `json:"type"`
	Attributes []ABCIAttribute `json:"attributes,omitempty"`
}

// TxEvent carries the execution result of a transaction.
type TxEvent struct {
	Height    int64       `json:"height"`
	Index     uint32      `json:"index"`
	Hash      string      `json:"hash"`
	Code      uint32      `json:"code"`
	Codespace string      `json:"codespace,omitempty"`
	Log       string      `json:"log,omitempty"`
	GasWanted int64       `json:"gas_wanted"`
	GasUsed   int64       `json:"gas_used"`
	Events    []ABCIEvent `json:"events,omitempty"`
}

func (TxEvent) Kind() EventKind      { return EventKindTx }
func (e TxEvent) EventHeight() int64 { return e.Height }
func (TxEvent) isEvent()             {}

// Succeeded reports whether the transaction executed with code 0.
func (e TxEvent) Succeeded() bool { return e.Code == 0 }

// ChainErrorEvent reports a chain-level error observed on the feed.
type ChainErrorEvent struct {
	Height int64  `json:"height"`
	Reason string `json:"reason"`
}

func (ChainErrorEvent) Kind() EventKind      { return EventKindChainError }
func (e ChainErrorEvent) EventHeight() int64 { return e.Height }
func (ChainErrorEvent) isEvent()             {}
