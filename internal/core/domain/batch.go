package domain

import "fmt"

// Batch is one delivery unit from an event source: the events observed at a
// block height, or a delivery error in their place.
type Batch struct {
	ChainID ChainID
	Height  int64
	Events  []Event
	Err     error
}

// NewBatch returns a successful batch.
func NewBatch(chainID ChainID, height int64, events []Event) Batch {
	return Batch{ChainID: chainID, Height: height, Events: events}
}

// NewErrorBatch returns a batch carrying a delivery error.
func NewErrorBatch(chainID ChainID, err error) Batch {
	return Batch{ChainID: chainID, Err: &BatchDeliveryError{ChainID: chainID, Err: err}}
}

// Failed reports whether the batch carries a delivery error.
func (b Batch) Failed() bool { return b.Err != nil }

// BatchDeliveryError describes a failure to deliver a batch. It is never
// fatal to the consumer.
type BatchDeliveryError struct {
	ChainID ChainID
	Err     error
}

func (e *BatchDeliveryError) Error() string {
	return fmt.Sprintf("[%s] event delivery failed: %v", e.ChainID, e.Err)
}

func (e *BatchDeliveryError) Unwrap() error { return e.Err }
