package cometbft

import (
	"fmt"

	ctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/vietddude/listen/internal/core/domain"
)

// convertEvent maps a node event to a domain event. Payloads that are not a
// new block or a transaction result become ChainErrorEvents at fallbackHeight.
func convertEvent(ev ctypes.ResultEvent, fallbackHeight int64) domain.Event {
	switch data := ev.Data.(type) {
	case cmttypes.EventDataNewBlock:
		if data.Block == nil {
			return domain.ChainErrorEvent{
				Height: fallbackHeight,
				Reason: "new block event without block",
			}
		}
		return convertNewBlock(data)
	case cmttypes.EventDataTx:
		return convertTx(data)
	default:
		return domain.ChainErrorEvent{
			Height: fallbackHeight,
			Reason: fmt.Sprintf("unexpected event data %T for query %q", ev.Data, ev.Query),
		}
	}
}

func convertNewBlock(data cmttypes.EventDataNewBlock) domain.NewBlockEvent {
	header := data.Block.Header
	return domain.NewBlockEvent{
		Height:   header.Height,
		Hash:     data.BlockID.Hash.String(),
		Time:     header.Time.UTC(),
		NumTxs:   len(data.Block.Data.Txs),
		Proposer: header.ProposerAddress.String(),
	}
}

func convertTx(data cmttypes.EventDataTx) domain.TxEvent {
	res := data.Result

	events := make([]domain.ABCIEvent, 0, len(res.Events))
	for _, e := range res.Events {
		attrs := make([]domain.ABCIAttribute, 0, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs = append(attrs, domain.ABCIAttribute{Key: a.Key, Value: a.Value})
		}
		events = append(events, domain.ABCIEvent{Type: e.Type, Attributes: attrs})
	}

	return domain.TxEvent{
		Height:    data.Height,
		Index:     data.Index,
		Hash:      fmt.Sprintf("%X", cmttypes.Tx(data.Tx).Hash()),
		Code:      res.Code,
		Codespace: res.Codespace,
		Log:       res.Log,
		GasWanted: res.GasWanted,
		GasUsed:   res.GasUsed,
		Events:    events,
	}
}
