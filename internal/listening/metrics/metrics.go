package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// BatchesReceived tracks batches taken off the stream, by outcome
	BatchesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listen_batches_received_total",
			Help: "Total number of event batches received from the event source",
		},
		[]string{"chain", "result"},
	)

	// BatchesDropped tracks batches discarded by the drop_newest policy
	BatchesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listen_batches_dropped_total",
			Help: "Total number of event batches dropped because the stream was full",
		},
		[]string{"chain"},
	)

	// EventsMatched tracks reported events per kind
	EventsMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listen_events_matched_total",
			Help: "Total number of events that passed the filter set",
		},
		[]string{"chain", "kind"},
	)

	// EmitErrors tracks failures writing reports
	EmitErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listen_emit_errors_total",
			Help: "Total number of failures writing event reports",
		},
		[]string{"chain"},
	)

	// LatestHeight tracks the height of the last successful batch
	LatestHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "listen_latest_height",
			Help: "Block height of the most recent event batch",
		},
		[]string{"chain"},
	)
)
