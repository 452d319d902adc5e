// Package metrics defines the Prometheus instrumentation for the ledger
// and the transport adapter. All collectors are registered at init via
// promauto and shared process-wide.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger metrics
var (
	// ObservationsTotal counts handled observations by source and outcome
	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_observations_total",
			Help: "Observations handled by source (reaction/poll) and outcome",
		},
		[]string{"source", "outcome"},
	)

	// FactsAppliedTotal counts ledger facts written by action kind
	FactsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_facts_applied_total",
			Help: "Ledger facts applied by action kind",
		},
		[]string{"kind"},
	)

	// DuplicateFactsTotal counts redeliveries absorbed by the fact unique tuple
	DuplicateFactsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_duplicate_facts_total",
			Help: "Duplicate deliveries suppressed by the fact uniqueness constraint",
		},
	)

	// GateRefusalsTotal counts awards blocked by an existing once-gate claim
	GateRefusalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_once_gate_refusals_total",
			Help: "First-action awards refused because the scope was already claimed",
		},
	)
)

// Transport metrics
var (
	// BotAPICallsTotal counts Telegram Bot API calls by method and status
	BotAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_bot_api_calls_total",
			Help: "Telegram Bot API calls by method and status",
		},
		[]string{"method", "status"},
	)

	// PollCyclesTotal counts completed getUpdates long-poll cycles
	PollCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_poll_cycles_total",
			Help: "Completed getUpdates long-poll cycles",
		},
	)
)
