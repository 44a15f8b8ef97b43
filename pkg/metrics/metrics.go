// Package metrics defines the engine's Prometheus collectors. They are
// registered by the metrics server at startup and incremented at the
// relevant points in the domain packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RulesFired counts gamification rule firings by rule type.
	RulesFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_engine_rules_fired_total",
			Help: "Total number of gamification rule firings",
		},
		[]string{"rule_type"},
	)

	// PointsAwarded accumulates points granted by rule type.
	PointsAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_engine_points_awarded_total",
			Help: "Total points awarded through gamification rules",
		},
		[]string{"rule_type"},
	)

	// StateTransitions counts lifecycle transitions by target state.
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_engine_state_transitions_total",
			Help: "Total lifecycle state transitions by destination state",
		},
		[]string{"to_state"},
	)

	// ExperimentAssignments counts variant assignments by lifecycle state.
	ExperimentAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_engine_experiment_assignments_total",
			Help: "Total experiment variant assignments",
		},
		[]string{"lifecycle_state"},
	)

	// InterventionsDispatched counts intervention deliveries by channel and
	// final delivery status.
	InterventionsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_engine_interventions_dispatched_total",
			Help: "Total intervention dispatches by channel and status",
		},
		[]string{"channel", "status"},
	)

	// ConversionsRecorded counts recorded conversion events.
	ConversionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_engine_conversions_recorded_total",
			Help: "Total conversion events recorded",
		},
		[]string{"event_type"},
	)
)

// Collectors returns every custom collector for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RulesFired,
		PointsAwarded,
		StateTransitions,
		ExperimentAssignments,
		InterventionsDispatched,
		ConversionsRecorded,
	}
}
