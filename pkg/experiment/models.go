package experiment

import (
	"time"

	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

// Status is the experiment lifecycle status.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Variant is one arm of an experiment: a message, the surface it renders
// on, and its share of traffic. Allocations across an experiment's variants
// are expected to sum to 100.
type Variant struct {
	VariantID                string  `json:"variant_id"`
	Message                  string  `json:"message"`
	Surface                  string  `json:"surface"`
	TrafficAllocationPercent float64 `json:"traffic_allocation_percent"`
}

// TargetCriteria optionally narrows which users an experiment may enroll.
// Nil bounds are unconstrained.
type TargetCriteria struct {
	MinDaysInState *int `json:"min_days_in_state,omitempty"`
	MaxDaysInState *int `json:"max_days_in_state,omitempty"`
	MinChurnRisk   *int `json:"min_churn_risk,omitempty"`
	MaxChurnRisk   *int `json:"max_churn_risk,omitempty"`
}

// Matches reports whether the user's snapshot falls inside every configured
// bound.
func (c *TargetCriteria) Matches(daysInState, churnRisk int) bool {
	if c == nil {
		return true
	}
	if c.MinDaysInState != nil && daysInState < *c.MinDaysInState {
		return false
	}
	if c.MaxDaysInState != nil && daysInState > *c.MaxDaysInState {
		return false
	}
	if c.MinChurnRisk != nil && churnRisk < *c.MinChurnRisk {
		return false
	}
	if c.MaxChurnRisk != nil && churnRisk > *c.MaxChurnRisk {
		return false
	}
	return true
}

// Experiment is an A/B test targeting users in one lifecycle state.
type Experiment struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	LifecycleState lifecycle.State `json:"lifecycle_state"`
	Status         Status          `json:"status"`
	Variants       []Variant       `json:"variants"`
	TargetCriteria *TargetCriteria `json:"target_criteria,omitempty"`
	InterventionID string          `json:"intervention_id,omitempty"`
	ResultsSummary *ResultsSummary `json:"results_summary,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// UserAction is the user's reaction to an experiment's intervention.
type UserAction string

const (
	ActionNone      UserAction = "none"
	ActionClicked   UserAction = "clicked"
	ActionDismissed UserAction = "dismissed"
	ActionCompleted UserAction = "completed"
)

// ConversionEvent is one attributed downstream action.
type ConversionEvent struct {
	EventType  string    `json:"event_type"`
	EventValue float64   `json:"event_value"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Assignment durably binds one user to one variant of one experiment.
// Exactly one assignment exists per (experiment, user); a racing duplicate
// is inert and every reader resolves to the earliest-created record.
type Assignment struct {
	ID                   string            `json:"id"`
	ExperimentID         string            `json:"experiment_id"`
	UserID               string            `json:"user_id"`
	VariantID            string            `json:"variant_id"`
	AssignedAt           time.Time         `json:"assigned_at"`
	LifecycleStateBefore lifecycle.State   `json:"lifecycle_state_before"`
	ChurnRiskBefore      int               `json:"churn_risk_before"`
	InterventionShown    bool              `json:"intervention_shown"`
	ShownAt              time.Time         `json:"shown_at"`
	UserAction           UserAction        `json:"user_action"`
	ActionAt             time.Time         `json:"action_at"`
	ConversionEvents     []ConversionEvent `json:"conversion_events,omitempty"`
}

// VariantResult is the per-variant slice of a completed experiment.
type VariantResult struct {
	VariantID      string  `json:"variant_id"`
	Assigned       int     `json:"assigned"`
	Shown          int     `json:"shown"`
	Clicked        int     `json:"clicked"`
	Dismissed      int     `json:"dismissed"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// ResultsSummary is the descriptive rollup written when an experiment
// completes. Confidence is a sample-size heuristic, not a significance test.
type ResultsSummary struct {
	CompletedAt        time.Time       `json:"completed_at"`
	TotalAssigned      int             `json:"total_assigned"`
	Variants           []VariantResult `json:"variants"`
	WinnerVariantID    string          `json:"winner_variant_id,omitempty"`
	ImprovementPercent float64         `json:"improvement_percent"`
	Confidence         float64         `json:"confidence"`
}
