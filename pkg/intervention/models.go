package intervention

import (
	"time"

	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

// Channel is a concrete delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// Intervention is one playbook entry: a nudge definition with a target
// surface and a re-show cooldown.
type Intervention struct {
	ID               string `json:"id" yaml:"id" validate:"required"`
	Type             string `json:"type" yaml:"type" validate:"required"`
	Message          string `json:"message" yaml:"message" validate:"required"`
	ContentType      string `json:"content_type" yaml:"content_type"`
	Surface          string `json:"surface" yaml:"surface" validate:"required"`
	MaxFrequencyDays int    `json:"max_frequency_days" yaml:"max_frequency_days" validate:"gte=0"`
}

// PlaybookEntry is the intervention catalog for one lifecycle state.
type PlaybookEntry struct {
	Name          string         `json:"name" yaml:"name" validate:"required"`
	Tone          string         `json:"tone" yaml:"tone"`
	Interventions []Intervention `json:"interventions" yaml:"interventions" validate:"required,dive"`
}

// Playbook is the static, state-indexed intervention catalog used absent an
// active experiment. Loaded once at startup and never mutated.
type Playbook map[lifecycle.State]PlaybookEntry

// DeliveryStatus is the lifecycle of one dispatch attempt.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryConverted DeliveryStatus = "converted"
)

// DeliveryLog is one row per dispatch attempt, mutated by the send step and
// the outcome recorder.
type DeliveryLog struct {
	ID               string                       `json:"id"`
	UserID           string                       `json:"user_id"`
	InterventionID   string                       `json:"intervention_id"`
	LifecycleState   lifecycle.State              `json:"lifecycle_state"`
	Channel          Channel                      `json:"channel"`
	Message          string                       `json:"message"`
	ExperimentID     string                       `json:"experiment_id,omitempty"`
	VariantID        string                       `json:"variant_id,omitempty"`
	Status           DeliveryStatus               `json:"status"`
	ErrorMessage     string                       `json:"error_message,omitempty"`
	SentAt           time.Time                    `json:"sent_at"`
	DeliveredAt      time.Time                    `json:"delivered_at"`
	ActionAt         time.Time                    `json:"action_at"`
	ConversionEvents []experiment.ConversionEvent `json:"conversion_events,omitempty"`
}

// Selection is what a surface should show a user right now.
type Selection struct {
	State         lifecycle.State `json:"state"`
	PlaybookName  string          `json:"playbook,omitempty"`
	Tone          string          `json:"tone,omitempty"`
	Interventions []Intervention  `json:"interventions"`
	IsExperiment  bool            `json:"is_experiment"`
	ExperimentID  string          `json:"experiment_id,omitempty"`
	AssignmentID  string          `json:"assignment_id,omitempty"`
	VariantID     string          `json:"variant_id,omitempty"`
}

// ConversionResult reports what a conversion recording touched. Matched is
// false when no delivery log exists for the pair; that is a no-op, not an
// error.
type ConversionResult struct {
	Matched           bool   `json:"matched"`
	DeliveryLogID     string `json:"delivery_log_id,omitempty"`
	ExperimentID      string `json:"experiment_id,omitempty"`
	AssignmentUpdated bool   `json:"assignment_updated"`
}
