package rules

import (
	"time"
)

// LimitPerUser controls how often one rule may fire for one user.
type LimitPerUser string

const (
	LimitUnlimited LimitPerUser = "unlimited"
	LimitOnce      LimitPerUser = "once"
	LimitDaily     LimitPerUser = "daily"
	LimitWeekly    LimitPerUser = "weekly"
	LimitMonthly   LimitPerUser = "monthly"
)

// TimePeriod is a trailing wall-clock window for counting trigger activity.
type TimePeriod string

const (
	PeriodDaily     TimePeriod = "daily"
	PeriodWeekly    TimePeriod = "weekly"
	PeriodMonthly   TimePeriod = "monthly"
	PeriodQuarterly TimePeriod = "quarterly"
	PeriodAllTime   TimePeriod = "all_time"
)

// PeriodDuration returns the trailing window for a period. The second return
// value is false for all_time (and unknown periods), meaning no filtering.
func PeriodDuration(period TimePeriod) (time.Duration, bool) {
	switch period {
	case PeriodDaily:
		return 24 * time.Hour, true
	case PeriodWeekly:
		return 7 * 24 * time.Hour, true
	case PeriodMonthly:
		return 30 * 24 * time.Hour, true
	case PeriodQuarterly:
		return 90 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Comparison is the operator applied between the observed count and the
// rule's threshold.
type Comparison string

const (
	CompareEquals             Comparison = "equals"
	CompareGreaterThan        Comparison = "greater_than"
	CompareGreaterThanOrEqual Comparison = "greater_than_or_equal"
	CompareLessThan           Comparison = "less_than"
	CompareLessThanOrEqual    Comparison = "less_than_or_equal"
)

// TriggerConditions declares when a rule fires. A zero Threshold means the
// rule has no count requirement and always fires (count-less triggers such
// as "user logged in").
type TriggerConditions struct {
	Threshold  int        `json:"threshold,omitempty"`
	TimePeriod TimePeriod `json:"time_period,omitempty"`
	Comparison Comparison `json:"comparison,omitempty"`
}

// MultiplierRules configures point bonus multipliers. Multipliers compound.
type MultiplierRules struct {
	WeekendMultiplier float64            `json:"weekend_multiplier,omitempty"`
	TierMultipliers   map[string]float64 `json:"tier_multipliers,omitempty"`
}

// NotificationSettings controls whether firing the rule pushes an in-app
// notification to the user.
type NotificationSettings struct {
	NotifyOnAward bool   `json:"notify_on_award"`
	Message       string `json:"message,omitempty"`
}

// GamificationRule is a declarative rule awarding points and badges on
// triggering events.
type GamificationRule struct {
	ID                   string                `json:"id"`
	RuleName             string                `json:"rule_name"`
	RuleType             string                `json:"rule_type"`
	TriggerConditions    *TriggerConditions    `json:"trigger_conditions,omitempty"`
	PointsReward         int                   `json:"points_reward"`
	BadgeID              string                `json:"badge_id,omitempty"`
	LimitPerUser         LimitPerUser          `json:"limit_per_user,omitempty"`
	MultiplierRules      *MultiplierRules      `json:"multiplier_rules,omitempty"`
	NotificationSettings *NotificationSettings `json:"notification_settings,omitempty"`
	Priority             int                   `json:"priority"`
	IsActive             bool                  `json:"is_active"`
	TimesTriggered       int                   `json:"times_triggered"`
	LastTriggered        time.Time             `json:"last_triggered"`
}

// RuleExecution is the append-only audit record of one rule firing for one
// user. It doubles as the source for limit enforcement.
type RuleExecution struct {
	ID                string    `json:"id"`
	RuleID            string    `json:"rule_id"`
	UserID            string    `json:"user_id"`
	TriggerAction     string    `json:"trigger_action"`
	PointsAwarded     int       `json:"points_awarded"`
	BadgeAwarded      string    `json:"badge_awarded,omitempty"`
	MultiplierApplied float64   `json:"multiplier_applied"`
	CreatedAt         time.Time `json:"created_at"`
}

// UserPoints is the per-user points balance. total_points is the spendable
// balance; lifetime_points only grows. Level derives from the total.
type UserPoints struct {
	UserID         string    `json:"user_id"`
	TotalPoints    int       `json:"total_points"`
	LifetimePoints int       `json:"lifetime_points"`
	Level          int       `json:"level"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LevelForPoints maps a point total onto a level (one level per 100 points).
func LevelForPoints(total int) int {
	if total < 0 {
		return 1
	}
	return total/100 + 1
}

// PointsLedgerEntry is one transaction in the append-only points ledger.
// balance_after records the total immediately after applying the entry.
type PointsLedgerEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	RuleID       string    `json:"rule_id,omitempty"`
	Amount       int       `json:"amount"`
	Multiplier   float64   `json:"multiplier"`
	BalanceAfter int       `json:"balance_after"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Badge is a badge catalog entry with its running award counter.
type Badge struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	TimesAwarded int    `json:"times_awarded"`
}

// BadgeAward binds one badge to one user. Award creation is idempotent: a
// duplicate attempt is a no-op, not an error.
type BadgeAward struct {
	ID            string    `json:"id"`
	BadgeID       string    `json:"badge_id"`
	UserID        string    `json:"user_id"`
	EarnedThrough string    `json:"earned_through,omitempty"`
	AwardedAt     time.Time `json:"awarded_at"`
}

// Activity kinds recorded by the surrounding product and counted by the
// builtin counter sources.
const (
	ActivityEventAttended       = "event_attended"
	ActivityRecognitionGiven    = "recognition_given"
	ActivityRecognitionReceived = "recognition_received"
)

// ActivityRecord is one tracked domain action for a user (an attended
// event, a sent recognition, ...). The engine only counts these.
type ActivityRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Metadata carries trigger-specific context from the event producer.
type Metadata struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// Award describes one rule that fired during a trigger.
type Award struct {
	RuleID      string `json:"rule_id"`
	RuleName    string `json:"rule_name"`
	Points      int    `json:"points"`
	BadgeID     string `json:"badge_id,omitempty"`
	ExecutionID string `json:"execution_id"`
	Level       int    `json:"level"`
}

// RuleFailure reports a rule whose processing failed; sibling rules in the
// same trigger still execute.
type RuleFailure struct {
	RuleID string `json:"rule_id"`
	Error  string `json:"error"`
}

// TriggerOutcome is the aggregate result of processing one trigger against
// all matching rules.
type TriggerOutcome struct {
	Trigger     string        `json:"trigger"`
	UserID      string        `json:"user_id"`
	Awarded     []Award       `json:"awarded"`
	TotalPoints int           `json:"total_points"`
	Failed      []RuleFailure `json:"failed,omitempty"`
}
