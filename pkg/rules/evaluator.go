package rules

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Evaluation is the verdict for one rule against one trigger.
type Evaluation struct {
	Fires      bool
	Count      int
	Multiplier float64
	Points     int
}

// Evaluator decides whether a rule fires for a user and how many points the
// firing is worth.
type Evaluator struct {
	store   Store
	sources *SourceRegistry

	now func() time.Time
}

// NewEvaluator creates an evaluator backed by the given store and counter
// source registry.
func NewEvaluator(store Store, sources *SourceRegistry) *Evaluator {
	return &Evaluator{
		store:   store,
		sources: sources,
		now:     time.Now,
	}
}

// Evaluate checks the rule's per-user limit and trigger conditions. The
// limit check runs first so a capped rule never consults its counter source.
func (e *Evaluator) Evaluate(ctx context.Context, rule *GamificationRule, userID string, md Metadata) (*Evaluation, error) {
	now := e.now()

	capped, err := e.limitReached(ctx, rule, userID, now)
	if err != nil {
		return nil, err
	}
	if capped {
		return &Evaluation{Fires: false}, nil
	}

	count := 0
	if cond := rule.TriggerConditions; cond != nil && cond.Threshold > 0 {
		since := windowStart(cond.TimePeriod, now)
		src := e.sources.Get(rule.RuleType)
		count, err = src(ctx, e.store, userID, since, md)
		if err != nil {
			return nil, fmt.Errorf("counter source %s: %w", rule.RuleType, err)
		}
		if !CompareThreshold(count, cond.Threshold, cond.Comparison) {
			return &Evaluation{Fires: false, Count: count}, nil
		}
	}

	multiplier, err := e.multiplierFor(ctx, rule, userID, now)
	if err != nil {
		return nil, err
	}

	return &Evaluation{
		Fires:      true,
		Count:      count,
		Multiplier: multiplier,
		Points:     int(math.Round(float64(rule.PointsReward) * multiplier)),
	}, nil
}

// limitReached reports whether the rule's limit_per_user blocks another
// firing for this user right now.
func (e *Evaluator) limitReached(ctx context.Context, rule *GamificationRule, userID string, now time.Time) (bool, error) {
	limit := rule.LimitPerUser
	if limit == "" || limit == LimitUnlimited {
		return false, nil
	}

	execs, err := e.store.ListRuleExecutions(ctx, rule.ID, userID)
	if err != nil {
		return false, fmt.Errorf("list rule executions: %w", err)
	}
	if len(execs) == 0 {
		return false, nil
	}
	if limit == LimitOnce {
		return true, nil
	}

	window, ok := limitWindow(limit)
	if !ok {
		// Unknown limit value behaves like once, the strictest reading.
		return true, nil
	}
	since := now.Add(-window)
	for _, exec := range execs {
		if !exec.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func limitWindow(limit LimitPerUser) (time.Duration, bool) {
	switch limit {
	case LimitDaily:
		return 24 * time.Hour, true
	case LimitWeekly:
		return 7 * 24 * time.Hour, true
	case LimitMonthly:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// windowStart returns the start of the trailing counting window, or the zero
// time for all_time.
func windowStart(period TimePeriod, now time.Time) time.Time {
	window, ok := PeriodDuration(period)
	if !ok {
		return time.Time{}
	}
	return now.Add(-window)
}

// CompareThreshold applies the rule's comparison operator. An empty or
// unknown operator defaults to greater_than_or_equal.
func CompareThreshold(count, threshold int, cmp Comparison) bool {
	switch cmp {
	case CompareEquals:
		return count == threshold
	case CompareGreaterThan:
		return count > threshold
	case CompareLessThan:
		return count < threshold
	case CompareLessThanOrEqual:
		return count <= threshold
	default:
		return count >= threshold
	}
}

// multiplierFor compounds the weekend and tier multipliers for the user.
func (e *Evaluator) multiplierFor(ctx context.Context, rule *GamificationRule, userID string, now time.Time) (float64, error) {
	multiplier := 1.0
	mr := rule.MultiplierRules
	if mr == nil {
		return multiplier, nil
	}

	if mr.WeekendMultiplier > 0 && isWeekend(now) {
		multiplier *= mr.WeekendMultiplier
	}

	if len(mr.TierMultipliers) > 0 {
		profile, err := e.store.GetUserProfile(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("get user profile: %w", err)
		}
		if profile != nil {
			if tm, ok := mr.TierMultipliers[profile.Tier]; ok && tm > 0 {
				multiplier *= tm
			}
		}
	}

	return multiplier, nil
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
