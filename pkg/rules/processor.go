package rules

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/common"
	"github.com/interact-platform/lifecycle-engine/pkg/metrics"
	"github.com/interact-platform/lifecycle-engine/pkg/notify"
)

// Processor runs every active rule matching a trigger and applies the
// resulting awards. A failing rule is logged and reported but never blocks
// its siblings.
type Processor struct {
	store     Store
	evaluator *Evaluator
	awarder   *Awarder
	notifier  notify.Notifier
	logger    *logrus.Logger
	locks     *common.KeyedMutex

	now func() time.Time
}

// NewProcessor wires a processor from its collaborators.
func NewProcessor(store Store, evaluator *Evaluator, awarder *Awarder, notifier notify.Notifier, logger *logrus.Logger) *Processor {
	return &Processor{
		store:     store,
		evaluator: evaluator,
		awarder:   awarder,
		notifier:  notifier,
		logger:    logger,
		locks:     common.NewKeyedMutex(),
		now:       time.Now,
	}
}

// Trigger evaluates all active rules of the given type for the user, highest
// priority first, and applies awards for the ones that fire. Triggers for
// one user are serialized so a limit check never races the execution record
// it gates on.
func (p *Processor) Trigger(ctx context.Context, ruleType, userID string, md Metadata) (*TriggerOutcome, error) {
	unlock := p.locks.Lock("trigger:" + userID)
	defer unlock()

	rules, err := p.store.ListActiveRules(ctx, ruleType)
	if err != nil {
		return nil, err
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})

	outcome := &TriggerOutcome{
		Trigger: ruleType,
		UserID:  userID,
		Awarded: []Award{},
	}

	for _, rule := range rules {
		award, err := p.processRule(ctx, rule, userID, md)
		if err != nil {
			p.logger.Errorf("rule %s failed for user %s: %v", rule.ID, userID, err)
			outcome.Failed = append(outcome.Failed, RuleFailure{RuleID: rule.ID, Error: err.Error()})
			continue
		}
		if award == nil {
			continue
		}
		outcome.Awarded = append(outcome.Awarded, *award)
		outcome.TotalPoints += award.Points
	}

	return outcome, nil
}

// processRule evaluates one rule and, if it fires, applies points, badge,
// the execution record and the rule's own stats. Returns nil when the rule
// does not fire.
func (p *Processor) processRule(ctx context.Context, rule *GamificationRule, userID string, md Metadata) (*Award, error) {
	eval, err := p.evaluator.Evaluate(ctx, rule, userID, md)
	if err != nil {
		return nil, err
	}
	if !eval.Fires {
		return nil, nil
	}

	metrics.RulesFired.WithLabelValues(rule.RuleType).Inc()

	award := &Award{
		RuleID:   rule.ID,
		RuleName: rule.RuleName,
		Points:   eval.Points,
		Level:    1,
	}

	if eval.Points != 0 {
		balance, err := p.awarder.AwardPoints(ctx, userID, eval.Points, eval.Multiplier, rule.ID, rule.RuleName)
		if err != nil {
			return nil, err
		}
		award.Level = balance.Level
		metrics.PointsAwarded.WithLabelValues(rule.RuleType).Add(float64(eval.Points))
	}

	if rule.BadgeID != "" {
		granted, err := p.awarder.AwardBadge(ctx, userID, rule.BadgeID, rule.RuleName)
		if err != nil {
			// Points already landed; surface the badge failure but keep
			// the award in the outcome via the execution record below.
			p.logger.Errorf("badge %s for user %s: %v", rule.BadgeID, userID, err)
		} else if granted {
			award.BadgeID = rule.BadgeID
		}
	}

	exec := &RuleExecution{
		ID:                uuid.NewString(),
		RuleID:            rule.ID,
		UserID:            userID,
		TriggerAction:     rule.RuleType,
		PointsAwarded:     eval.Points,
		BadgeAwarded:      award.BadgeID,
		MultiplierApplied: eval.Multiplier,
		CreatedAt:         p.now(),
	}
	if err := p.store.CreateRuleExecution(ctx, exec); err != nil {
		return nil, err
	}
	award.ExecutionID = exec.ID

	rule.TimesTriggered++
	rule.LastTriggered = exec.CreatedAt
	if err := p.store.UpdateRule(ctx, rule); err != nil {
		p.logger.Errorf("update rule %s stats: %v", rule.ID, err)
	}

	if ns := rule.NotificationSettings; ns != nil && ns.NotifyOnAward {
		msg := notify.Message{
			UserID: userID,
			Title:  rule.RuleName,
			Body:   ns.Message,
		}
		if err := p.notifier.SendInApp(ctx, msg); err != nil {
			p.logger.Errorf("award notification for user %s: %v", userID, err)
		}
	}

	return award, nil
}
