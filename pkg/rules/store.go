package rules

import (
	"context"

	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

// Store is the persistence surface the rule engine depends on. Lookups for
// absent records return (nil, nil); only infrastructure failures are errors.
type Store interface {
	// Rules.
	ListActiveRules(ctx context.Context, ruleType string) ([]*GamificationRule, error)
	UpdateRule(ctx context.Context, rule *GamificationRule) error

	// Executions.
	ListRuleExecutions(ctx context.Context, ruleID, userID string) ([]*RuleExecution, error)
	CreateRuleExecution(ctx context.Context, exec *RuleExecution) error

	// Points.
	GetUserPoints(ctx context.Context, userID string) (*UserPoints, error)
	SaveUserPoints(ctx context.Context, points *UserPoints) error
	AppendPointsLedger(ctx context.Context, entry *PointsLedgerEntry) error

	// Badges.
	GetBadge(ctx context.Context, badgeID string) (*Badge, error)
	UpdateBadge(ctx context.Context, badge *Badge) error
	HasBadgeAward(ctx context.Context, badgeID, userID string) (bool, error)
	CreateBadgeAward(ctx context.Context, award *BadgeAward) error

	// Activity counted by the builtin counter sources.
	ListActivity(ctx context.Context, userID, kind string) ([]*ActivityRecord, error)

	// Profile, for tier multipliers.
	GetUserProfile(ctx context.Context, userID string) (*lifecycle.UserProfile, error)
}
