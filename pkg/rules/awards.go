package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/interact-platform/lifecycle-engine/pkg/common"
)

// Awarder applies point and badge awards. Point writes for one user are
// serialized through a keyed mutex so concurrent rule firings never lose an
// increment.
type Awarder struct {
	store Store
	locks *common.KeyedMutex

	now func() time.Time
}

// NewAwarder creates an awarder backed by the given store.
func NewAwarder(store Store) *Awarder {
	return &Awarder{
		store: store,
		locks: common.NewKeyedMutex(),
		now:   time.Now,
	}
}

// AwardPoints adds amount points to the user's balance and appends the
// matching ledger entry. It returns the balance after the award.
func (a *Awarder) AwardPoints(ctx context.Context, userID string, amount int, multiplier float64, ruleID, reason string) (*UserPoints, error) {
	unlock := a.locks.Lock("points:" + userID)
	defer unlock()

	points, err := a.store.GetUserPoints(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user points: %w", err)
	}
	if points == nil {
		points = &UserPoints{UserID: userID, Level: 1}
	}

	points.TotalPoints += amount
	if amount > 0 {
		points.LifetimePoints += amount
	}
	points.Level = LevelForPoints(points.TotalPoints)
	points.UpdatedAt = a.now()

	if err := a.store.SaveUserPoints(ctx, points); err != nil {
		return nil, fmt.Errorf("save user points: %w", err)
	}

	entry := &PointsLedgerEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		RuleID:       ruleID,
		Amount:       amount,
		Multiplier:   multiplier,
		BalanceAfter: points.TotalPoints,
		Reason:       reason,
		CreatedAt:    points.UpdatedAt,
	}
	if err := a.store.AppendPointsLedger(ctx, entry); err != nil {
		return nil, fmt.Errorf("append points ledger: %w", err)
	}

	return points, nil
}

// AwardBadge grants the badge to the user if they do not hold it yet. The
// existence check re-runs under the per-pair lock right before the create,
// so a duplicate attempt collapses into a no-op. Returns true if the badge
// was newly awarded.
func (a *Awarder) AwardBadge(ctx context.Context, userID, badgeID, earnedThrough string) (bool, error) {
	unlock := a.locks.Lock("badge:" + badgeID + ":" + userID)
	defer unlock()

	badge, err := a.store.GetBadge(ctx, badgeID)
	if err != nil {
		return false, fmt.Errorf("get badge: %w", err)
	}
	if badge == nil {
		return false, fmt.Errorf("badge %s: %w", badgeID, ErrBadgeNotFound)
	}

	has, err := a.store.HasBadgeAward(ctx, badgeID, userID)
	if err != nil {
		return false, fmt.Errorf("check badge award: %w", err)
	}
	if has {
		return false, nil
	}

	award := &BadgeAward{
		ID:            uuid.NewString(),
		BadgeID:       badgeID,
		UserID:        userID,
		EarnedThrough: earnedThrough,
		AwardedAt:     a.now(),
	}
	if err := a.store.CreateBadgeAward(ctx, award); err != nil {
		return false, fmt.Errorf("create badge award: %w", err)
	}

	badge.TimesAwarded++
	if err := a.store.UpdateBadge(ctx, badge); err != nil {
		return false, fmt.Errorf("update badge: %w", err)
	}

	return true, nil
}
