package rules

import (
	"context"
	"sync"

	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

// fakeStore is an in-memory Store for tests. All methods copy on read so
// callers never share pointers with the store.
type fakeStore struct {
	mu       sync.Mutex
	rules    []*GamificationRule
	execs    []*RuleExecution
	points   map[string]*UserPoints
	ledger   []*PointsLedgerEntry
	badges   map[string]*Badge
	awards   []*BadgeAward
	activity []*ActivityRecord
	profiles map[string]*lifecycle.UserProfile
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		points:   make(map[string]*UserPoints),
		badges:   make(map[string]*Badge),
		profiles: make(map[string]*lifecycle.UserProfile),
	}
}

func (s *fakeStore) ListActiveRules(_ context.Context, ruleType string) ([]*GamificationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*GamificationRule
	for _, r := range s.rules {
		if r.IsActive && r.RuleType == ruleType {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateRule(_ context.Context, rule *GamificationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.ID == rule.ID {
			cp := *rule
			s.rules[i] = &cp
			return nil
		}
	}
	return nil
}

func (s *fakeStore) ListRuleExecutions(_ context.Context, ruleID, userID string) ([]*RuleExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*RuleExecution
	for _, e := range s.execs {
		if e.RuleID == ruleID && e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateRuleExecution(_ context.Context, exec *RuleExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exec
	s.execs = append(s.execs, &cp)
	return nil
}

func (s *fakeStore) GetUserPoints(_ context.Context, userID string) (*UserPoints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) SaveUserPoints(_ context.Context, points *UserPoints) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *points
	s.points[points.UserID] = &cp
	return nil
}

func (s *fakeStore) AppendPointsLedger(_ context.Context, entry *PointsLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.ledger = append(s.ledger, &cp)
	return nil
}

func (s *fakeStore) GetBadge(_ context.Context, badgeID string) (*Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.badges[badgeID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) UpdateBadge(_ context.Context, badge *Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *badge
	s.badges[badge.ID] = &cp
	return nil
}

func (s *fakeStore) HasBadgeAward(_ context.Context, badgeID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.awards {
		if a.BadgeID == badgeID && a.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) CreateBadgeAward(_ context.Context, award *BadgeAward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *award
	s.awards = append(s.awards, &cp)
	return nil
}

func (s *fakeStore) ListActivity(_ context.Context, userID, kind string) ([]*ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ActivityRecord
	for _, a := range s.activity {
		if a.UserID == userID && a.Kind == kind {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) GetUserProfile(_ context.Context, userID string) (*lifecycle.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}
