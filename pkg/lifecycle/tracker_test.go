package lifecycle

import (
	"context"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	states   map[string]*LifecycleState
	profiles map[string]*UserProfile
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:   make(map[string]*LifecycleState),
		profiles: make(map[string]*UserProfile),
	}
}

func (s *fakeStore) GetLifecycleState(_ context.Context, userID string) (*LifecycleState, error) {
	st, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *fakeStore) CreateLifecycleState(_ context.Context, state *LifecycleState) error {
	cp := *state
	s.states[state.UserID] = &cp
	return nil
}

func (s *fakeStore) UpdateLifecycleState(_ context.Context, state *LifecycleState) error {
	cp := *state
	s.states[state.UserID] = &cp
	return nil
}

func (s *fakeStore) GetUserProfile(_ context.Context, userID string) (*UserProfile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func newTestTracker(store *fakeStore) *Tracker {
	tr := NewTracker(store)
	tr.now = func() time.Time { return fixedNow }
	return tr
}

func TestTracker_GetOrCreate(t *testing.T) {
	store := newFakeStore()
	tr := newTestTracker(store)
	ctx := context.Background()

	state, created, err := tr.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !created {
		t.Fatal("Expected creation on first observation")
	}
	if state.CurrentState != StateNew {
		t.Errorf("Expected new state, got %s", state.CurrentState)
	}
	if state.ChurnRiskScore != 100 {
		t.Errorf("Expected fresh user at maximum risk, got %d", state.ChurnRiskScore)
	}
	if state.PersonalizationLevel != PersonalizationOnboarding {
		t.Errorf("Expected onboarding level, got %s", state.PersonalizationLevel)
	}

	_, created, err = tr.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if created {
		t.Error("Expected no creation on second call")
	}
}

func TestTracker_TouchTransitions(t *testing.T) {
	store := newFakeStore()
	store.profiles["u1"] = &UserProfile{
		UserID:         "u1",
		Activated:      true,
		LastActivityAt: fixedNow.Add(-2 * time.Hour),
		CreatedAt:      fixedNow.Add(-10 * 24 * time.Hour),
	}
	tr := newTestTracker(store)
	ctx := context.Background()

	result, err := tr.Touch(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Transitioned || result.To != StateActivated {
		t.Fatalf("Expected new -> activated, got %+v", result)
	}

	stored := store.states["u1"]
	if stored.CurrentState != StateActivated || stored.PreviousState != StateNew {
		t.Errorf("Expected stored transition, got %+v", stored)
	}
	if len(stored.StateHistory) != 1 || stored.StateHistory[0].State != StateNew {
		t.Errorf("Expected transition log entry for new, got %+v", stored.StateHistory)
	}
	if !stored.StateEnteredAt.Equal(fixedNow) {
		t.Errorf("Expected state_entered_at refreshed, got %v", stored.StateEnteredAt)
	}
}

func TestTracker_TouchWithoutTransition(t *testing.T) {
	store := newFakeStore()
	entered := fixedNow.Add(-3 * 24 * time.Hour)
	store.states["u1"] = &LifecycleState{
		UserID:         "u1",
		CurrentState:   StateActivated,
		StateEnteredAt: entered,
		ChurnRiskScore: 60,
		CreatedAt:      fixedNow.Add(-5 * 24 * time.Hour),
	}
	store.profiles["u1"] = &UserProfile{
		UserID:         "u1",
		Activated:      true,
		LastActivityAt: fixedNow.Add(-time.Hour),
	}
	tr := newTestTracker(store)

	result, err := tr.Touch(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Transitioned {
		t.Fatalf("Expected no transition, got %+v", result)
	}

	stored := store.states["u1"]
	if !stored.StateEnteredAt.Equal(entered) {
		t.Error("Expected state_entered_at untouched without a transition")
	}
	if len(stored.StateHistory) != 0 {
		t.Errorf("Expected no history entry, got %+v", stored.StateHistory)
	}
	// Risk still recomputes on every touch.
	if stored.ChurnRiskScore != 60 {
		t.Errorf("Expected recomputed risk 60, got %d", stored.ChurnRiskScore)
	}
}

func TestTracker_TouchUnknownProfileGoesDormant(t *testing.T) {
	store := newFakeStore()
	store.states["u1"] = &LifecycleState{
		UserID:         "u1",
		CurrentState:   StateEngaged,
		StateEnteredAt: fixedNow.Add(-30 * 24 * time.Hour),
		CreatedAt:      fixedNow.Add(-60 * 24 * time.Hour),
	}
	tr := newTestTracker(store)

	result, err := tr.Touch(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.To != StateDormant {
		t.Errorf("Expected unknown-profile user to go dormant, got %s", result.To)
	}
	if result.ChurnRiskScore != 100 {
		t.Errorf("Expected maximum risk, got %d", result.ChurnRiskScore)
	}
	if result.RiskLevel != "high" {
		t.Errorf("Expected high risk level, got %s", result.RiskLevel)
	}
}
