package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/metrics"
)

// Store is the persistence surface the tracker needs. Get methods return
// (nil, nil) when the record does not exist.
type Store interface {
	GetLifecycleState(ctx context.Context, userID string) (*LifecycleState, error)
	CreateLifecycleState(ctx context.Context, state *LifecycleState) error
	UpdateLifecycleState(ctx context.Context, state *LifecycleState) error
	GetUserProfile(ctx context.Context, userID string) (*UserProfile, error)
}

// TouchResult reports the outcome of one tracker recomputation.
type TouchResult struct {
	UserID               string `json:"user_id"`
	From                 State  `json:"from"`
	To                   State  `json:"to"`
	Transitioned         bool   `json:"transitioned"`
	ChurnRiskScore       int    `json:"churn_risk_score"`
	RiskLevel            string `json:"risk_level"`
	PersonalizationLevel string `json:"personalization_level"`
	Created              bool   `json:"created"`
}

// Tracker recomputes a user's lifecycle state on every tracked touchpoint.
// There is no timer-driven sweep: recomputation is pushed by the caller
// whenever the user does something trackable.
type Tracker struct {
	store Store
	now   func() time.Time
}

// NewTracker creates a lifecycle tracker backed by the given store.
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store: store,
		now:   time.Now,
	}
}

// GetOrCreate fetches the user's lifecycle record, creating a fresh one in
// the new state on first observation. The second return value reports
// whether a record was created.
func (t *Tracker) GetOrCreate(ctx context.Context, userID string) (*LifecycleState, bool, error) {
	state, err := t.store.GetLifecycleState(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get lifecycle state: %w", err)
	}
	if state != nil {
		return state, false, nil
	}

	now := t.now()
	state = &LifecycleState{
		UserID:               userID,
		CurrentState:         StateNew,
		StateEnteredAt:       now,
		ChurnRiskScore:       maxChurnRisk,
		PersonalizationLevel: PersonalizationOnboarding,
		CreatedAt:            now,
	}
	if err := t.store.CreateLifecycleState(ctx, state); err != nil {
		return nil, false, fmt.Errorf("failed to create lifecycle state: %w", err)
	}

	logrus.Infof("created lifecycle state for user %s", userID)
	return state, true, nil
}

// Touch recomputes churn risk and lifecycle state for the user and persists
// the result. state_entered_at is refreshed only when the state actually
// changed; the prior state is appended to the transition log.
func (t *Tracker) Touch(ctx context.Context, userID string) (*TouchResult, error) {
	state, created, err := t.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile, err := t.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	now := t.now()
	sig := SignalsFromProfile(profile, now)
	risk := ComputeChurnRisk(sig)
	next := NextState(state.CurrentState, risk, sig)

	result := &TouchResult{
		UserID:         userID,
		From:           state.CurrentState,
		To:             next,
		Transitioned:   next != state.CurrentState,
		ChurnRiskScore: risk,
		RiskLevel:      RiskLevel(risk),
		Created:        created,
	}

	state.ChurnRiskScore = risk
	state.Signals = sig

	if result.Transitioned {
		state.StateHistory = append(state.StateHistory, StateTransition{
			State:        state.CurrentState,
			EnteredAt:    state.StateEnteredAt,
			ExitedAt:     now,
			DurationDays: state.DaysInState(now),
		})
		state.PreviousState = state.CurrentState
		state.CurrentState = next
		state.StateEnteredAt = now

		metrics.StateTransitions.WithLabelValues(string(next)).Inc()
		logrus.Infof("user %s transitioned %s -> %s (risk=%d)", userID, result.From, next, risk)
	}

	daysSinceSignup := 0
	if !state.CreatedAt.IsZero() {
		daysSinceSignup = int(now.Sub(state.CreatedAt).Hours() / 24)
	}
	state.PersonalizationLevel = DerivePersonalizationLevel(state.CurrentState, daysSinceSignup)
	result.PersonalizationLevel = state.PersonalizationLevel

	if err := t.store.UpdateLifecycleState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to update lifecycle state: %w", err)
	}

	return result, nil
}
