package lifecycle

import (
	"time"
)

// State is the coarse behavioral classification of a user.
type State string

const (
	StateNew       State = "new"
	StateActivated State = "activated"
	StateEngaged   State = "engaged"
	StatePowerUser State = "power_user"
	StateAtRisk    State = "at_risk"
	StateDormant   State = "dormant"
	StateReturning State = "returning"
)

// AllStates lists every valid lifecycle state, in progression order.
var AllStates = []State{
	StateNew,
	StateActivated,
	StateEngaged,
	StatePowerUser,
	StateAtRisk,
	StateDormant,
	StateReturning,
}

// Valid reports whether s is one of the seven known states.
func (s State) Valid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// PersonalizationLevel values, derived from tenure and state.
const (
	PersonalizationOnboarding = "onboarding"
	PersonalizationLearning   = "learning"
	PersonalizationAutonomous = "autonomous"
	PersonalizationExpert     = "expert"
)

// ActiveIntervention is one entry in a user's intervention history.
// Entries are appended per dispatch decision and flipped by the
// shown/dismiss/action recorders.
type ActiveIntervention struct {
	InterventionID   string    `json:"intervention_id"`
	InterventionType string    `json:"intervention_type"`
	TriggeredAt      time.Time `json:"triggered_at"`
	Shown            bool      `json:"shown"`
	Dismissed        bool      `json:"dismissed"`
	ActedOn          bool      `json:"acted_on"`
}

// StateTransition is one entry in the append-only transition log.
type StateTransition struct {
	State        State     `json:"state"`
	EnteredAt    time.Time `json:"entered_at"`
	ExitedAt     time.Time `json:"exited_at"`
	DurationDays int       `json:"duration_days"`
}

// LifecycleState is the per-user lifecycle record. Created on first
// observation of a user, mutated by the tracker and the intervention
// recorders, never deleted.
type LifecycleState struct {
	UserID                    string               `json:"user_id"`
	CurrentState              State                `json:"current_state"`
	PreviousState             State                `json:"previous_state,omitempty"`
	StateEnteredAt            time.Time            `json:"state_entered_at"`
	ChurnRiskScore            int                  `json:"churn_risk_score"`
	ActiveInterventions       []ActiveIntervention `json:"active_interventions"`
	SuppressedInterventionIDs []string             `json:"suppressed_intervention_ids"`
	StateHistory              []StateTransition    `json:"state_history"`
	PersonalizationLevel      string               `json:"personalization_level"`
	Signals                   Signals              `json:"churn_signals"`
	CreatedAt                 time.Time            `json:"created_at"`
}

// DaysInState returns whole days since the current state was entered.
func (ls *LifecycleState) DaysInState(now time.Time) int {
	if ls.StateEnteredAt.IsZero() {
		return 0
	}
	days := int(now.Sub(ls.StateEnteredAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// IsSuppressed reports whether the user has dismissed this intervention
// into the suppression set.
func (ls *LifecycleState) IsSuppressed(interventionID string) bool {
	for _, id := range ls.SuppressedInterventionIDs {
		if id == interventionID {
			return true
		}
	}
	return false
}

// LastIntervention returns the most recent active_interventions entry for
// the given intervention id, or nil if the intervention was never recorded.
func (ls *LifecycleState) LastIntervention(interventionID string) *ActiveIntervention {
	for i := len(ls.ActiveInterventions) - 1; i >= 0; i-- {
		if ls.ActiveInterventions[i].InterventionID == interventionID {
			return &ls.ActiveInterventions[i]
		}
	}
	return nil
}

// MarkInterventionShown flips the most recent entry for the intervention to
// shown, appending a new entry if none exists yet. Re-marking an existing
// entry refreshes triggered_at so the frequency cooldown re-arms.
func (ls *LifecycleState) MarkInterventionShown(interventionID, interventionType string, now time.Time) {
	if entry := ls.LastIntervention(interventionID); entry != nil {
		entry.Shown = true
		entry.TriggeredAt = now
		return
	}
	ls.ActiveInterventions = append(ls.ActiveInterventions, ActiveIntervention{
		InterventionID:   interventionID,
		InterventionType: interventionType,
		TriggeredAt:      now,
		Shown:            true,
	})
}

// SuppressIntervention records a dismissal: the intervention entry is marked
// dismissed and its id joins the suppression set.
func (ls *LifecycleState) SuppressIntervention(interventionID string) {
	if entry := ls.LastIntervention(interventionID); entry != nil {
		entry.Dismissed = true
	}
	if !ls.IsSuppressed(interventionID) {
		ls.SuppressedInterventionIDs = append(ls.SuppressedInterventionIDs, interventionID)
	}
}

// MarkInterventionAction records whether the user acted on the intervention.
func (ls *LifecycleState) MarkInterventionAction(interventionID string, actedOn bool) {
	if entry := ls.LastIntervention(interventionID); entry != nil {
		entry.ActedOn = actedOn
	}
}

// UserProfile carries the activity and preference attributes the engine
// reads about a user. It is owned by the surrounding product; the engine
// only consumes it.
type UserProfile struct {
	UserID               string    `json:"user_id"`
	Tier                 string    `json:"tier,omitempty"`
	PhoneNumber          string    `json:"phone_number,omitempty"`
	PreferredChannels    []string  `json:"preferred_channels,omitempty"`
	Activated            bool      `json:"activated"`
	LastActivityAt       time.Time `json:"last_activity_at"`
	WeekStreak           int       `json:"week_streak"`
	WeeklySessions       int       `json:"weekly_sessions"`
	SavedItems           int       `json:"saved_items"`
	PortfolioAdjustments int       `json:"portfolio_adjustments"`
	SocialInteractions   int       `json:"social_interactions"`
	UnlockedTiers        int       `json:"unlocked_tiers"`
	CreatedAt            time.Time `json:"created_at"`
}

// Signals is the snapshot of behavioral signals the risk and transition
// functions operate on. Derived from the profile at each touchpoint and
// persisted on the lifecycle record for audit.
type Signals struct {
	InactivityDays       int  `json:"inactivity_days"`
	WeekStreak           int  `json:"week_streak"`
	WeeklySessions       int  `json:"weekly_sessions"`
	HasSavedItems        bool `json:"has_saved_items"`
	HasPortfolioActivity bool `json:"has_portfolio_activity"`
	HasSocialActivity    bool `json:"has_social_activity"`
	UnlockedTiers        int  `json:"unlocked_tiers"`
	Activated            bool `json:"activated"`
}

// SignalsFromProfile derives a signal snapshot from the user profile.
// A nil profile yields maximum-inactivity signals (nothing is known about
// the user beyond their existence).
func SignalsFromProfile(profile *UserProfile, now time.Time) Signals {
	if profile == nil {
		return Signals{InactivityDays: unknownInactivityDays}
	}

	inactivity := unknownInactivityDays
	last := profile.LastActivityAt
	if last.IsZero() {
		last = profile.CreatedAt
	}
	if !last.IsZero() {
		inactivity = int(now.Sub(last).Hours() / 24)
		if inactivity < 0 {
			inactivity = 0
		}
	}

	return Signals{
		InactivityDays:       inactivity,
		WeekStreak:           profile.WeekStreak,
		WeeklySessions:       profile.WeeklySessions,
		HasSavedItems:        profile.SavedItems > 0,
		HasPortfolioActivity: profile.PortfolioAdjustments > 0,
		HasSocialActivity:    profile.SocialInteractions > 0,
		UnlockedTiers:        profile.UnlockedTiers,
		Activated:            profile.Activated,
	}
}
