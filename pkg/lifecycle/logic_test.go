package lifecycle

import (
	"testing"
	"time"
)

func TestComputeChurnRisk_Clamped(t *testing.T) {
	// Every positive signal at once drives the raw score negative; the
	// result must clamp to 0.
	allGood := Signals{
		InactivityDays:       0,
		WeekStreak:           5,
		HasSavedItems:        true,
		HasPortfolioActivity: true,
		HasSocialActivity:    true,
	}
	if got := ComputeChurnRisk(allGood); got != 0 {
		t.Errorf("Expected fully engaged user clamped to 0, got %d", got)
	}

	// Every negative signal at once exceeds 100 raw; clamp to 100.
	allBad := Signals{InactivityDays: 999}
	if got := ComputeChurnRisk(allBad); got != 100 {
		t.Errorf("Expected fully inactive user clamped to 100, got %d", got)
	}

	for _, sig := range []Signals{
		{},
		{InactivityDays: 10, WeekStreak: 2},
		{InactivityDays: 15, HasSavedItems: true},
		{InactivityDays: 30, WeekStreak: 4, HasSocialActivity: true},
	} {
		got := ComputeChurnRisk(sig)
		if got < 0 || got > 100 {
			t.Errorf("ComputeChurnRisk(%+v) = %d, outside [0,100]", sig, got)
		}
	}
}

func TestComputeChurnRisk_Scoring(t *testing.T) {
	cases := []struct {
		name string
		sig  Signals
		want int
	}{
		{"recently active only", Signals{InactivityDays: 3}, 60},
		{"active with streak", Signals{InactivityDays: 3, WeekStreak: 1}, 45},
		{"active with strong streak", Signals{InactivityDays: 3, WeekStreak: 3}, 15},
		{"week inactive", Signals{InactivityDays: 10}, 100},
		{"momentum without recency", Signals{InactivityDays: 10, HasSavedItems: true, HasPortfolioActivity: true}, 100},
		{"streak but fortnight inactive", Signals{InactivityDays: 16, WeekStreak: 3}, 95},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeChurnRisk(tc.sig); got != tc.want {
				t.Errorf("ComputeChurnRisk(%+v) = %d, want %d", tc.sig, got, tc.want)
			}
		})
	}
}

func TestRiskLevel(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, "low"},
		{40, "low"},
		{41, "medium"},
		{70, "medium"},
		{71, "high"},
		{100, "high"},
	}
	for _, tc := range cases {
		if got := RiskLevel(tc.score); got != tc.want {
			t.Errorf("RiskLevel(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestNextState(t *testing.T) {
	cases := []struct {
		name    string
		current State
		risk    int
		sig     Signals
		want    State
	}{
		{"new stays without activation", StateNew, 60, Signals{InactivityDays: 2}, StateNew},
		{"new activates", StateNew, 60, Signals{InactivityDays: 2, Activated: true}, StateActivated},
		{"activated engages with sessions and streak", StateActivated, 45, Signals{InactivityDays: 2, WeeklySessions: 2, WeekStreak: 1}, StateEngaged},
		{"activated stays without streak", StateActivated, 60, Signals{InactivityDays: 2, WeeklySessions: 2}, StateActivated},
		{"engaged becomes power user on tier unlock", StateEngaged, 15, Signals{InactivityDays: 1, WeeklySessions: 4, WeekStreak: 3, UnlockedTiers: 1}, StatePowerUser},
		{"engaged falls at risk", StateEngaged, 80, Signals{InactivityDays: 10}, StateAtRisk},
		{"anyone goes dormant past 21 days", StatePowerUser, 100, Signals{InactivityDays: 25}, StateDormant},
		{"at risk returns on activity", StateAtRisk, 80, Signals{InactivityDays: 1}, StateReturning},
		{"dormant returns on activity", StateDormant, 100, Signals{InactivityDays: 0}, StateReturning},
		{"dormant stays dormant while inactive", StateDormant, 100, Signals{InactivityDays: 40}, StateDormant},
		{"returning re-engages", StateReturning, 45, Signals{InactivityDays: 1, WeeklySessions: 2}, StateEngaged},
		{"returning jumps to power user", StateReturning, 15, Signals{InactivityDays: 1, WeeklySessions: 3, UnlockedTiers: 2}, StatePowerUser},
		{"returning lingers without momentum", StateReturning, 60, Signals{InactivityDays: 1}, StateReturning},
		{"activated low risk does not fall at risk", StateActivated, 60, Signals{InactivityDays: 10}, StateActivated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextState(tc.current, tc.risk, tc.sig); got != tc.want {
				t.Errorf("NextState(%s, %d, %+v) = %s, want %s", tc.current, tc.risk, tc.sig, got, tc.want)
			}
		})
	}
}

func TestDerivePersonalizationLevel(t *testing.T) {
	cases := []struct {
		state State
		days  int
		want  string
	}{
		{StatePowerUser, 5, PersonalizationExpert},
		{StateEngaged, 90, PersonalizationAutonomous},
		{StateEngaged, 45, PersonalizationLearning},
		{StateEngaged, 10, PersonalizationOnboarding},
		{StateNew, 100, PersonalizationOnboarding},
	}
	for _, tc := range cases {
		if got := DerivePersonalizationLevel(tc.state, tc.days); got != tc.want {
			t.Errorf("DerivePersonalizationLevel(%s, %d) = %s, want %s", tc.state, tc.days, got, tc.want)
		}
	}
}

func TestSignalsFromProfile(t *testing.T) {
	now := time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)

	sig := SignalsFromProfile(nil, now)
	if sig.InactivityDays != 999 {
		t.Errorf("Expected unknown profile to read as long inactive, got %d", sig.InactivityDays)
	}

	profile := &UserProfile{
		UserID:         "u1",
		LastActivityAt: now.Add(-36 * time.Hour),
		WeekStreak:     2,
		WeeklySessions: 3,
		SavedItems:     1,
		Activated:      true,
	}
	sig = SignalsFromProfile(profile, now)
	if sig.InactivityDays != 1 {
		t.Errorf("Expected 1 day inactivity, got %d", sig.InactivityDays)
	}
	if !sig.HasSavedItems || sig.WeekStreak != 2 || !sig.Activated {
		t.Errorf("Unexpected signals %+v", sig)
	}

	// Falls back to signup date when no activity is recorded.
	fresh := &UserProfile{UserID: "u2", CreatedAt: now.Add(-2 * time.Hour)}
	sig = SignalsFromProfile(fresh, now)
	if sig.InactivityDays != 0 {
		t.Errorf("Expected 0 days for fresh signup, got %d", sig.InactivityDays)
	}
}
