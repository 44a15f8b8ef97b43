package lifecycle

// Churn risk scoring constants. The score starts at maximum risk and is
// reduced by fixed deductions per positive signal, then raised again per
// inactivity threshold crossed, clamped to [0,100].
const (
	maxChurnRisk = 100
	minChurnRisk = 0

	// A user we have no activity record for is treated as long gone.
	unknownInactivityDays = 999

	deductRecentActivity = 40 // active within the last 7 days
	deductStreakStarted  = 15 // weekly engagement streak >= 1
	deductStreakStrong   = 30 // weekly engagement streak >= 3
	deductMomentumSignal = 10 // per momentum signal present

	addInactiveWeek      = 20 // no activity for more than 7 days
	addInactiveFortnight = 20 // no activity for more than 14 days
	addInactiveDormant   = 15 // no activity for more than 21 days
)

// Business thresholds for risk-driven transitions.
const (
	atRiskScoreThreshold   = 70
	atRiskInactivityDays   = 7
	dormantInactivityDays  = 21
	returningActivityDays  = 7
	engagedWeeklySessions  = 2
	powerUserWeekSessions  = 3
	riskBucketLowCeiling   = 40
	riskBucketMediumCeilng = 70
)

// ComputeChurnRisk scores a user's churn risk from their signal snapshot.
// Always returns a value in [0,100].
func ComputeChurnRisk(sig Signals) int {
	risk := maxChurnRisk

	if sig.InactivityDays <= 7 {
		risk -= deductRecentActivity
	}
	if sig.WeekStreak >= 1 {
		risk -= deductStreakStarted
	}
	if sig.WeekStreak >= 3 {
		risk -= deductStreakStrong
	}
	if sig.HasSavedItems {
		risk -= deductMomentumSignal
	}
	if sig.HasPortfolioActivity {
		risk -= deductMomentumSignal
	}
	if sig.HasSocialActivity {
		risk -= deductMomentumSignal
	}

	if sig.InactivityDays > 7 {
		risk += addInactiveWeek
	}
	if sig.InactivityDays > 14 {
		risk += addInactiveFortnight
	}
	if sig.InactivityDays > 21 {
		risk += addInactiveDormant
	}

	return clampRisk(risk)
}

func clampRisk(risk int) int {
	if risk > maxChurnRisk {
		return maxChurnRisk
	}
	if risk < minChurnRisk {
		return minChurnRisk
	}
	return risk
}

// RiskLevel buckets a churn risk score: low <=40, medium 41-70, high >70.
func RiskLevel(score int) string {
	switch {
	case score <= riskBucketLowCeiling:
		return "low"
	case score <= riskBucketMediumCeilng:
		return "medium"
	default:
		return "high"
	}
}

// NextState determines the next lifecycle state for a user. The state graph
// is not a strict chain: any state can fall to at_risk or dormant on
// inactivity, and dormant/at_risk users who show up again pass through
// returning before re-evaluating into engaged or power_user.
func NextState(current State, risk int, sig Signals) State {
	switch current {
	case StateDormant, StateAtRisk:
		if sig.InactivityDays < returningActivityDays {
			return StateReturning
		}
	case StateReturning:
		if sig.InactivityDays < returningActivityDays {
			if sig.UnlockedTiers > 0 && sig.WeeklySessions >= powerUserWeekSessions {
				return StatePowerUser
			}
			if sig.WeeklySessions >= engagedWeeklySessions || sig.WeekStreak > 0 {
				return StateEngaged
			}
			return StateReturning
		}
	}

	// Inactivity excursions apply from every state.
	if sig.InactivityDays > dormantInactivityDays {
		return StateDormant
	}
	if risk > atRiskScoreThreshold && sig.InactivityDays > atRiskInactivityDays {
		return StateAtRisk
	}

	// Forward progression.
	switch current {
	case StateNew:
		if sig.Activated {
			return StateActivated
		}
	case StateActivated:
		if sig.WeeklySessions >= engagedWeeklySessions && sig.WeekStreak > 0 {
			return StateEngaged
		}
	case StateEngaged:
		if sig.UnlockedTiers > 0 {
			return StatePowerUser
		}
	}

	return current
}

// DerivePersonalizationLevel maps tenure and state onto a personalization
// level: long-tenured engaged users graduate from learning to autonomous,
// power users are treated as experts regardless of tenure.
func DerivePersonalizationLevel(current State, daysSinceSignup int) string {
	if current == StatePowerUser {
		return PersonalizationExpert
	}
	if current == StateEngaged {
		if daysSinceSignup > 60 {
			return PersonalizationAutonomous
		}
		if daysSinceSignup > 30 {
			return PersonalizationLearning
		}
	}
	return PersonalizationOnboarding
}
