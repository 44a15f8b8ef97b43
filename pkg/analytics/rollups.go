// Package analytics is the read side of the engine: descriptive aggregation
// over lifecycle records and experiments. Nothing here mutates state.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

// Store is the read-only persistence surface the rollups consume.
type Store interface {
	ListLifecycleStates(ctx context.Context) ([]*lifecycle.LifecycleState, error)
	ListExperiments(ctx context.Context) ([]*experiment.Experiment, error)
}

// Reporter computes the rollups.
type Reporter struct {
	store Store

	now func() time.Time
}

// NewReporter creates a reporter backed by the given store.
func NewReporter(store Store) *Reporter {
	return &Reporter{store: store, now: time.Now}
}

// RiskBuckets counts users per churn-risk band.
type RiskBuckets struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// StateDistribution is the population breakdown by lifecycle state.
type StateDistribution struct {
	Distribution          map[lifecycle.State]int     `json:"distribution"`
	Percentages           map[lifecycle.State]float64 `json:"percentages"`
	ChurnRiskDistribution RiskBuckets                 `json:"churn_risk_distribution"`
	TotalUsers            int                         `json:"total_users"`
}

// StateDistribution counts users per state and per risk bucket.
func (r *Reporter) StateDistribution(ctx context.Context) (*StateDistribution, error) {
	states, err := r.store.ListLifecycleStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle states: %w", err)
	}

	out := &StateDistribution{
		Distribution: make(map[lifecycle.State]int, len(lifecycle.AllStates)),
		Percentages:  make(map[lifecycle.State]float64, len(lifecycle.AllStates)),
		TotalUsers:   len(states),
	}
	for _, s := range lifecycle.AllStates {
		out.Distribution[s] = 0
	}

	for _, st := range states {
		if st.CurrentState.Valid() {
			out.Distribution[st.CurrentState]++
		}
		switch lifecycle.RiskLevel(st.ChurnRiskScore) {
		case "low":
			out.ChurnRiskDistribution.Low++
		case "medium":
			out.ChurnRiskDistribution.Medium++
		default:
			out.ChurnRiskDistribution.High++
		}
	}

	for _, s := range lifecycle.AllStates {
		if out.TotalUsers > 0 {
			out.Percentages[s] = float64(out.Distribution[s]) / float64(out.TotalUsers) * 100
		} else {
			out.Percentages[s] = 0
		}
	}
	return out, nil
}

// TrendBucket is one 7-day slice of the churn trend, anchored to "now minus
// i days" rather than calendar weeks.
type TrendBucket struct {
	WeekStart    string `json:"week_start"`
	AvgChurnRisk int    `json:"avg_churn_risk"`
	AtRiskUsers  int    `json:"at_risk_users"`
	DormantUsers int    `json:"dormant_users"`
	TotalUsers   int    `json:"total_users"`
}

// ChurnTrends buckets users by when they entered their current state over
// the trailing window, averaging risk and counting at-risk/dormant per
// bucket.
func (r *Reporter) ChurnTrends(ctx context.Context, days int) ([]TrendBucket, error) {
	states, err := r.store.ListLifecycleStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle states: %w", err)
	}

	now := r.now()
	var trends []TrendBucket
	for i := days; i >= 0; i -= 7 {
		start := now.AddDate(0, 0, -i).Truncate(24 * time.Hour)
		end := start.AddDate(0, 0, 7)

		bucket := TrendBucket{WeekStart: start.Format("2006-01-02")}
		riskSum := 0
		for _, st := range states {
			if st.StateEnteredAt.Before(start) || !st.StateEnteredAt.Before(end) {
				continue
			}
			bucket.TotalUsers++
			riskSum += st.ChurnRiskScore
			switch st.CurrentState {
			case lifecycle.StateAtRisk:
				bucket.AtRiskUsers++
			case lifecycle.StateDormant:
				bucket.DormantUsers++
			}
		}
		if bucket.TotalUsers > 0 {
			bucket.AvgChurnRisk = int(math.Round(float64(riskSum) / float64(bucket.TotalUsers)))
		}
		trends = append(trends, bucket)
	}
	return trends, nil
}

// TypeEffectiveness is the outcome stats for one intervention type.
type TypeEffectiveness struct {
	Shown          int     `json:"shown"`
	ActedOn        int     `json:"acted_on"`
	Dismissed      int     `json:"dismissed"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Effectiveness aggregates intervention outcomes across all users.
type Effectiveness struct {
	TotalShown            int                           `json:"total_interventions_shown"`
	TotalActedOn          int                           `json:"total_acted_on"`
	TotalDismissed        int                           `json:"total_dismissed"`
	OverallConversionRate float64                       `json:"overall_conversion_rate"`
	ByType                map[string]*TypeEffectiveness `json:"by_type"`
}

// InterventionEffectiveness groups shown interventions by type with
// conversion_rate = acted_on / shown.
func (r *Reporter) InterventionEffectiveness(ctx context.Context) (*Effectiveness, error) {
	states, err := r.store.ListLifecycleStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle states: %w", err)
	}

	out := &Effectiveness{ByType: make(map[string]*TypeEffectiveness)}
	for _, st := range states {
		for _, iv := range st.ActiveInterventions {
			if !iv.Shown {
				continue
			}
			out.TotalShown++

			typ := iv.InterventionType
			if typ == "" {
				typ = "unknown"
			}
			stats := out.ByType[typ]
			if stats == nil {
				stats = &TypeEffectiveness{}
				out.ByType[typ] = stats
			}
			stats.Shown++
			if iv.ActedOn {
				out.TotalActedOn++
				stats.ActedOn++
			}
			if iv.Dismissed {
				out.TotalDismissed++
				stats.Dismissed++
			}
		}
	}

	for _, stats := range out.ByType {
		if stats.Shown > 0 {
			stats.ConversionRate = float64(stats.ActedOn) / float64(stats.Shown) * 100
		}
	}
	if out.TotalShown > 0 {
		out.OverallConversionRate = float64(out.TotalActedOn) / float64(out.TotalShown) * 100
	}
	return out, nil
}

// StateExperiments counts experiments targeting one lifecycle state.
type StateExperiments struct {
	Count  int `json:"count"`
	Active int `json:"active"`
}

// ExperimentSummary is the portfolio view over all experiments. Averages
// cover only completed experiments carrying a results summary.
type ExperimentSummary struct {
	TotalExperiments     int                                  `json:"total_experiments"`
	ActiveExperiments    int                                  `json:"active_experiments"`
	CompletedExperiments int                                  `json:"completed_experiments"`
	ByState              map[lifecycle.State]*StateExperiments `json:"by_state"`
	AvgImprovement       float64                              `json:"avg_improvement"`
	AvgConfidence        float64                              `json:"avg_confidence"`
}

// ExperimentSummary aggregates experiment counts and completed-experiment
// averages.
func (r *Reporter) ExperimentSummary(ctx context.Context) (*ExperimentSummary, error) {
	exps, err := r.store.ListExperiments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}

	out := &ExperimentSummary{
		TotalExperiments: len(exps),
		ByState:          make(map[lifecycle.State]*StateExperiments),
	}

	totalImprovement := 0.0
	totalConfidence := 0.0
	summarized := 0
	for _, exp := range exps {
		byState := out.ByState[exp.LifecycleState]
		if byState == nil {
			byState = &StateExperiments{}
			out.ByState[exp.LifecycleState] = byState
		}
		byState.Count++

		switch exp.Status {
		case experiment.StatusActive:
			out.ActiveExperiments++
			byState.Active++
		case experiment.StatusCompleted:
			out.CompletedExperiments++
			if exp.ResultsSummary != nil {
				totalImprovement += exp.ResultsSummary.ImprovementPercent
				totalConfidence += exp.ResultsSummary.Confidence
				summarized++
			}
		}
	}
	if summarized > 0 {
		out.AvgImprovement = totalImprovement / float64(summarized)
		out.AvgConfidence = totalConfidence / float64(summarized)
	}
	return out, nil
}

// CohortType selects the signup grouping for cohort analysis.
type CohortType string

const (
	CohortSignupWeek  CohortType = "signup_week"
	CohortSignupMonth CohortType = "signup_month"
)

// Cohort is the retention snapshot for one signup group.
type Cohort struct {
	Total          int     `json:"total"`
	Activated      int     `json:"activated"`
	Engaged        int     `json:"engaged"`
	PowerUser      int     `json:"power_user"`
	Churned        int     `json:"churned"`
	ActivationRate float64 `json:"activation_rate"`
	EngagementRate float64 `json:"engagement_rate"`
	ChurnRate      float64 `json:"churn_rate"`
}

// Cohorts groups users by signup week or month and reports activation,
// engagement and churn rates per group.
func (r *Reporter) Cohorts(ctx context.Context, cohortType CohortType) (map[string]*Cohort, error) {
	states, err := r.store.ListLifecycleStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle states: %w", err)
	}

	cohorts := make(map[string]*Cohort)
	for _, st := range states {
		key := cohortKey(st.CreatedAt, cohortType)
		cohort := cohorts[key]
		if cohort == nil {
			cohort = &Cohort{}
			cohorts[key] = cohort
		}

		cohort.Total++
		switch st.CurrentState {
		case lifecycle.StateEngaged:
			cohort.Engaged++
		case lifecycle.StatePowerUser:
			cohort.Engaged++
			cohort.PowerUser++
		case lifecycle.StateDormant:
			cohort.Churned++
		}
		if everActivated(st) {
			cohort.Activated++
		}
	}

	for _, cohort := range cohorts {
		if cohort.Total > 0 {
			cohort.ActivationRate = float64(cohort.Activated) / float64(cohort.Total) * 100
			cohort.EngagementRate = float64(cohort.Engaged) / float64(cohort.Total) * 100
			cohort.ChurnRate = float64(cohort.Churned) / float64(cohort.Total) * 100
		}
	}
	return cohorts, nil
}

func cohortKey(createdAt time.Time, cohortType CohortType) string {
	if cohortType == CohortSignupMonth {
		return createdAt.Format("2006-01")
	}
	// Week cohorts anchor on the preceding Sunday.
	weekStart := createdAt.AddDate(0, 0, -int(createdAt.Weekday()))
	return weekStart.Format("2006-01-02")
}

// everActivated reports whether the user ever left the new state.
func everActivated(st *lifecycle.LifecycleState) bool {
	if st.CurrentState != lifecycle.StateNew {
		return true
	}
	for _, h := range st.StateHistory {
		if h.State == lifecycle.StateActivated {
			return true
		}
	}
	return false
}

// PersonalizationDistribution counts users per personalization level.
func (r *Reporter) PersonalizationDistribution(ctx context.Context) (map[string]int, error) {
	states, err := r.store.ListLifecycleStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle states: %w", err)
	}

	dist := map[string]int{
		lifecycle.PersonalizationOnboarding: 0,
		lifecycle.PersonalizationLearning:   0,
		lifecycle.PersonalizationAutonomous: 0,
		lifecycle.PersonalizationExpert:     0,
	}
	for _, st := range states {
		level := st.PersonalizationLevel
		if level == "" {
			level = lifecycle.PersonalizationOnboarding
		}
		dist[level]++
	}
	return dist, nil
}
