package experiment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// Completer closes out experiments and writes their results summary.
type Completer struct {
	store Store

	now func() time.Time
}

// NewCompleter creates a completer backed by the given store.
func NewCompleter(store Store) *Completer {
	return &Completer{store: store, now: time.Now}
}

// Complete marks the experiment completed and computes its descriptive
// results summary. Completing an already-completed experiment returns the
// stored summary unchanged.
func (c *Completer) Complete(ctx context.Context, experimentID string) (*ResultsSummary, error) {
	exp, err := c.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	if exp == nil {
		return nil, fmt.Errorf("experiment %s: %w", experimentID, ErrExperimentNotFound)
	}
	if exp.Status == StatusCompleted && exp.ResultsSummary != nil {
		return exp.ResultsSummary, nil
	}

	assignments, err := c.store.ListAssignmentsByExperiment(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	summary := Summarize(exp, dedupeByUser(assignments), c.now())

	exp.Status = StatusCompleted
	exp.ResultsSummary = summary
	if err := c.store.UpdateExperiment(ctx, exp); err != nil {
		return nil, fmt.Errorf("update experiment: %w", err)
	}

	logrus.Infof("completed experiment %s: %d assigned, winner=%s", experimentID, summary.TotalAssigned, summary.WinnerVariantID)
	return summary, nil
}

// dedupeByUser collapses racing duplicates down to the authoritative
// assignment per user.
func dedupeByUser(assignments []*Assignment) []*Assignment {
	byUser := make(map[string][]*Assignment)
	for _, a := range assignments {
		byUser[a.UserID] = append(byUser[a.UserID], a)
	}
	out := make([]*Assignment, 0, len(byUser))
	for _, group := range byUser {
		out = append(out, Authoritative(group))
	}
	return out
}

// Summarize computes the per-variant stats, the winner, and its improvement
// over the first variant, which acts as the control arm.
func Summarize(exp *Experiment, assignments []*Assignment, completedAt time.Time) *ResultsSummary {
	results := make([]VariantResult, len(exp.Variants))
	index := make(map[string]*VariantResult, len(exp.Variants))
	for i, v := range exp.Variants {
		results[i] = VariantResult{VariantID: v.VariantID}
		index[v.VariantID] = &results[i]
	}

	for _, a := range assignments {
		vr, ok := index[a.VariantID]
		if !ok {
			continue
		}
		vr.Assigned++
		if a.InterventionShown {
			vr.Shown++
		}
		switch a.UserAction {
		case ActionClicked:
			vr.Clicked++
		case ActionDismissed:
			vr.Dismissed++
		}
		if a.UserAction == ActionCompleted || len(a.ConversionEvents) > 0 {
			vr.Conversions++
		}
	}

	summary := &ResultsSummary{
		CompletedAt: completedAt,
		Variants:    results,
	}

	var winner *VariantResult
	for i := range results {
		vr := &results[i]
		if vr.Assigned > 0 {
			vr.ConversionRate = float64(vr.Conversions) / float64(vr.Assigned)
		}
		summary.TotalAssigned += vr.Assigned
		if winner == nil || vr.ConversionRate > winner.ConversionRate {
			winner = vr
		}
	}
	if winner == nil {
		return summary
	}

	summary.WinnerVariantID = winner.VariantID
	if control := &results[0]; control.ConversionRate > 0 {
		summary.ImprovementPercent = (winner.ConversionRate - control.ConversionRate) / control.ConversionRate * 100
	}
	// Descriptive confidence only: grows with sample size, capped below 1.
	summary.Confidence = math.Min(0.99, float64(summary.TotalAssigned)/(float64(summary.TotalAssigned)+30))

	return summary
}
