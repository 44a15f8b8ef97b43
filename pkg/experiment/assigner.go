package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
	"github.com/interact-platform/lifecycle-engine/pkg/metrics"
)

// ErrExperimentNotFound indicates the referenced experiment does not exist.
var ErrExperimentNotFound = errors.New("experiment not found")

// Store is the persistence surface the experiment service depends on.
// Lookups for absent records return (nil, nil).
type Store interface {
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	ListActiveExperiments(ctx context.Context, state lifecycle.State) ([]*Experiment, error)
	UpdateExperiment(ctx context.Context, exp *Experiment) error

	// ListAssignments returns every assignment for the pair, racing
	// duplicates included.
	ListAssignments(ctx context.Context, experimentID, userID string) ([]*Assignment, error)
	ListAssignmentsByExperiment(ctx context.Context, experimentID string) ([]*Assignment, error)
	CreateAssignment(ctx context.Context, a *Assignment) error
	UpdateAssignment(ctx context.Context, a *Assignment) error
}

// Assigner enrolls users into active experiments, at most once per
// (experiment, user).
type Assigner struct {
	store Store

	now func() time.Time
	// draw returns a uniform number in [0,100) for variant selection.
	draw func() float64
}

// NewAssigner creates an assigner backed by the given store.
func NewAssigner(store Store) *Assigner {
	return &Assigner{
		store: store,
		now:   time.Now,
		draw:  func() float64 { return rand.Float64() * 100 },
	}
}

// CheckAndAssign enrolls the user into every active experiment targeting
// their current lifecycle state and returns the authoritative assignments.
// Experiments are processed in id order so multi-experiment states resolve
// deterministically.
func (a *Assigner) CheckAndAssign(ctx context.Context, state *lifecycle.LifecycleState) ([]*Assignment, error) {
	exps, err := a.store.ListActiveExperiments(ctx, state.CurrentState)
	if err != nil {
		return nil, fmt.Errorf("list active experiments: %w", err)
	}
	sort.Slice(exps, func(i, j int) bool { return exps[i].ID < exps[j].ID })

	var out []*Assignment
	for _, exp := range exps {
		assignment, err := a.assignOne(ctx, exp, state)
		if err != nil {
			return nil, err
		}
		if assignment != nil {
			out = append(out, assignment)
		}
	}
	return out, nil
}

// AssignmentFor returns the authoritative assignment for the pair, or nil.
func (a *Assigner) AssignmentFor(ctx context.Context, experimentID, userID string) (*Assignment, error) {
	existing, err := a.store.ListAssignments(ctx, experimentID, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return Authoritative(existing), nil
}

// assignOne enrolls the user into one experiment. Returns nil when the user
// is filtered out by target criteria; returns the pre-existing assignment
// when one already exists.
func (a *Assigner) assignOne(ctx context.Context, exp *Experiment, state *lifecycle.LifecycleState) (*Assignment, error) {
	existing, err := a.AssignmentFor(ctx, exp.ID, state.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := a.now()
	if !exp.TargetCriteria.Matches(state.DaysInState(now), state.ChurnRiskScore) {
		return nil, nil
	}

	variant := SelectVariant(exp.Variants, a.draw())
	if variant == nil {
		logrus.Errorf("experiment %s has no variants, skipping assignment", exp.ID)
		return nil, nil
	}

	assignment := &Assignment{
		ID:                   uuid.NewString(),
		ExperimentID:         exp.ID,
		UserID:               state.UserID,
		VariantID:            variant.VariantID,
		AssignedAt:           now,
		LifecycleStateBefore: state.CurrentState,
		ChurnRiskBefore:      state.ChurnRiskScore,
		UserAction:           ActionNone,
	}
	if err := a.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}

	// The store has no uniqueness constraint, so a concurrent caller may
	// have created a sibling between the check and the create. Re-read and
	// defer to the earliest record; ours stays inert if it lost.
	authoritative, err := a.AssignmentFor(ctx, exp.ID, state.UserID)
	if err != nil {
		return nil, err
	}
	if authoritative == nil {
		authoritative = assignment
	}
	if authoritative.ID == assignment.ID {
		metrics.ExperimentAssignments.WithLabelValues(string(state.CurrentState)).Inc()
		logrus.Infof("assigned user %s to experiment %s variant %s", state.UserID, exp.ID, variant.VariantID)
	}
	return authoritative, nil
}

// SelectVariant walks the variants in order, accumulating traffic
// allocations, and picks the first variant whose cumulative share exceeds
// the draw. A draw past the total (allocations summing under 100) falls
// back to the first variant.
func SelectVariant(variants []Variant, draw float64) *Variant {
	cumulative := 0.0
	for i := range variants {
		cumulative += variants[i].TrafficAllocationPercent
		if draw < cumulative {
			return &variants[i]
		}
	}
	if len(variants) > 0 {
		return &variants[0]
	}
	return nil
}

// Authoritative resolves a set of racing duplicates to the single earliest
// assignment, ties broken by id.
func Authoritative(assignments []*Assignment) *Assignment {
	var best *Assignment
	for _, a := range assignments {
		if best == nil {
			best = a
			continue
		}
		if a.AssignedAt.Before(best.AssignedAt) ||
			(a.AssignedAt.Equal(best.AssignedAt) && a.ID < best.ID) {
			best = a
		}
	}
	return best
}
