package intervention

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

// Store is the persistence surface the intervention components depend on.
// Lookups for absent records return (nil, nil).
type Store interface {
	GetLifecycleState(ctx context.Context, userID string) (*lifecycle.LifecycleState, error)
	UpdateLifecycleState(ctx context.Context, state *lifecycle.LifecycleState) error
	GetUserProfile(ctx context.Context, userID string) (*lifecycle.UserProfile, error)

	ListActiveExperiments(ctx context.Context, state lifecycle.State) ([]*experiment.Experiment, error)
	ListAssignments(ctx context.Context, experimentID, userID string) ([]*experiment.Assignment, error)
	UpdateAssignment(ctx context.Context, a *experiment.Assignment) error

	CreateDeliveryLog(ctx context.Context, log *DeliveryLog) error
	UpdateDeliveryLog(ctx context.Context, log *DeliveryLog) error
	ListDeliveryLogs(ctx context.Context, userID, interventionID string) ([]*DeliveryLog, error)
}

// Selector decides what a user should be shown for their current lifecycle
// state: an unshown experiment variant wins over the static playbook; the
// playbook is filtered by the suppression set and per-intervention cooldowns.
type Selector struct {
	store    Store
	playbook Playbook

	now func() time.Time
}

// NewSelector creates a selector over the given playbook.
func NewSelector(store Store, playbook Playbook) *Selector {
	return &Selector{
		store:    store,
		playbook: playbook,
		now:      time.Now,
	}
}

// Select returns the interventions eligible for the user right now. A user
// with no lifecycle record gets an empty selection.
func (s *Selector) Select(ctx context.Context, userID string) (*Selection, error) {
	state, err := s.store.GetLifecycleState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get lifecycle state: %w", err)
	}
	if state == nil {
		return &Selection{Interventions: []Intervention{}}, nil
	}
	return s.selectForState(ctx, state)
}

func (s *Selector) selectForState(ctx context.Context, state *lifecycle.LifecycleState) (*Selection, error) {
	if sel, err := s.experimentSelection(ctx, state); err != nil {
		return nil, err
	} else if sel != nil {
		return sel, nil
	}

	entry, ok := s.playbook[state.CurrentState]
	if !ok {
		return &Selection{State: state.CurrentState, Interventions: []Intervention{}}, nil
	}

	now := s.now()
	eligible := make([]Intervention, 0, len(entry.Interventions))
	for _, iv := range entry.Interventions {
		if Eligible(&iv, state, now) {
			eligible = append(eligible, iv)
		}
	}

	return &Selection{
		State:         state.CurrentState,
		PlaybookName:  entry.Name,
		Tone:          entry.Tone,
		Interventions: eligible,
	}, nil
}

// experimentSelection returns a variant selection if the user holds an
// unshown assignment for an active experiment targeting the current state,
// nil otherwise. Experiments are scanned in id order; the first unshown
// assignment wins, so its variant keeps overriding the playbook until the
// intervention_shown flag flips.
func (s *Selector) experimentSelection(ctx context.Context, state *lifecycle.LifecycleState) (*Selection, error) {
	exps, err := s.store.ListActiveExperiments(ctx, state.CurrentState)
	if err != nil {
		return nil, fmt.Errorf("list active experiments: %w", err)
	}
	sort.Slice(exps, func(i, j int) bool { return exps[i].ID < exps[j].ID })

	for _, exp := range exps {
		assignments, err := s.store.ListAssignments(ctx, exp.ID, state.UserID)
		if err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		assignment := experiment.Authoritative(assignments)
		if assignment == nil || assignment.InterventionShown {
			continue
		}

		variant := variantByID(exp, assignment.VariantID)
		if variant == nil {
			continue
		}

		return &Selection{
			State: state.CurrentState,
			Tone:  "enabling",
			Interventions: []Intervention{{
				ID:          fmt.Sprintf("experiment_%s_%s", exp.ID, variant.VariantID),
				Type:        "experiment_variant",
				Message:     variant.Message,
				ContentType: "experiment",
				Surface:     variant.Surface,
			}},
			IsExperiment: true,
			ExperimentID: exp.ID,
			AssignmentID: assignment.ID,
			VariantID:    variant.VariantID,
		}, nil
	}
	return nil, nil
}

func variantByID(exp *experiment.Experiment, variantID string) *experiment.Variant {
	for i := range exp.Variants {
		if exp.Variants[i].VariantID == variantID {
			return &exp.Variants[i]
		}
	}
	return nil
}

// Eligible reports whether a playbook intervention may be shown: not in the
// suppression set, and past its cooldown if its most recent entry was shown.
func Eligible(iv *Intervention, state *lifecycle.LifecycleState, now time.Time) bool {
	if state.IsSuppressed(iv.ID) {
		return false
	}
	last := state.LastIntervention(iv.ID)
	if last == nil || !last.Shown {
		return true
	}
	daysSince := int(now.Sub(last.TriggeredAt).Hours() / 24)
	return daysSince >= iv.MaxFrequencyDays
}
