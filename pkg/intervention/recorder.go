package intervention

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/metrics"
)

// Recorder applies presentation-layer and conversion outcomes back onto the
// lifecycle record, the delivery log, and the owning experiment assignment.
type Recorder struct {
	store    Store
	playbook Playbook

	now func() time.Time
}

// NewRecorder creates a recorder over the given playbook.
func NewRecorder(store Store, playbook Playbook) *Recorder {
	return &Recorder{
		store:    store,
		playbook: playbook,
		now:      time.Now,
	}
}

// RecordShown marks the intervention shown on the user's lifecycle record.
// Unknown users are a no-op.
func (r *Recorder) RecordShown(ctx context.Context, userID, interventionID string) error {
	state, err := r.store.GetLifecycleState(ctx, userID)
	if err != nil {
		return fmt.Errorf("get lifecycle state: %w", err)
	}
	if state == nil {
		return nil
	}

	interventionType := ""
	if iv, _ := r.playbook.Find(interventionID); iv != nil {
		interventionType = iv.Type
	}
	state.MarkInterventionShown(interventionID, interventionType, r.now())
	return r.store.UpdateLifecycleState(ctx, state)
}

// Dismiss suppresses the intervention for the user: it will never be
// selected again unless the suppression is lifted out of band.
func (r *Recorder) Dismiss(ctx context.Context, userID, interventionID string) error {
	state, err := r.store.GetLifecycleState(ctx, userID)
	if err != nil {
		return fmt.Errorf("get lifecycle state: %w", err)
	}
	if state == nil {
		return nil
	}

	state.SuppressIntervention(interventionID)
	if err := r.store.UpdateLifecycleState(ctx, state); err != nil {
		return err
	}
	return r.recordAssignmentAction(ctx, userID, interventionID, experiment.ActionDismissed)
}

// RecordAction records whether the user acted on the intervention.
func (r *Recorder) RecordAction(ctx context.Context, userID, interventionID string, actedOn bool) error {
	state, err := r.store.GetLifecycleState(ctx, userID)
	if err != nil {
		return fmt.Errorf("get lifecycle state: %w", err)
	}
	if state == nil {
		return nil
	}

	state.MarkInterventionAction(interventionID, actedOn)
	if err := r.store.UpdateLifecycleState(ctx, state); err != nil {
		return err
	}
	if !actedOn {
		return nil
	}
	return r.recordAssignmentAction(ctx, userID, interventionID, experiment.ActionClicked)
}

// recordAssignmentAction mirrors a click or dismissal onto the owning
// experiment assignment, when the intervention was delivered by one. A
// recorded conversion is never downgraded.
func (r *Recorder) recordAssignmentAction(ctx context.Context, userID, interventionID string, action experiment.UserAction) error {
	logs, err := r.store.ListDeliveryLogs(ctx, userID, interventionID)
	if err != nil {
		return fmt.Errorf("list delivery logs: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}
	log := mostRecent(logs)
	if log.ExperimentID == "" {
		return nil
	}

	assignments, err := r.store.ListAssignments(ctx, log.ExperimentID, userID)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	assignment := experiment.Authoritative(assignments)
	if assignment == nil || assignment.UserAction == experiment.ActionCompleted {
		return nil
	}

	assignment.UserAction = action
	assignment.ActionAt = r.now()
	return r.store.UpdateAssignment(ctx, assignment)
}

// RecordConversion attributes a downstream action to the most recent
// delivery of the intervention. The conversion event lands on both the
// delivery log and, when the delivery came from an experiment, the owning
// assignment: the two copies serve different read paths. No matching
// delivery is a no-op result, not an error.
func (r *Recorder) RecordConversion(ctx context.Context, userID, interventionID, eventType string, eventValue float64) (*ConversionResult, error) {
	logs, err := r.store.ListDeliveryLogs(ctx, userID, interventionID)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	if len(logs) == 0 {
		return &ConversionResult{Matched: false}, nil
	}

	log := mostRecent(logs)
	now := r.now()
	event := experiment.ConversionEvent{
		EventType:  eventType,
		EventValue: eventValue,
		OccurredAt: now,
	}

	log.ConversionEvents = append(log.ConversionEvents, event)
	log.Status = DeliveryConverted
	log.ActionAt = now
	if err := r.store.UpdateDeliveryLog(ctx, log); err != nil {
		return nil, fmt.Errorf("update delivery log: %w", err)
	}

	result := &ConversionResult{
		Matched:       true,
		DeliveryLogID: log.ID,
		ExperimentID:  log.ExperimentID,
	}

	if log.ExperimentID != "" {
		assignments, err := r.store.ListAssignments(ctx, log.ExperimentID, userID)
		if err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		if assignment := experiment.Authoritative(assignments); assignment != nil {
			assignment.UserAction = experiment.ActionCompleted
			assignment.ActionAt = now
			assignment.ConversionEvents = append(assignment.ConversionEvents, event)
			if err := r.store.UpdateAssignment(ctx, assignment); err != nil {
				return nil, fmt.Errorf("update assignment: %w", err)
			}
			result.AssignmentUpdated = true
		}
	}

	metrics.ConversionsRecorded.WithLabelValues(eventType).Inc()
	logrus.Infof("recorded conversion %s for user %s intervention %s", eventType, userID, interventionID)
	return result, nil
}

// mostRecent returns the delivery log with the latest sent_at, ties broken
// by id so repeated calls pick the same row.
func mostRecent(logs []*DeliveryLog) *DeliveryLog {
	best := logs[0]
	for _, l := range logs[1:] {
		if l.SentAt.After(best.SentAt) || (l.SentAt.Equal(best.SentAt) && l.ID > best.ID) {
			best = l
		}
	}
	return best
}
