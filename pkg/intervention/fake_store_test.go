package intervention

import (
	"context"
	"sync"

	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

type fakeStore struct {
	mu          sync.Mutex
	states      map[string]*lifecycle.LifecycleState
	profiles    map[string]*lifecycle.UserProfile
	experiments map[string]*experiment.Experiment
	assignments []*experiment.Assignment
	deliveries  []*DeliveryLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:      make(map[string]*lifecycle.LifecycleState),
		profiles:    make(map[string]*lifecycle.UserProfile),
		experiments: make(map[string]*experiment.Experiment),
	}
}

func (s *fakeStore) GetLifecycleState(_ context.Context, userID string) (*lifecycle.LifecycleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *fakeStore) UpdateLifecycleState(_ context.Context, state *lifecycle.LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.states[state.UserID] = &cp
	return nil
}

func (s *fakeStore) GetUserProfile(_ context.Context, userID string) (*lifecycle.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) ListActiveExperiments(_ context.Context, state lifecycle.State) ([]*experiment.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*experiment.Experiment
	for _, exp := range s.experiments {
		if exp.Status == experiment.StatusActive && exp.LifecycleState == state {
			cp := *exp
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAssignments(_ context.Context, experimentID, userID string) ([]*experiment.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*experiment.Assignment
	for _, a := range s.assignments {
		if a.ExperimentID == experimentID && a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateAssignment(_ context.Context, a *experiment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.assignments {
		if existing.ID == a.ID {
			cp := *a
			s.assignments[i] = &cp
			return nil
		}
	}
	return nil
}

func (s *fakeStore) CreateDeliveryLog(_ context.Context, log *DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *log
	s.deliveries = append(s.deliveries, &cp)
	return nil
}

func (s *fakeStore) UpdateDeliveryLog(_ context.Context, log *DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.deliveries {
		if existing.ID == log.ID {
			cp := *log
			s.deliveries[i] = &cp
			return nil
		}
	}
	return nil
}

func (s *fakeStore) ListDeliveryLogs(_ context.Context, userID, interventionID string) ([]*DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DeliveryLog
	for _, l := range s.deliveries {
		if l.UserID == userID && l.InterventionID == interventionID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}
