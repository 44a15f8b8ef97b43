package experiment

import (
	"context"
	"sync"

	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

type fakeStore struct {
	mu          sync.Mutex
	experiments map[string]*Experiment
	assignments []*Assignment
}

func newFakeStore() *fakeStore {
	return &fakeStore{experiments: make(map[string]*Experiment)}
}

func (s *fakeStore) GetExperiment(_ context.Context, id string) (*Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.experiments[id]
	if !ok {
		return nil, nil
	}
	cp := *exp
	return &cp, nil
}

func (s *fakeStore) ListActiveExperiments(_ context.Context, state lifecycle.State) ([]*Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Experiment
	for _, exp := range s.experiments {
		if exp.Status == StatusActive && exp.LifecycleState == state {
			cp := *exp
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateExperiment(_ context.Context, exp *Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *exp
	s.experiments[exp.ID] = &cp
	return nil
}

func (s *fakeStore) ListAssignments(_ context.Context, experimentID, userID string) ([]*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Assignment
	for _, a := range s.assignments {
		if a.ExperimentID == experimentID && a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAssignmentsByExperiment(_ context.Context, experimentID string) ([]*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Assignment
	for _, a := range s.assignments {
		if a.ExperimentID == experimentID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateAssignment(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.assignments = append(s.assignments, &cp)
	return nil
}

func (s *fakeStore) UpdateAssignment(_ context.Context, a *Assignment) error {
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
