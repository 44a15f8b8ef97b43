package rules

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CounterSource produces the activity count a rule's trigger conditions are
// compared against. since is the start of the rule's trailing window; a zero
// since means all time. Most sources just count activity records, but a
// source may weigh or filter them.
type CounterSource func(ctx context.Context, st Store, userID string, since time.Time, md Metadata) (int, error)

// SourceRegistry maps rule types to counter sources.
// It provides thread-safe registration and lookup.
type SourceRegistry struct {
	sources map[string]CounterSource
	mu      sync.RWMutex
}

// NewSourceRegistry creates a new empty counter source registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{
		sources: make(map[string]CounterSource),
	}
}

// Register adds a counter source for a rule type.
// Returns an error if the rule type already has a source.
func (r *SourceRegistry) Register(ruleType string, src CounterSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[ruleType]; exists {
		return fmt.Errorf("counter source for %s already registered", ruleType)
	}

	r.sources[ruleType] = src
	return nil
}

// Get returns the counter source for a rule type, falling back to the
// metadata source when no dedicated source is registered. New rule types
// therefore work out of the box as long as the trigger carries a count.
func (r *SourceRegistry) Get(ruleType string) CounterSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if src, ok := r.sources[ruleType]; ok {
		return src
	}
	return MetadataCountSource
}

// Count returns the number of registered counter sources.
func (r *SourceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sources)
}

// MetadataCountSource is the fallback source: it trusts the count supplied
// by the trigger metadata, defaulting to 1 so count-less triggers still
// satisfy threshold-1 rules.
func MetadataCountSource(_ context.Context, _ Store, _ string, _ time.Time, md Metadata) (int, error) {
	if md.Count > 0 {
		return md.Count, nil
	}
	return 1, nil
}

// ActivityKindSource builds a source that counts the user's activity records
// of one kind from since onward.
func ActivityKindSource(kind string) CounterSource {
	return func(ctx context.Context, st Store, userID string, since time.Time, md Metadata) (int, error) {
		records, err := st.ListActivity(ctx, userID, kind)
		if err != nil {
			return 0, fmt.Errorf("list %s activity: %w", kind, err)
		}
		count := 0
		for _, rec := range records {
			if since.IsZero() || !rec.CreatedAt.Before(since) {
				count++
			}
		}
		return count, nil
	}
}

// RegisterBuiltinSources wires the counter sources for the rule types the
// engine ships with.
func RegisterBuiltinSources(reg *SourceRegistry) error {
	builtins := map[string]CounterSource{
		"event_attendance":     ActivityKindSource(ActivityEventAttended),
		"recognition_given":    ActivityKindSource(ActivityRecognitionGiven),
		"recognition_received": ActivityKindSource(ActivityRecognitionReceived),
	}
	for ruleType, src := range builtins {
		if err := reg.Register(ruleType, src); err != nil {
			return err
		}
	}
	return nil
}
