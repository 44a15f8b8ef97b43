package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/notify"
)

// recordingNotifier captures in-app sends for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	inApp []notify.Message
}

func (n *recordingNotifier) SendEmail(_ context.Context, _ notify.Message) error { return nil }
func (n *recordingNotifier) SendSMS(_ context.Context, _ notify.Message) error   { return nil }
func (n *recordingNotifier) SendPush(_ context.Context, _ notify.Message) error  { return nil }

func (n *recordingNotifier) SendInApp(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inApp = append(n.inApp, msg)
	return nil
}

func newTestProcessor(store *fakeStore, sources *SourceRegistry) (*Processor, *recordingNotifier) {
	if sources == nil {
		sources = NewSourceRegistry()
		if err := RegisterBuiltinSources(sources); err != nil {
			panic(err)
		}
	}
	ev := NewEvaluator(store, sources)
	ev.now = func() time.Time { return fixedNow }
	aw := NewAwarder(store)
	aw.now = func() time.Time { return fixedNow }
	notifier := &recordingNotifier{}
	logger := logrus.New()
	p := NewProcessor(store, ev, aw, notifier, logger)
	p.now = func() time.Time { return fixedNow }
	return p, notifier
}

func TestProcessor_TriggerAppliesAwards(t *testing.T) {
	store := newFakeStore()
	store.badges["b-regular"] = &Badge{ID: "b-regular", Name: "Regular"}
	store.rules = []*GamificationRule{
		{
			ID: "r-low", RuleName: "Login Points", RuleType: "login",
			PointsReward: 10, Priority: 1, IsActive: true,
		},
		{
			ID: "r-high", RuleName: "Login Badge", RuleType: "login",
			PointsReward: 0, BadgeID: "b-regular", Priority: 5, IsActive: true,
			NotificationSettings: &NotificationSettings{NotifyOnAward: true, Message: "You earned a badge!"},
		},
		{
			ID: "r-other", RuleName: "Other Type", RuleType: "event_attendance",
			PointsReward: 99, Priority: 9, IsActive: true,
		},
	}

	p, notifier := newTestProcessor(store, nil)
	outcome, err := p.Trigger(context.Background(), "login", "u1", Metadata{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(outcome.Awarded) != 2 {
		t.Fatalf("Expected 2 awards, got %d", len(outcome.Awarded))
	}
	// Higher priority rule processes first.
	if outcome.Awarded[0].RuleID != "r-high" {
		t.Errorf("Expected r-high first, got %s", outcome.Awarded[0].RuleID)
	}
	if outcome.Awarded[0].BadgeID != "b-regular" {
		t.Errorf("Expected badge award on r-high, got %q", outcome.Awarded[0].BadgeID)
	}
	if outcome.TotalPoints != 10 {
		t.Errorf("Expected total 10 points, got %d", outcome.TotalPoints)
	}
	if len(store.execs) != 2 {
		t.Errorf("Expected 2 execution records, got %d", len(store.execs))
	}
	if len(notifier.inApp) != 1 {
		t.Errorf("Expected 1 award notification, got %d", len(notifier.inApp))
	}
}

func TestProcessor_ConcurrentOnceTriggersAwardOnce(t *testing.T) {
	store := newFakeStore()
	store.rules = []*GamificationRule{
		{
			ID: "r-once", RuleName: "First Login", RuleType: "login",
			PointsReward: 25, LimitPerUser: LimitOnce, IsActive: true,
		},
	}
	p, _ := newTestProcessor(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Trigger(context.Background(), "login", "u1", Metadata{}); err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(store.execs) != 1 {
		t.Fatalf("Expected a single execution for a once rule, got %d", len(store.execs))
	}
	points, _ := store.GetUserPoints(context.Background(), "u1")
	if points == nil || points.TotalPoints != 25 {
		t.Errorf("Expected a single 25 point award, got %+v", points)
	}
}

func TestProcessor_FailingRuleDoesNotBlockSiblings(t *testing.T) {
	store := newFakeStore()
	store.rules = []*GamificationRule{
		{
			ID: "r-broken", RuleName: "Broken", RuleType: "custom",
			TriggerConditions: &TriggerConditions{Threshold: 1},
			PointsReward:      10, Priority: 9, IsActive: true,
		},
		{
			ID: "r-fine", RuleName: "Fine", RuleType: "custom",
			PointsReward: 5, Priority: 1, IsActive: true,
		},
	}

	sources := NewSourceRegistry()
	err := sources.Register("custom", func(_ context.Context, _ Store, _ string, _ time.Time, _ Metadata) (int, error) {
		return 0, errors.New("source exploded")
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	p, _ := newTestProcessor(store, sources)
	outcome, err := p.Trigger(context.Background(), "custom", "u1", Metadata{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(outcome.Failed) != 1 || outcome.Failed[0].RuleID != "r-broken" {
		t.Fatalf("Expected r-broken in failed list, got %+v", outcome.Failed)
	}
	if len(outcome.Awarded) != 1 || outcome.Awarded[0].RuleID != "r-fine" {
		t.Fatalf("Expected r-fine to still award, got %+v", outcome.Awarded)
	}
}

func TestProcessor_UpdatesRuleStats(t *testing.T) {
	store := newFakeStore()
	store.rules = []*GamificationRule{
		{ID: "r1", RuleName: "Login", RuleType: "login", PointsReward: 10, IsActive: true},
	}

	p, _ := newTestProcessor(store, nil)
	if _, err := p.Trigger(context.Background(), "login", "u1", Metadata{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if store.rules[0].TimesTriggered != 1 {
		t.Errorf("Expected times_triggered 1, got %d", store.rules[0].TimesTriggered)
	}
	if !store.rules[0].LastTriggered.Equal(fixedNow) {
		t.Errorf("Expected last_triggered %v, got %v", fixedNow, store.rules[0].LastTriggered)
	}
}
