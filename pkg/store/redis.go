// Package store provides the Redis-backed persistence layer. Entities are
// stored as JSON documents with set-based indexes for the list operations;
// there are no native transactions, so higher layers own the concurrency
// policy (keyed locks, earliest-record-wins repair).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/intervention"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
	"github.com/interact-platform/lifecycle-engine/pkg/rules"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "lifecycle_engine:"

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Host     string
	Port     string
	Password string
}

// NewRedisClient connects to Redis with exponential-backoff retry.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Host + ":" + opts.Port,
		Password:     opts.Password,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	err := backoff.Retry(
		func() error {
			if _, err := client.Ping(ctx).Result(); err != nil {
				logrus.Warnf("Redis connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		backoff.WithMaxRetries(b, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s:%s: %w", opts.Host, opts.Port, err)
	}

	logrus.Infof("connected to Redis at %s:%s", opts.Host, opts.Port)
	return client, nil
}

// RedisStore implements the persistence interfaces of every domain package.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an established Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func key(parts ...string) string {
	out := KeyPrefix
	for i, p := range parts {
		if i > 0 {
			out += ":"
		}
		out += p
	}
	return out
}

// getDoc unmarshals one JSON document; absent keys yield (false, nil).
func (s *RedisStore) getDoc(ctx context.Context, k string, out any) (bool, error) {
	data, err := s.client.Get(ctx, k).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", k, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", k, err)
	}
	return true, nil
}

func (s *RedisStore) setDoc(ctx context.Context, k string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", k, err)
	}
	if err := s.client.Set(ctx, k, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", k, err)
	}
	return nil
}

// setDocIndexed writes the document and adds id to the index set.
func (s *RedisStore) setDocIndexed(ctx context.Context, k, indexKey, id string, doc any) error {
	if err := s.setDoc(ctx, k, doc); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, indexKey, id).Err(); err != nil {
		return fmt.Errorf("failed to index %s: %w", k, err)
	}
	return nil
}

func (s *RedisStore) pushDoc(ctx context.Context, k string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", k, err)
	}
	if err := s.client.RPush(ctx, k, data).Err(); err != nil {
		return fmt.Errorf("failed to push %s: %w", k, err)
	}
	return nil
}

func listDocs[T any](ctx context.Context, s *RedisStore, k string) ([]*T, error) {
	raw, err := s.client.LRange(ctx, k, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to range %s: %w", k, err)
	}
	out := make([]*T, 0, len(raw))
	for _, item := range raw {
		var doc T
		if err := json.Unmarshal([]byte(item), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s entry: %w", k, err)
		}
		out = append(out, &doc)
	}
	return out, nil
}

func docsByIndex[T any](ctx context.Context, s *RedisStore, indexKey string, keyFor func(id string) string) ([]*T, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read index %s: %w", indexKey, err)
	}
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		var doc T
		found, err := s.getDoc(ctx, keyFor(id), &doc)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, &doc)
		}
	}
	return out, nil
}

// --- lifecycle ---

func (s *RedisStore) GetLifecycleState(ctx context.Context, userID string) (*lifecycle.LifecycleState, error) {
	var state lifecycle.LifecycleState
	found, err := s.getDoc(ctx, key("state", userID), &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

func (s *RedisStore) CreateLifecycleState(ctx context.Context, state *lifecycle.LifecycleState) error {
	return s.setDocIndexed(ctx, key("state", state.UserID), key("state_index"), state.UserID, state)
}

func (s *RedisStore) UpdateLifecycleState(ctx context.Context, state *lifecycle.LifecycleState) error {
	return s.setDocIndexed(ctx, key("state", state.UserID), key("state_index"), state.UserID, state)
}

func (s *RedisStore) ListLifecycleStates(ctx context.Context) ([]*lifecycle.LifecycleState, error) {
	return docsByIndex[lifecycle.LifecycleState](ctx, s, key("state_index"), func(id string) string {
		return key("state", id)
	})
}

func (s *RedisStore) GetUserProfile(ctx context.Context, userID string) (*lifecycle.UserProfile, error) {
	var profile lifecycle.UserProfile
	found, err := s.getDoc(ctx, key("profile", userID), &profile)
	if err != nil || !found {
		return nil, err
	}
	return &profile, nil
}

func (s *RedisStore) SaveUserProfile(ctx context.Context, profile *lifecycle.UserProfile) error {
	return s.setDoc(ctx, key("profile", profile.UserID), profile)
}

// --- rules ---

func (s *RedisStore) CreateRule(ctx context.Context, rule *rules.GamificationRule) error {
	if err := s.setDocIndexed(ctx, key("rule", rule.ID), key("rule_index"), rule.ID, rule); err != nil {
		return err
	}
	return s.client.SAdd(ctx, key("rules_by_type", rule.RuleType), rule.ID).Err()
}

func (s *RedisStore) UpdateRule(ctx context.Context, rule *rules.GamificationRule) error {
	return s.CreateRule(ctx, rule)
}

func (s *RedisStore) GetRule(ctx context.Context, ruleID string) (*rules.GamificationRule, error) {
	var rule rules.GamificationRule
	found, err := s.getDoc(ctx, key("rule", ruleID), &rule)
	if err != nil || !found {
		return nil, err
	}
	return &rule, nil
}

func (s *RedisStore) ListActiveRules(ctx context.Context, ruleType string) ([]*rules.GamificationRule, error) {
	all, err := docsByIndex[rules.GamificationRule](ctx, s, key("rules_by_type", ruleType), func(id string) string {
		return key("rule", id)
	})
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, r := range all {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func (s *RedisStore) ListRuleExecutions(ctx context.Context, ruleID, userID string) ([]*rules.RuleExecution, error) {
	return listDocs[rules.RuleExecution](ctx, s, key("rule_exec", ruleID, userID))
}

func (s *RedisStore) CreateRuleExecution(ctx context.Context, exec *rules.RuleExecution) error {
	return s.pushDoc(ctx, key("rule_exec", exec.RuleID, exec.UserID), exec)
}

func (s *RedisStore) GetUserPoints(ctx context.Context, userID string) (*rules.UserPoints, error) {
	var points rules.UserPoints
	found, err := s.getDoc(ctx, key("points", userID), &points)
	if err != nil || !found {
		return nil, err
	}
	return &points, nil
}

func (s *RedisStore) SaveUserPoints(ctx context.Context, points *rules.UserPoints) error {
	return s.setDoc(ctx, key("points", points.UserID), points)
}

func (s *RedisStore) AppendPointsLedger(ctx context.Context, entry *rules.PointsLedgerEntry) error {
	return s.pushDoc(ctx, key("ledger", entry.UserID), entry)
}

func (s *RedisStore) ListPointsLedger(ctx context.Context, userID string) ([]*rules.PointsLedgerEntry, error) {
	return listDocs[rules.PointsLedgerEntry](ctx, s, key("ledger", userID))
}

func (s *RedisStore) GetBadge(ctx context.Context, badgeID string) (*rules.Badge, error) {
	var badge rules.Badge
	found, err := s.getDoc(ctx, key("badge", badgeID), &badge)
	if err != nil || !found {
		return nil, err
	}
	return &badge, nil
}

func (s *RedisStore) UpdateBadge(ctx context.Context, badge *rules.Badge) error {
	return s.setDoc(ctx, key("badge", badge.ID), badge)
}

func (s *RedisStore) HasBadgeAward(ctx context.Context, badgeID, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, key("badge_award", badgeID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check badge award: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) CreateBadgeAward(ctx context.Context, award *rules.BadgeAward) error {
	return s.setDoc(ctx, key("badge_award", award.BadgeID, award.UserID), award)
}

func (s *RedisStore) RecordActivity(ctx context.Context, rec *rules.ActivityRecord) error {
	return s.pushDoc(ctx, key("activity", rec.UserID, rec.Kind), rec)
}

func (s *RedisStore) ListActivity(ctx context.Context, userID, kind string) ([]*rules.ActivityRecord, error) {
	return listDocs[rules.ActivityRecord](ctx, s, key("activity", userID, kind))
}

// --- experiments ---

func (s *RedisStore) CreateExperiment(ctx context.Context, exp *experiment.Experiment) error {
	return s.setDocIndexed(ctx, key("experiment", exp.ID), key("experiment_index"), exp.ID, exp)
}

func (s *RedisStore) UpdateExperiment(ctx context.Context, exp *experiment.Experiment) error {
	return s.CreateExperiment(ctx, exp)
}

func (s *RedisStore) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	var exp experiment.Experiment
	found, err := s.getDoc(ctx, key("experiment", id), &exp)
	if err != nil || !found {
		return nil, err
	}
	return &exp, nil
}

func (s *RedisStore) ListExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	return docsByIndex[experiment.Experiment](ctx, s, key("experiment_index"), func(id string) string {
		return key("experiment", id)
	})
}

func (s *RedisStore) ListActiveExperiments(ctx context.Context, state lifecycle.State) ([]*experiment.Experiment, error) {
	all, err := s.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}
	matching := all[:0]
	for _, exp := range all {
		if exp.Status == experiment.StatusActive && exp.LifecycleState == state {
			matching = append(matching, exp)
		}
	}
	return matching, nil
}

func (s *RedisStore) CreateAssignment(ctx context.Context, a *experiment.Assignment) error {
	if err := s.setDoc(ctx, key("assignment", a.ID), a); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, key("assignment_pair", a.ExperimentID, a.UserID), a.ID).Err(); err != nil {
		return fmt.Errorf("failed to index assignment pair: %w", err)
	}
	if err := s.client.SAdd(ctx, key("assignment_by_exp", a.ExperimentID), a.ID).Err(); err != nil {
		return fmt.Errorf("failed to index assignment: %w", err)
	}
	return nil
}

func (s *RedisStore) UpdateAssignment(ctx context.Context, a *experiment.Assignment) error {
	return s.setDoc(ctx, key("assignment", a.ID), a)
}

func (s *RedisStore) ListAssignments(ctx context.Context, experimentID, userID string) ([]*experiment.Assignment, error) {
	return docsByIndex[experiment.Assignment](ctx, s, key("assignment_pair", experimentID, userID), func(id string) string {
		return key("assignment", id)
	})
}

func (s *RedisStore) ListAssignmentsByExperiment(ctx context.Context, experimentID string) ([]*experiment.Assignment, error) {
	return docsByIndex[experiment.Assignment](ctx, s, key("assignment_by_exp", experimentID), func(id string) string {
		return key("assignment", id)
	})
}

// --- deliveries ---

func (s *RedisStore) CreateDeliveryLog(ctx context.Context, log *intervention.DeliveryLog) error {
	if err := s.setDoc(ctx, key("delivery", log.ID), log); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, key("delivery_pair", log.UserID, log.InterventionID), log.ID).Err(); err != nil {
		return fmt.Errorf("failed to index delivery: %w", err)
	}
	return nil
}

func (s *RedisStore) UpdateDeliveryLog(ctx context.Context, log *intervention.DeliveryLog) error {
	return s.setDoc(ctx, key("delivery", log.ID), log)
}

func (s *RedisStore) ListDeliveryLogs(ctx context.Context, userID, interventionID string) ([]*intervention.DeliveryLog, error) {
	return docsByIndex[intervention.DeliveryLog](ctx, s, key("delivery_pair", userID, interventionID), func(id string) string {
		return key("delivery", id)
	})
}
