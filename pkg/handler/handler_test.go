package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/interact-platform/lifecycle-engine/pkg/analytics"
	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/intervention"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
	"github.com/interact-platform/lifecycle-engine/pkg/notify"
	"github.com/interact-platform/lifecycle-engine/pkg/rules"
	"github.com/interact-platform/lifecycle-engine/pkg/store"
)

// env bundles the handlers wired against a miniredis-backed store.
type env struct {
	store        *store.RedisStore
	lifecycle    *LifecycleHandler
	rules        *RulesHandler
	intervention *InterventionHandler
	experiment   *ExperimentHandler
	analytics    *AnalyticsHandler
}

func testPlaybook() intervention.Playbook {
	return intervention.Playbook{
		lifecycle.StateAtRisk: {
			Name: "At-Risk User Interventions",
			Tone: "supportive",
			Interventions: []intervention.Intervention{
				{
					ID:               "at_risk_value_reminder",
					Type:             "value_reminder",
					Message:          "What changed since you were last active",
					ContentType:      "deals_updated",
					Surface:          "email",
					MaxFrequencyDays: 7,
				},
			},
		},
	}
}

func setupEnv(t *testing.T) (*env, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisStore(client)

	playbook := testPlaybook()
	tracker := lifecycle.NewTracker(st)

	sources := rules.NewSourceRegistry()
	if err := rules.RegisterBuiltinSources(sources); err != nil {
		t.Fatalf("failed to register sources: %v", err)
	}
	notifier := notify.NewLogNotifier(logrus.New())
	processor := rules.NewProcessor(st, rules.NewEvaluator(st, sources), rules.NewAwarder(st), notifier, logrus.New())

	assigner := experiment.NewAssigner(st)
	completer := experiment.NewCompleter(st)

	selector := intervention.NewSelector(st, playbook)
	dispatcher := intervention.NewDispatcher(st, selector, notifier)
	recorder := intervention.NewRecorder(st, playbook)

	return &env{
		store:        st,
		lifecycle:    NewLifecycleHandler(tracker, assigner, st),
		rules:        NewRulesHandler(processor, st),
		intervention: NewInterventionHandler(selector, dispatcher, recorder),
		experiment:   NewExperimentHandler(st, tracker, assigner, completer),
		analytics:    NewAnalyticsHandler(analytics.NewReporter(st)),
	}, mr
}

func doJSON(t *testing.T, h echo.HandlerFunc, method, path, body string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)

	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestHandlers_EmitSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	env, mr := setupEnv(t)
	defer mr.Close()

	rec := doJSON(t, env.lifecycle.GetState, http.MethodGet, "/v1/users/u1/lifecycle", "", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "Lifecycle.GetState" {
		t.Errorf("Expected span Lifecycle.GetState, got %q", spans[0].Name)
	}

	// A failed store call marks the span as errored.
	exporter.Reset()
	mr.Close()
	rec = doJSON(t, env.lifecycle.GetState, http.MethodGet, "/v1/users/u1/lifecycle", "", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 after store shutdown, got %d", rec.Code)
	}
	spans = exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("Expected error status on span, got %v", spans[0].Status.Code)
	}
}

func TestRulesHandler_TriggerAwardsPoints(t *testing.T) {
	env, mr := setupEnv(t)
	defer mr.Close()
	ctx := context.Background()

	rec := doJSON(t, env.rules.CreateRule, http.MethodPost, "/v1/rules",
		`{"rule_name":"Event Attendance","rule_type":"event_attendance","points_reward":25}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("CreateRule status = %d, expected 201: %s", rec.Code, rec.Body.String())
	}

	if err := env.store.RecordActivity(ctx, &rules.ActivityRecord{
		ID: "a1", UserID: "u1", Kind: rules.ActivityEventAttended, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}

	rec = doJSON(t, env.rules.Trigger, http.MethodPost, "/v1/rules/trigger",
		`{"rule_type":"event_attendance","user_id":"u1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Trigger status = %d: %s", rec.Code, rec.Body.String())
	}

	var outcome rules.TriggerOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	if outcome.TotalPoints != 25 {
		t.Errorf("TotalPoints = %d, expected 25", outcome.TotalPoints)
	}
	if len(outcome.Awarded) != 1 {
		t.Fatalf("Expected 1 award, got %d", len(outcome.Awarded))
	}

	rec = doJSON(t, env.rules.GetPoints, http.MethodGet, "/v1/users/u1/points", "", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("GetPoints status = %d", rec.Code)
	}
	var pointsResp struct {
		Points rules.UserPoints          `json:"points"`
		Ledger []rules.PointsLedgerEntry `json:"ledger"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pointsResp); err != nil {
		t.Fatalf("failed to decode points: %v", err)
	}
	if pointsResp.Points.TotalPoints != 25 {
		t.Errorf("TotalPoints = %d, expected 25", pointsResp.Points.TotalPoints)
	}
	if len(pointsResp.Ledger) != 1 {
		t.Errorf("Expected 1 ledger entry, got %d", len(pointsResp.Ledger))
	}
}

func TestRulesHandler_TriggerRejectsMissingFields(t *testing.T) {
	env, mr := setupEnv(t)
	defer mr.Close()

	rec := doJSON(t, env.rules.Trigger, http.MethodPost, "/v1/rules/trigger", `{"user_id":"u1"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing rule_type, got %d", rec.Code)
	}
}

func TestLifecycleHandler_RecomputeFlow(t *testing.T) {
	env, mr := setupEnv(t)
	defer mr.Close()

	// Profile with a 10-day-old last activity lands the user at elevated risk.
	lastActivity := time.Now().UTC().AddDate(0, 0, -10).Format(time.RFC3339)
	rec := doJSON(t, env.lifecycle.UpsertProfile, http.MethodPut, "/v1/users/u1/profile",
		`{"activated":true,"last_activity_at":"`+lastActivity+`"}`, map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("UpsertProfile status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, env.lifecycle.Recompute, http.MethodPost, "/v1/users/u1/lifecycle/recompute", "", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Recompute status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Result lifecycle.TouchResult `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode recompute response: %v", err)
	}
	if resp.Result.UserID != "u1" {
		t.Errorf("UserID = %q, expected u1", resp.Result.UserID)
	}
	if resp.Result.ChurnRiskScore <= 0 {
		t.Errorf("Expected positive churn risk, got %d", resp.Result.ChurnRiskScore)
	}

	rec = doJSON(t, env.lifecycle.GetState, http.MethodGet, "/v1/users/u1/lifecycle", "", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("GetState status = %d", rec.Code)
	}
}

func TestLifecycleHandler_RejectsBadTimestamp(t *testing.T) {
	env, mr := setupEnv(t)
	defer mr.Close()

	rec := doJSON(t, env.lifecycle.UpsertProfile, http.MethodPut, "/v1/users/u1/profile",
		`{"last_activity_at":"yesterday"}`, map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad timestamp, got %d", rec.Code)
	}
}

func TestInterventionHandler_DispatchAndConversion(t *testing.T) {
	env, mr := setupEnv(t)
	defer mr.Close()
	ctx := context.Background()

	if err := env.store.CreateLifecycleState(ctx, &lifecycle.LifecycleState{
		UserID:         "u1",
		CurrentState:   lifecycle.StateAtRisk,
		StateEnteredAt: time.Now().UTC().AddDate(0, 0, -2),
		ChurnRiskScore: 60,
	}); err != nil {
		t.Fatalf("CreateLifecycleState() error = %v", err)
	}

	rec := doJSON(t, env.intervention.List, http.MethodGet, "/v1/users/u1/interventions", "", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("List status = %d: %s", rec.Code, rec.Body.String())
	}
	var selection intervention.Selection
	if err := json.Unmarshal(rec.Body.Bytes(), &selection); err != nil {
		t.Fatalf("failed to decode selection: %v", err)
	}
	if len(selection.Interventions) != 1 {
		t.Fatalf("Expected 1 eligible intervention, got %d", len(selection.Interventions))
	}

	rec = doJSON(t, env.intervention.Dispatch, http.MethodPost, "/v1/users/u1/interventions/dispatch", "", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Dispatch status = %d: %s", rec.Code, rec.Body.String())
	}
	var log intervention.DeliveryLog
	if err := json.Unmarshal(rec.Body.Bytes(), &log); err != nil {
		t.Fatalf("failed to decode delivery log: %v", err)
	}
	if log.Status != intervention.DeliverySent {
		t.Errorf("Status = %q, expected sent", log.Status)
	}
	if log.Channel != intervention.ChannelEmail {
		t.Errorf("Channel = %q, expected email", log.Channel)
	}

	rec = doJSON(t, env.intervention.Conversion, http.MethodPost, "/v1/conversions",
		`{"user_id":"u1","intervention_id":"at_risk_value_reminder","event_type":"purchase","event_value":19.99}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Conversion status = %d: %s", rec.Code, rec.Body.String())
	}
	var result intervention.ConversionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode conversion result: %v", err)
	}
	if !result.Matched {
		t.Error("Expected conversion to match the dispatched delivery")
	}

	// A second dispatch inside the cooldown window has nothing to send.
	rec = doJSON(t, env.intervention.Dispatch, http.MethodPost, "/v1/users/u1/interventions/dispatch", "", map[string]string{"user_id": "u1"})
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on cooldown, got %d", rec.Code)
	}
}

func TestExperimentHandler_CreateCompleteLifecycle(t *testing.T) {
	env, mr := setupEnv(t)
	defer mr.Close()

	rec := doJSON(t, env.experiment.Create, http.MethodPost, "/v1/experiments",
		`{"name":"Reminder copy test","lifecycle_state":"at_risk","activate":true,"variants":[
			{"variant_id":"control","message":"old copy","surface":"banner","traffic_allocation_percent":50},
			{"variant_id":"treatment","message":"new copy","surface":"banner","traffic_allocation_percent":50}
		]}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create status = %d: %s", rec.Code, rec.Body.String())
	}
	var exp experiment.Experiment
	if err := json.Unmarshal(rec.Body.Bytes(), &exp); err != nil {
		t.Fatalf("failed to decode experiment: %v", err)
	}
	if exp.Status != experiment.StatusActive {
		t.Errorf("Status = %q, expected active", exp.Status)
	}

	rec = doJSON(t, env.experiment.Get, http.MethodGet, "/v1/experiments/"+exp.ID, "", map[string]string{"experiment_id": exp.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("Get status = %d", rec.Code)
	}

	rec = doJSON(t, env.experiment.Complete, http.MethodPost, "/v1/experiments/"+exp.ID+"/complete", "", map[string]string{"experiment_id": exp.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("Complete status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, env.experiment.Complete, http.MethodPost, "/v1/experiments/missing/complete", "", map[string]string{"experiment_id": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown experiment, got %d", rec.Code)
	}
}

func TestExperimentHandler_RejectsUnknownState(t *testing.T) {
	env, mr := setupEnv(t)
	defer mr.Close()

	rec := doJSON(t, env.experiment.Create, http.MethodPost, "/v1/experiments",
		`{"name":"bad","lifecycle_state":"zombie","variants":[{"variant_id":"v1","traffic_allocation_percent":100}]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown lifecycle state, got %d", rec.Code)
	}
}

func TestAnalyticsHandler_DistributionAndTrendsValidation(t *testing.T) {
	env, mr := setupEnv(t)
	defer mr.Close()
	ctx := context.Background()

	for _, seed := range []struct {
		userID string
		state  lifecycle.State
		risk   int
	}{
		{"u1", lifecycle.StateEngaged, 20},
		{"u2", lifecycle.StateAtRisk, 60},
	} {
		if err := env.store.CreateLifecycleState(ctx, &lifecycle.LifecycleState{
			UserID:         seed.userID,
			CurrentState:   seed.state,
			StateEnteredAt: time.Now().UTC(),
			ChurnRiskScore: seed.risk,
		}); err != nil {
			t.Fatalf("CreateLifecycleState() error = %v", err)
		}
	}

	rec := doJSON(t, env.analytics.Distribution, http.MethodGet, "/v1/analytics/lifecycle/distribution", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Distribution status = %d: %s", rec.Code, rec.Body.String())
	}
	var dist analytics.StateDistribution
	if err := json.Unmarshal(rec.Body.Bytes(), &dist); err != nil {
		t.Fatalf("failed to decode distribution: %v", err)
	}
	if dist.TotalUsers != 2 {
		t.Errorf("TotalUsers = %d, expected 2", dist.TotalUsers)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/churn/trends?days=abc", nil)
	w := httptest.NewRecorder()
	c := e.NewContext(req, w)
	if err := env.analytics.Trends(c); err != nil {
		t.Fatalf("Trends returned error: %v", err)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric days, got %d", w.Code)
	}
}
