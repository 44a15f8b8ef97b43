package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/common"
	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
	"github.com/interact-platform/lifecycle-engine/pkg/rules"
)

const defaultRequestTimeout = 10 * time.Second

// ResponseError represent the response error struct
type ResponseError struct {
	Message string `json:"message"`
}

// LifecycleStore is the persistence surface the lifecycle handler needs
// beyond the tracker itself.
type LifecycleStore interface {
	GetLifecycleState(ctx context.Context, userID string) (*lifecycle.LifecycleState, error)
	SaveUserProfile(ctx context.Context, profile *lifecycle.UserProfile) error
	RecordActivity(ctx context.Context, rec *rules.ActivityRecord) error
}

// LifecycleHandler exposes lifecycle recomputation and the user profile
// surface over HTTP.
type LifecycleHandler struct {
	tracker   *lifecycle.Tracker
	assigner  *experiment.Assigner
	store     LifecycleStore
	validator *validator.Validate
	timeout   time.Duration
}

func NewLifecycleHandler(tracker *lifecycle.Tracker, assigner *experiment.Assigner, store LifecycleStore) *LifecycleHandler {
	return &LifecycleHandler{
		tracker:   tracker,
		assigner:  assigner,
		store:     store,
		validator: validator.New(),
		timeout:   defaultRequestTimeout,
	}
}

// GetState returns the user's lifecycle state, creating it on first sight.
func (h *LifecycleHandler) GetState(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Lifecycle.GetState")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	state, created, err := h.tracker.GetOrCreate(ctx, c.Param("user_id"))
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to get lifecycle state: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"state":   state,
		"created": created,
	})
}

// Recompute recalculates churn risk and state for one user, then checks the
// (possibly new) state against active experiments.
func (h *LifecycleHandler) Recompute(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Lifecycle.Recompute")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	userID := c.Param("user_id")
	result, err := h.tracker.Touch(ctx, userID)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to recompute lifecycle state for %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	state, err := h.store.GetLifecycleState(ctx, userID)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to reload lifecycle state for %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	assignments, err := h.assigner.CheckAndAssign(ctx, state)
	if err != nil {
		// Assignment failures must not mask a successful recompute.
		logrus.Errorf("experiment check failed for %s: %v", userID, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"result":          result,
		"new_assignments": len(assignments),
	})
}

type ProfileRequest struct {
	Tier                 string   `json:"tier,omitempty"`
	PhoneNumber          string   `json:"phone_number,omitempty"`
	PreferredChannels    []string `json:"preferred_channels,omitempty" validate:"omitempty,dive,oneof=email sms push in_app"`
	Activated            bool     `json:"activated"`
	WeekStreak           int      `json:"week_streak" validate:"gte=0"`
	WeeklySessions       int      `json:"weekly_sessions" validate:"gte=0"`
	SavedItems           int      `json:"saved_items" validate:"gte=0"`
	PortfolioAdjustments int      `json:"portfolio_adjustments" validate:"gte=0"`
	SocialInteractions   int      `json:"social_interactions" validate:"gte=0"`
	UnlockedTiers        int      `json:"unlocked_tiers" validate:"gte=0"`
	LastActivityAt       string   `json:"last_activity_at,omitempty"`
	CreatedAt            string   `json:"created_at,omitempty"`
}

// UpsertProfile stores the profile snapshot churn scoring reads from.
func (h *LifecycleHandler) UpsertProfile(c echo.Context) error {
	var req ProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	profile := &lifecycle.UserProfile{
		UserID:               c.Param("user_id"),
		Tier:                 req.Tier,
		PhoneNumber:          req.PhoneNumber,
		PreferredChannels:    req.PreferredChannels,
		Activated:            req.Activated,
		WeekStreak:           req.WeekStreak,
		WeeklySessions:       req.WeeklySessions,
		SavedItems:           req.SavedItems,
		PortfolioAdjustments: req.PortfolioAdjustments,
		SocialInteractions:   req.SocialInteractions,
		UnlockedTiers:        req.UnlockedTiers,
	}
	for _, f := range []struct {
		raw  string
		dest *time.Time
	}{
		{req.LastActivityAt, &profile.LastActivityAt},
		{req.CreatedAt, &profile.CreatedAt},
	} {
		if f.raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, f.raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "timestamps must be RFC3339: " + err.Error()})
		}
		*f.dest = ts
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Lifecycle.UpsertProfile")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	if err := h.store.SaveUserProfile(ctx, profile); err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to save profile for %s: %v", profile.UserID, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, profile)
}

type ActivityRequest struct {
	Kind string `json:"kind" validate:"required,oneof=event_attended recognition_given recognition_received"`
}

// RecordActivity appends one counted domain action and refreshes the user's
// lifecycle state.
func (h *LifecycleHandler) RecordActivity(c echo.Context) error {
	var req ActivityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Lifecycle.RecordActivity")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	userID := c.Param("user_id")
	rec := &rules.ActivityRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      req.Kind,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.RecordActivity(ctx, rec); err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to record activity for %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	if _, err := h.tracker.Touch(ctx, userID); err != nil {
		logrus.Errorf("failed to refresh lifecycle state for %s: %v", userID, err)
	}

	return c.JSON(http.StatusCreated, rec)
}
