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
	"github.com/interact-platform/lifecycle-engine/pkg/rules"
)

// RulesStore is the persistence surface the rules handler needs beyond the
// processor itself.
type RulesStore interface {
	CreateRule(ctx context.Context, rule *rules.GamificationRule) error
	GetRule(ctx context.Context, ruleID string) (*rules.GamificationRule, error)
	UpdateRule(ctx context.Context, rule *rules.GamificationRule) error
	UpdateBadge(ctx context.Context, badge *rules.Badge) error
	GetUserPoints(ctx context.Context, userID string) (*rules.UserPoints, error)
	ListPointsLedger(ctx context.Context, userID string) ([]*rules.PointsLedgerEntry, error)
}

// RulesHandler exposes gamification rule triggering and administration.
type RulesHandler struct {
	processor *rules.Processor
	store     RulesStore
	validator *validator.Validate
	timeout   time.Duration
}

func NewRulesHandler(processor *rules.Processor, store RulesStore) *RulesHandler {
	return &RulesHandler{
		processor: processor,
		store:     store,
		validator: validator.New(),
		timeout:   defaultRequestTimeout,
	}
}

type TriggerRequest struct {
	RuleType    string `json:"rule_type" validate:"required"`
	UserID      string `json:"user_id" validate:"required"`
	ReferenceID string `json:"reference_id,omitempty"`
	Count       int    `json:"count,omitempty" validate:"gte=0"`
}

// Trigger runs every active rule of the given type for one user.
func (h *RulesHandler) Trigger(c echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Rules.Trigger")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	outcome, err := h.processor.Trigger(ctx, req.RuleType, req.UserID, rules.Metadata{
		ReferenceID: req.ReferenceID,
		Count:       req.Count,
	})
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("rule trigger %s failed for %s: %v", req.RuleType, req.UserID, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, outcome)
}

type CreateRuleRequest struct {
	RuleName             string                      `json:"rule_name" validate:"required"`
	RuleType             string                      `json:"rule_type" validate:"required"`
	TriggerConditions    *rules.TriggerConditions    `json:"trigger_conditions,omitempty"`
	PointsReward         int                         `json:"points_reward" validate:"gte=0"`
	BadgeID              string                      `json:"badge_id,omitempty"`
	LimitPerUser         rules.LimitPerUser          `json:"limit_per_user,omitempty"`
	MultiplierRules      *rules.MultiplierRules      `json:"multiplier_rules,omitempty"`
	NotificationSettings *rules.NotificationSettings `json:"notification_settings,omitempty"`
	Priority             int                         `json:"priority"`
	IsActive             *bool                       `json:"is_active,omitempty"`
}

// CreateRule registers a new gamification rule. Rules default to active.
func (h *RulesHandler) CreateRule(c echo.Context) error {
	var req CreateRuleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	rule := &rules.GamificationRule{
		ID:                   uuid.NewString(),
		RuleName:             req.RuleName,
		RuleType:             req.RuleType,
		TriggerConditions:    req.TriggerConditions,
		PointsReward:         req.PointsReward,
		BadgeID:              req.BadgeID,
		LimitPerUser:         req.LimitPerUser,
		MultiplierRules:      req.MultiplierRules,
		NotificationSettings: req.NotificationSettings,
		Priority:             req.Priority,
		IsActive:             true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Rules.CreateRule")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	if err := h.store.CreateRule(ctx, rule); err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to create rule %s: %v", rule.RuleName, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusCreated, rule)
}

type UpdateRuleStatusRequest struct {
	IsActive bool `json:"is_active"`
}

// SetRuleStatus activates or deactivates a rule.
func (h *RulesHandler) SetRuleStatus(c echo.Context) error {
	var req UpdateRuleStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Rules.SetRuleStatus")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	rule, err := h.store.GetRule(ctx, c.Param("rule_id"))
	if err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	if rule == nil {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "rule not found"})
	}

	rule.IsActive = req.IsActive
	if err := h.store.UpdateRule(ctx, rule); err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to update rule %s: %v", rule.ID, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, rule)
}

type CreateBadgeRequest struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
}

// CreateBadge registers a badge so rules can award it.
func (h *RulesHandler) CreateBadge(c echo.Context) error {
	var req CreateBadgeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Rules.CreateBadge")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	badge := &rules.Badge{ID: req.ID, Name: req.Name, Description: req.Description}
	if err := h.store.UpdateBadge(ctx, badge); err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to create badge %s: %v", badge.ID, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusCreated, badge)
}

// GetPoints returns a user's point balance and ledger.
func (h *RulesHandler) GetPoints(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Rules.GetPoints")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	userID := c.Param("user_id")
	points, err := h.store.GetUserPoints(ctx, userID)
	if err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	if points == nil {
		points = &rules.UserPoints{UserID: userID, Level: 1}
	}

	ledger, err := h.store.ListPointsLedger(ctx, userID)
	if err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"points": points,
		"ledger": ledger,
	})
}
