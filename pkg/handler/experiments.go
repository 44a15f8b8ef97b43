package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/common"
	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
)

// ExperimentStore is the persistence surface the experiment handler needs.
type ExperimentStore interface {
	CreateExperiment(ctx context.Context, exp *experiment.Experiment) error
	GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error)
	UpdateExperiment(ctx context.Context, exp *experiment.Experiment) error
	ListExperiments(ctx context.Context) ([]*experiment.Experiment, error)
	ListAssignmentsByExperiment(ctx context.Context, experimentID string) ([]*experiment.Assignment, error)
}

// ExperimentHandler exposes experiment administration and enrollment.
type ExperimentHandler struct {
	store     ExperimentStore
	tracker   *lifecycle.Tracker
	assigner  *experiment.Assigner
	completer *experiment.Completer
	validator *validator.Validate
	timeout   time.Duration
}

func NewExperimentHandler(store ExperimentStore, tracker *lifecycle.Tracker, assigner *experiment.Assigner, completer *experiment.Completer) *ExperimentHandler {
	return &ExperimentHandler{
		store:     store,
		tracker:   tracker,
		assigner:  assigner,
		completer: completer,
		validator: validator.New(),
		timeout:   defaultRequestTimeout,
	}
}

type VariantRequest struct {
	VariantID                string  `json:"variant_id" validate:"required"`
	Message                  string  `json:"message"`
	Surface                  string  `json:"surface"`
	TrafficAllocationPercent float64 `json:"traffic_allocation_percent" validate:"gte=0,lte=100"`
}

type CreateExperimentRequest struct {
	Name           string                     `json:"name" validate:"required"`
	LifecycleState string                     `json:"lifecycle_state" validate:"required"`
	Variants       []VariantRequest           `json:"variants" validate:"required,min=1,dive"`
	TargetCriteria *experiment.TargetCriteria `json:"target_criteria,omitempty"`
	InterventionID string                     `json:"intervention_id,omitempty"`
	Activate       bool                       `json:"activate"`
}

// Create registers an experiment. It starts as a draft unless activate is set.
func (h *ExperimentHandler) Create(c echo.Context) error {
	var req CreateExperimentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	state := lifecycle.State(req.LifecycleState)
	if !state.Valid() {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "unknown lifecycle_state: " + req.LifecycleState})
	}

	exp := &experiment.Experiment{
		ID:             uuid.NewString(),
		Name:           req.Name,
		LifecycleState: state,
		Status:         experiment.StatusDraft,
		TargetCriteria: req.TargetCriteria,
		InterventionID: req.InterventionID,
		CreatedAt:      time.Now().UTC(),
	}
	if req.Activate {
		exp.Status = experiment.StatusActive
	}
	for _, v := range req.Variants {
		exp.Variants = append(exp.Variants, experiment.Variant{
			VariantID:                v.VariantID,
			Message:                  v.Message,
			Surface:                  v.Surface,
			TrafficAllocationPercent: v.TrafficAllocationPercent,
		})
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Experiments.Create")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	if err := h.store.CreateExperiment(ctx, exp); err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to create experiment %s: %v", exp.Name, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusCreated, exp)
}

// Get returns one experiment with its assignment count.
func (h *ExperimentHandler) Get(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Experiments.Get")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	exp, err := h.store.GetExperiment(ctx, c.Param("experiment_id"))
	if err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	if exp == nil {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "experiment not found"})
	}

	assignments, err := h.store.ListAssignmentsByExperiment(ctx, exp.ID)
	if err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"experiment":       exp,
		"assignment_count": len(assignments),
	})
}

// List returns every experiment.
func (h *ExperimentHandler) List(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Experiments.List")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	exps, err := h.store.ListExperiments(ctx)
	if err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, exps)
}

type ExperimentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active"`
}

// SetStatus moves an experiment between draft and active. Completion goes
// through Complete, which also computes results.
func (h *ExperimentHandler) SetStatus(c echo.Context) error {
	var req ExperimentStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Experiments.SetStatus")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	exp, err := h.store.GetExperiment(ctx, c.Param("experiment_id"))
	if err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	if exp == nil {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "experiment not found"})
	}
	if exp.Status == experiment.StatusCompleted {
		return c.JSON(http.StatusConflict, ResponseError{Message: "experiment already completed"})
	}

	exp.Status = experiment.Status(req.Status)
	if err := h.store.UpdateExperiment(ctx, exp); err != nil {
		scope.TraceError(err)
		logrus.Errorf("failed to update experiment %s: %v", exp.ID, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, exp)
}

// Complete finalizes an experiment and returns its results summary.
func (h *ExperimentHandler) Complete(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Experiments.Complete")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	summary, err := h.completer.Complete(ctx, c.Param("experiment_id"))
	if err != nil {
		if errors.Is(err, experiment.ErrExperimentNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: err.Error()})
		}
		scope.TraceError(err)
		logrus.Errorf("failed to complete experiment: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, summary)
}

// CheckAssign enrolls a user into whichever active experiments match their
// current lifecycle state.
func (h *ExperimentHandler) CheckAssign(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Experiments.CheckAssign")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	state, _, err := h.tracker.GetOrCreate(ctx, c.Param("user_id"))
	if err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	assignments, err := h.assigner.CheckAndAssign(ctx, state)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("experiment check failed for %s: %v", state.UserID, err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, assignments)
}
