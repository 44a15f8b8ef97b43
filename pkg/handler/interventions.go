package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/common"
	"github.com/interact-platform/lifecycle-engine/pkg/intervention"
)

// InterventionHandler exposes intervention selection, dispatch, and the
// engagement/conversion write-backs.
type InterventionHandler struct {
	selector   *intervention.Selector
	dispatcher *intervention.Dispatcher
	recorder   *intervention.Recorder
	validator  *validator.Validate
	timeout    time.Duration
}

func NewInterventionHandler(selector *intervention.Selector, dispatcher *intervention.Dispatcher, recorder *intervention.Recorder) *InterventionHandler {
	return &InterventionHandler{
		selector:   selector,
		dispatcher: dispatcher,
		recorder:   recorder,
		validator:  validator.New(),
		timeout:    defaultRequestTimeout,
	}
}

// List returns the interventions currently eligible for a user.
func (h *InterventionHandler) List(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Interventions.List")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	selection, err := h.selector.Select(ctx, c.Param("user_id"))
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("intervention selection failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, selection)
}

// Dispatch sends the top eligible intervention over the resolved channel.
// A 204 means nothing was eligible.
func (h *InterventionHandler) Dispatch(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Interventions.Dispatch")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	log, err := h.dispatcher.Dispatch(ctx, c.Param("user_id"))
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("intervention dispatch failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	if log == nil {
		return c.NoContent(http.StatusNoContent)
	}

	return c.JSON(http.StatusOK, log)
}

// Shown records that the client rendered the intervention.
func (h *InterventionHandler) Shown(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Interventions.Shown")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	if err := h.recorder.RecordShown(ctx, c.Param("user_id"), c.Param("intervention_id")); err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// Dismiss suppresses the intervention for this user going forward.
func (h *InterventionHandler) Dismiss(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Interventions.Dismiss")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	if err := h.recorder.Dismiss(ctx, c.Param("user_id"), c.Param("intervention_id")); err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

type ActionRequest struct {
	ActedOn bool `json:"acted_on"`
}

// Action records whether the user acted on the intervention.
func (h *InterventionHandler) Action(c echo.Context) error {
	var req ActionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Interventions.Action")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	if err := h.recorder.RecordAction(ctx, c.Param("user_id"), c.Param("intervention_id"), req.ActedOn); err != nil {
		scope.TraceError(err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

type ConversionRequest struct {
	UserID         string  `json:"user_id" validate:"required"`
	InterventionID string  `json:"intervention_id" validate:"required"`
	EventType      string  `json:"event_type" validate:"required"`
	EventValue     float64 `json:"event_value"`
}

// Conversion attributes a conversion event to the most recent delivery of
// the intervention, and to its experiment assignment when one exists.
func (h *InterventionHandler) Conversion(c echo.Context) error {
	var req ConversionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Conversions.Record")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	result, err := h.recorder.RecordConversion(ctx, req.UserID, req.InterventionID, req.EventType, req.EventValue)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("conversion recording failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}
