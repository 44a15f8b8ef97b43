package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/analytics"
	"github.com/interact-platform/lifecycle-engine/pkg/common"
)

const defaultTrendDays = 30

// AnalyticsHandler exposes the read-only rollups.
type AnalyticsHandler struct {
	reporter *analytics.Reporter
	timeout  time.Duration
}

func NewAnalyticsHandler(reporter *analytics.Reporter) *AnalyticsHandler {
	return &AnalyticsHandler{
		reporter: reporter,
		timeout:  defaultRequestTimeout,
	}
}

// Distribution returns the lifecycle state and risk-bucket breakdown.
func (h *AnalyticsHandler) Distribution(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Analytics.Distribution")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	dist, err := h.reporter.StateDistribution(ctx)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("state distribution rollup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, dist)
}

// Trends returns weekly churn-risk buckets over the requested window.
func (h *AnalyticsHandler) Trends(c echo.Context) error {
	days := defaultTrendDays
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "days must be a positive integer"})
		}
		days = parsed
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Analytics.Trends")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	trends, err := h.reporter.ChurnTrends(ctx, days)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("churn trends rollup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, trends)
}

// Effectiveness returns per-intervention-type engagement rates.
func (h *AnalyticsHandler) Effectiveness(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Analytics.Effectiveness")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	eff, err := h.reporter.InterventionEffectiveness(ctx)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("intervention effectiveness rollup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, eff)
}

// Experiments returns the cross-experiment summary.
func (h *AnalyticsHandler) Experiments(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Analytics.Experiments")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	summary, err := h.reporter.ExperimentSummary(ctx)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("experiment summary rollup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

// Cohorts groups users by signup week or month.
func (h *AnalyticsHandler) Cohorts(c echo.Context) error {
	cohortType := analytics.CohortType(c.QueryParam("type"))
	if cohortType == "" {
		cohortType = analytics.CohortSignupWeek
	}
	if cohortType != analytics.CohortSignupWeek && cohortType != analytics.CohortSignupMonth {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "type must be signup_week or signup_month"})
	}

	scope := common.GetScopeFromContext(c.Request().Context(), "Analytics.Cohorts")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	cohorts, err := h.reporter.Cohorts(ctx, cohortType)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("cohort rollup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, cohorts)
}

// Personalization returns the personalization-level distribution.
func (h *AnalyticsHandler) Personalization(c echo.Context) error {
	scope := common.GetScopeFromContext(c.Request().Context(), "Analytics.Personalization")
	defer scope.Finish()

	ctx, cancel := context.WithTimeout(scope.Ctx, h.timeout)
	defer cancel()

	dist, err := h.reporter.PersonalizationDistribution(ctx)
	if err != nil {
		scope.TraceError(err)
		logrus.Errorf("personalization rollup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, dist)
}
