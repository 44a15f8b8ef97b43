package handler

import (
	"github.com/labstack/echo/v4"
)

// SetupUserRoutes wires the per-user lifecycle, intervention, and points
// surface.
func SetupUserRoutes(api *echo.Group, lh *LifecycleHandler, ih *InterventionHandler, eh *ExperimentHandler, rh *RulesHandler) {
	users := api.Group("/users")

	users.GET("/:user_id/lifecycle", lh.GetState)
	users.POST("/:user_id/lifecycle/recompute", lh.Recompute)
	users.PUT("/:user_id/profile", lh.UpsertProfile)
	users.POST("/:user_id/activity", lh.RecordActivity)

	users.GET("/:user_id/interventions", ih.List)
	users.POST("/:user_id/interventions/dispatch", ih.Dispatch)
	users.POST("/:user_id/interventions/:intervention_id/shown", ih.Shown)
	users.POST("/:user_id/interventions/:intervention_id/dismiss", ih.Dismiss)
	users.POST("/:user_id/interventions/:intervention_id/action", ih.Action)

	users.POST("/:user_id/experiments/check-assign", eh.CheckAssign)

	users.GET("/:user_id/points", rh.GetPoints)
}

// SetupRuleRoutes wires gamification rule triggering and administration.
func SetupRuleRoutes(api *echo.Group, rh *RulesHandler) {
	rules := api.Group("/rules")

	rules.POST("/trigger", rh.Trigger)
	rules.POST("", rh.CreateRule)
	rules.PUT("/:rule_id/status", rh.SetRuleStatus)

	api.POST("/badges", rh.CreateBadge)
}

// SetupExperimentRoutes wires experiment administration.
func SetupExperimentRoutes(api *echo.Group, eh *ExperimentHandler) {
	experiments := api.Group("/experiments")

	experiments.POST("", eh.Create)
	experiments.GET("", eh.List)
	experiments.GET("/:experiment_id", eh.Get)
	experiments.PUT("/:experiment_id/status", eh.SetStatus)
	experiments.POST("/:experiment_id/complete", eh.Complete)
}

// SetupConversionRoutes wires conversion attribution.
func SetupConversionRoutes(api *echo.Group, ih *InterventionHandler) {
	api.POST("/conversions", ih.Conversion)
}

// SetupAnalyticsRoutes wires the read-only rollups.
func SetupAnalyticsRoutes(api *echo.Group, ah *AnalyticsHandler) {
	analytics := api.Group("/analytics")

	analytics.GET("/lifecycle/distribution", ah.Distribution)
	analytics.GET("/churn/trends", ah.Trends)
	analytics.GET("/interventions/effectiveness", ah.Effectiveness)
	analytics.GET("/experiments", ah.Experiments)
	analytics.GET("/cohorts", ah.Cohorts)
	analytics.GET("/personalization", ah.Personalization)
}
