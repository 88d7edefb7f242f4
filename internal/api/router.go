package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "dingbot/internal/api/context"
	"dingbot/internal/api/handlers"
	"dingbot/internal/api/middleware"
	"dingbot/internal/platform/auth"
)

type Dependencies struct {
	NotifyHandler  *handlers.NotifyHandler
	RobotHandler   *handlers.RobotHandler
	AuditHandler   *handlers.AuditHandler
	HealthHandler  *handlers.HealthHandler
	MetricsHandler *handlers.MetricsHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	authMid := deps.AuthMiddleware
	notifyScope := middleware.RequireScope(auth.ScopeNotify)
	adminScope := middleware.RequireScope(auth.ScopeAdmin)

	// Notifications; an empty robot segment is not routable, so the default
	// robot has its own path.
	router.POST("/api/v1/notify",
		chain(deps.NotifyHandler.Send, authMid.Handle, notifyScope))
	router.POST("/api/v1/notify/:robot",
		chain(deps.NotifyHandler.Send, authMid.Handle, notifyScope))

	// Robot registry
	router.POST("/api/v1/robots",
		chain(deps.RobotHandler.Create, authMid.Handle, adminScope))
	router.GET("/api/v1/robots",
		chain(deps.RobotHandler.List, authMid.Handle, adminScope))
	router.GET("/api/v1/robots/:robot_id",
		chain(deps.RobotHandler.Get, authMid.Handle, adminScope))
	router.PATCH("/api/v1/robots/:robot_id",
		chain(deps.RobotHandler.Update, authMid.Handle, adminScope))
	router.DELETE("/api/v1/robots/:robot_id",
		chain(deps.RobotHandler.Delete, authMid.Handle, adminScope))
	router.GET("/api/v1/audit",
		chain(deps.AuditHandler.List, authMid.Handle, adminScope))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
