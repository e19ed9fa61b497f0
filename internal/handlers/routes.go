package handlers

import (
	"github.com/benvon/flowstate/internal/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// UserRoutePrefix scopes every tracker route to one user
const UserRoutePrefix = "/api/v1/users/{" + middleware.UserIDVar + "}"

// RegisterUserRoutes mounts the session, analytics and data handlers under UserRoutePrefix
// and returns the user-scoped subrouter so callers can add middleware such as rate limiting.
func RegisterUserRoutes(r *mux.Router, sessions *SessionHandler, analytics *AnalyticsHandler, data *DataHandler, logger *zap.Logger) *mux.Router {
	userRouter := r.PathPrefix(UserRoutePrefix).Subrouter()
	userRouter.Use(middleware.UserScope(logger))

	sessions.RegisterRoutes(userRouter.PathPrefix("/sessions").Subrouter())
	analytics.RegisterRoutes(userRouter)
	data.RegisterRoutes(userRouter)
	return userRouter
}
