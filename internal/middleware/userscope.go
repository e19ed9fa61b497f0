package middleware

import (
	"net/http"

	logpkg "github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/request"
	"github.com/benvon/flowstate/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// UserIDVar is the mux route variable naming the user a request is scoped to
const UserIDVar = "user_id"

var nopLogger = zap.NewNop()

// UserScope validates the {user_id} route variable and stores it on the request context.
// Routes without the variable pass through untouched.
func UserScope(logger *zap.Logger) mux.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := mux.Vars(r)[UserIDVar]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if err := validation.ValidateUserID(userID); err != nil {
				logger.Debug("rejected_user_id",
					zap.String("user_id", logpkg.SanitizeUserID(userID)),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				)
				writeError(w, r, http.StatusBadRequest, "Bad Request", err.Error(), logger)
				return
			}
			next.ServeHTTP(w, r.WithContext(request.WithUserID(r.Context(), userID)))
		})
	}
}
