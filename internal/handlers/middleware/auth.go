package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/videotube/internal/apperrors"
	"github.com/nkiryanov/videotube/internal/handlers/render"
	"github.com/nkiryanov/videotube/internal/handlers/userctx"
	"github.com/nkiryanov/videotube/internal/models"
)

type authService interface {
	// Authenticate request and return user without credentials
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

// Let request through only if it carries acceptable access token
// Authenticated user is available to next handlers with userctx.FromContext
func AuthMiddleware(as authService, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.GetUserFromRequest(r.Context(), r)
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrTokenMissing):
				render.ServiceError(w, "Unauthorized request", http.StatusUnauthorized)
				return
			case errors.Is(err, apperrors.ErrTokenInvalid):
				render.ServiceError(w, "Invalid access token", http.StatusUnauthorized)
				return
			default:
				l.Error("request authentication failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
