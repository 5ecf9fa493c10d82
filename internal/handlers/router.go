package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/videotube/internal/handlers/middleware"
	"github.com/nkiryanov/videotube/internal/handlers/render"
	"github.com/nkiryanov/videotube/internal/logger"
	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/service/user"
)

type Config struct {
	// Directory multipart files are saved to before upload. Empty means os.TempDir
	UploadDir string

	// Serve files of the local media store under /media/ if set
	MediaDir string

	// Limits for unauthenticated endpoints (register, login, refresh). Zero means default
	RateLimitRPS   float64
	RateLimitBurst int

	// Collect HTTP metrics and expose them on /metrics if set
	Metrics *prometheus.Registry
}

func NewRouter(
	cfg Config,
	authService authService,
	userService userService,
	store pinger,
	logger logger.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
	)
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetrics(cfg.Metrics).Middleware)
	}
	r.Use(middleware.RecoverMiddleware(logger))

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.ServiceError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		render.ServiceError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	r.Method(http.MethodGet, "/healthz", handleHealth(store, logger))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	withAuth := middleware.AuthMiddleware(authService, logger)

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)

			r.Method(http.MethodPost, "/register", handleRegister(userService, cfg.UploadDir, logger))
			r.Method(http.MethodPost, "/login", handleLogin(authService, logger))
			r.Method(http.MethodPost, "/refresh", handleTokenRefresh(authService, logger))
		})

		r.Group(func(r chi.Router) {
			r.Use(withAuth)

			r.Method(http.MethodPost, "/logout", handleLogout(authService, logger))
			r.Method(http.MethodPost, "/change-password", handleChangePassword(userService, logger))
			r.Method(http.MethodGet, "/me", handleUserMe())
			r.Method(http.MethodPatch, "/account", handleUpdateAccount(userService, logger))
			r.Method(http.MethodPatch, "/avatar", handleUpdateAvatar(userService, cfg.UploadDir, logger))
		})
	})

	if cfg.MediaDir != "" {
		r.Method(http.MethodGet, "/media/*", handleMedia(cfg.MediaDir))
	}

	return r
}

type authService interface {
	// Login user with username or email and password
	// Has to return apperrors.ErrInvalidCredentials if user not found or password is wrong
	Login(ctx context.Context, username string, email string, password string) (models.User, models.TokenPair, error)

	// Forget live refresh token of the user
	Logout(ctx context.Context, userID string) error

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token is not the live one: has to return apperrors.ErrRefreshTokenMismatch
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Set auth tokens (access, refresh) to response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Expire auth cookies
	ClearTokensFromResponse(w http.ResponseWriter)

	// Get refresh token from request
	GetRefreshString(r *http.Request) (string, error)

	// Get request and return user if it authenticated or error
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

type userService interface {
	Register(ctx context.Context, p user.RegisterParams) (models.User, error)
	ChangePassword(ctx context.Context, userID string, oldPassword string, newPassword string) error
	UpdateAccount(ctx context.Context, userID string, fullname string, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, userID string, avatarPath string) (models.User, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}
