package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/videotube/internal/apperrors"
	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/repository"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultAccessCookieName  = "accessToken"
	defaultRefreshCookieName = "refreshToken"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type tokenManager interface {
	IssuePair(ctx context.Context, userID string) (models.TokenPair, error)
	RotatePair(ctx context.Context, userID string, refresh string) (models.TokenPair, error)
	ParseAccess(ctx context.Context, access string) (string, error)
	ParseRefresh(ctx context.Context, refresh string) (string, error)
}

// Auth service config. Every empty field is set to default
type Config struct {
	// Hasher used to compare user passwords on login
	Hasher PasswordHasher

	// Where access token looked up in request: header and its scheme
	AccessHeaderName string
	AccessAuthScheme string

	// Cookie names tokens set to
	AccessCookieName  string
	RefreshCookieName string
}

type AuthService struct {
	accessHeaderName  string
	accessAuthScheme  string
	accessCookieName  string
	refreshCookieName string

	hasher   PasswordHasher
	tokens   tokenManager
	userRepo repository.UserRepo
}

func NewService(cfg Config, tokens tokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.AccessCookieName, defaultAccessCookieName)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	// Set default bcrypt hasher if not user provided by user
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}

	return &AuthService{
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		accessCookieName:  cfg.AccessCookieName,
		refreshCookieName: cfg.RefreshCookieName,
		hasher:            cfg.Hasher,
		tokens:            tokens,
		userRepo:          userRepo,
	}, nil
}

// Login user by username or email and password
// Unknown user and wrong password are indistinguishable: both are apperrors.ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, username string, email string, password string) (models.User, models.TokenPair, error) {
	var pair models.TokenPair

	user, err := s.userRepo.FindUserByLogin(ctx, strings.ToLower(username), strings.ToLower(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.User{}, pair, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, pair, fmt.Errorf("error while looking up user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return models.User{}, pair, apperrors.ErrInvalidCredentials
	}

	pair, err = s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return models.User{}, pair, err
	}

	return user.Sanitized(), pair, nil
}

// Forget live refresh token of the user
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.userRepo.SetRefreshToken(ctx, userID, "")
}

// Exchange live refresh token to the new pair
// Token must be the one stored for the user, otherwise apperrors.ErrRefreshTokenMismatch
// A token is exchanged at most once even under concurrent requests
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	userID, err := s.tokens.ParseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.tokens.RotatePair(ctx, userID, refresh)
}

// Set auth tokens (access, refresh) to response as cookies
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, s.cookie(s.accessCookieName, pair.Access.Value, time.Until(pair.Access.ExpiresAt)))
	http.SetCookie(w, s.cookie(s.refreshCookieName, pair.Refresh.Value, time.Until(pair.Refresh.ExpiresAt)))
}

// Expire both auth cookies on client
func (s *AuthService) ClearTokensFromResponse(w http.ResponseWriter) {
	for _, name := range []string{s.accessCookieName, s.refreshCookieName} {
		c := s.cookie(name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

// Get refresh token from request cookie
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	c, err := r.Cookie(s.refreshCookieName)
	if err != nil || c.Value == "" {
		return "", apperrors.ErrTokenMissing
	}
	return c.Value, nil
}

// Get access token from cookie, then from authorization header
func (s *AuthService) GetAccessString(r *http.Request) (string, error) {
	if c, err := r.Cookie(s.accessCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	header := r.Header.Get(s.accessHeaderName)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) || strings.TrimSpace(token) == "" {
		return "", apperrors.ErrTokenMissing
	}
	return strings.TrimSpace(token), nil
}

// Authenticate request and return user without credentials
// Returns apperrors.ErrTokenMissing if no token in request and apperrors.ErrTokenInvalid if token is not acceptable
func (s *AuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	access, err := s.GetAccessString(r)
	if err != nil {
		return models.User{}, err
	}

	userID, err := s.tokens.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, userID, repository.WithoutCredentials())
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	case err != nil:
		return models.User{}, fmt.Errorf("error while loading user: %w", err)
	}

	return user, nil
}

// Set auth tokens to request the same way client does: access in header, refresh in cookie
func (s *AuthService) SetTokenPairToRequest(r *http.Request, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	r.AddCookie(&http.Cookie{Name: s.refreshCookieName, Value: pair.Refresh.Value})
}

func (s *AuthService) cookie(name string, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
