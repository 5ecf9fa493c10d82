package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/videotube/internal/apperrors"
	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 10 * 24 * time.Hour
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
}

type RefreshTokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"_id"`
}

// Token manager with sensible default
type Config struct {
	// Secret keys to sign access and refresh tokens
	// Both required and must differ
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	accessKey  []byte
	refreshKey []byte

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	// Users keep the only live refresh token
	users repository.UserRepo
}

func New(cfg Config, users repository.UserRepo) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing method %q is not supported, use one of HS256, HS384, HS512", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		users:      users,
	}, nil
}

// Access and refresh token lifetimes. Used as cookie max-age
func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// Issue new pair for the user and save refresh token as the only live one
func (m *TokenManager) IssuePair(ctx context.Context, userID string) (models.TokenPair, error) {
	pair, err := m.signPair(ctx, userID)
	if err != nil {
		return pair, err
	}

	err = m.users.SetRefreshToken(ctx, userID, pair.Refresh.Value)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%w: error while saving refresh token: %w", apperrors.ErrTokenIssue, err)
	}

	return pair, nil
}

// Issue new pair in exchange for the live refresh token of the user
// The swap is atomic: of concurrent calls with the same token only one succeeds,
// others get apperrors.ErrRefreshTokenMismatch
func (m *TokenManager) RotatePair(ctx context.Context, userID string, refresh string) (models.TokenPair, error) {
	pair, err := m.signPair(ctx, userID)
	if err != nil {
		return pair, err
	}

	err = m.users.RotateRefreshToken(ctx, userID, refresh, pair.Refresh.Value)
	switch {
	case err == nil:
		return pair, nil
	case errors.Is(err, apperrors.ErrRefreshTokenMismatch), errors.Is(err, apperrors.ErrUserNotFound):
		return models.TokenPair{}, err
	default:
		return models.TokenPair{}, fmt.Errorf("%w: error while saving refresh token: %w", apperrors.ErrTokenIssue, err)
	}
}

func (m *TokenManager) signPair(ctx context.Context, userID string) (models.TokenPair, error) {
	var pair models.TokenPair

	user, err := m.users.GetUserByID(ctx, userID, repository.WithoutCredentials())
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return pair, err
		}
		return pair, fmt.Errorf("%w: error while loading user: %w", apperrors.ErrTokenIssue, err)
	}

	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)
	refreshExpiresAt := now.Add(m.refreshTTL)

	access, err := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: registeredClaims(now, accessExpiresAt),
			UserID:           user.ID,
			Username:         user.Username,
			Email:            user.Email,
			Fullname:         user.Fullname,
		},
	).SignedString(m.accessKey)
	if err != nil {
		return pair, fmt.Errorf("%w: error while signing access token: %w", apperrors.ErrTokenIssue, err)
	}

	refresh, err := jwt.NewWithClaims(
		m.alg,
		RefreshTokenClaims{
			RegisteredClaims: registeredClaims(now, refreshExpiresAt),
			UserID:           user.ID,
		},
	).SignedString(m.refreshKey)
	if err != nil {
		return pair, fmt.Errorf("%w: error while signing refresh token: %w", apperrors.ErrTokenIssue, err)
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: models.IssuedToken{Value: refresh, ExpiresAt: refreshExpiresAt},
	}, nil
}

// Parse and validate access token, return user id it was issued for
func (m *TokenManager) ParseAccess(_ context.Context, access string) (string, error) {
	claims := &AccessTokenClaims{}
	if err := m.parse(access, claims, m.accessKey); err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}
	return claims.UserID, nil
}

// Parse and validate refresh token, return user id it was issued for
// Whether the token is still the live one is up to the caller
func (m *TokenManager) ParseRefresh(_ context.Context, refresh string) (string, error) {
	claims := &RefreshTokenClaims{}
	err := m.parse(refresh, claims, m.refreshKey)

	switch {
	case err == nil:
		return claims.UserID, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", fmt.Errorf("%w: %w", apperrors.ErrRefreshTokenExpired, err)
	default:
		return "", fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}
}

type claimsWithUser interface {
	jwt.Claims
	userID() string
}

func (c *AccessTokenClaims) userID() string  { return c.UserID }
func (c *RefreshTokenClaims) userID() string { return c.UserID }

func (m *TokenManager) parse(token string, claims claimsWithUser, key []byte) error {
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return key, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return err
	}
	if claims.userID() == "" {
		return errors.New("token has no user id")
	}
	return nil
}

func registeredClaims(now time.Time, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}
