package repository

import (
	"context"

	"github.com/nkiryanov/videotube/internal/models"
)

//go:generate mockgen -destination=../../mocks/mock_repository.go -package=mocks github.com/nkiryanov/videotube/internal/repository UserRepo

// Options applied when user is read from repository
type GetUserOptions struct {
	// Do not load password hash and refresh token
	WithoutCredentials bool
}

type GetUserOption func(*GetUserOptions)

func WithoutCredentials() GetUserOption {
	return func(o *GetUserOptions) {
		o.WithoutCredentials = true
	}
}

func NewGetUserOptions(opts ...GetUserOption) GetUserOptions {
	var o GetUserOptions
	for _, option := range opts {
		option(&o)
	}
	return o
}

// User repository interface
type UserRepo interface {
	// Create user. ID, CreatedAt and UpdatedAt are set by the repository
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, user models.User) (models.User, error)

	// Get user by it's id
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID string, opts ...GetUserOption) (models.User, error)

	// Find user whose username or email matches. Empty values are not used in lookup
	// If user not found must return apperrors.ErrUserNotFound
	FindUserByLogin(ctx context.Context, username string, email string) (models.User, error)

	// Overwrite current refresh token of the user. Empty token clears it
	// Only the token field is touched
	SetRefreshToken(ctx context.Context, userID string, token string) error

	// Replace refresh token only if the stored one equals old, atomically
	// If it does not (used, cleared or never set) must return apperrors.ErrRefreshTokenMismatch
	// If user not found must return apperrors.ErrUserNotFound
	RotateRefreshToken(ctx context.Context, userID string, old string, token string) error

	// Save new password hash. Only the password field is touched
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error

	// Update account details and return the updated user without credentials
	// If email belongs to another user must return apperrors.ErrUserAlreadyExists
	UpdateAccount(ctx context.Context, userID string, fullname string, email string) (models.User, error)

	// Update avatar url and return the updated user without credentials
	UpdateAvatar(ctx context.Context, userID string, avatarURL string) (models.User, error)
}

// Storage gives access to all repositories of the service
type Storage interface {
	User() UserRepo

	// Check storage is reachable
	Ping(ctx context.Context) error

	// Release underlying resources
	Close(ctx context.Context) error
}
