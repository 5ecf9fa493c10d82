package memory

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nkiryanov/videotube/internal/apperrors"
	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/repository"
)

type UserRepo struct {
	mu   sync.RWMutex
	byID map[string]models.User
}

// Ids have the same shape as in mongo so both stores are interchangeable
func (r *UserRepo) CreateUser(_ context.Context, user models.User) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Username == user.Username || u.Email == user.Email {
			return models.User{}, apperrors.ErrUserAlreadyExists
		}
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	user.ID = primitive.NewObjectID().Hex()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.byID[user.ID] = user

	return user, nil
}

func (r *UserRepo) GetUserByID(_ context.Context, userID string, opts ...repository.GetUserOption) (models.User, error) {
	o := repository.NewGetUserOptions(opts...)

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[userID]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	if o.WithoutCredentials {
		return u.Sanitized(), nil
	}
	return u, nil
}

func (r *UserRepo) FindUserByLogin(_ context.Context, username string, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if username == "" && email == "" {
		return models.User{}, apperrors.ErrUserNotFound
	}

	for _, u := range r.byID {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return u, nil
		}
	}
	return models.User{}, apperrors.ErrUserNotFound
}

func (r *UserRepo) SetRefreshToken(_ context.Context, userID string, token string) error {
	return r.update(userID, func(u *models.User) error {
		u.RefreshToken = token
		return nil
	}, false)
}

func (r *UserRepo) RotateRefreshToken(_ context.Context, userID string, old string, token string) error {
	return r.update(userID, func(u *models.User) error {
		if old == "" || u.RefreshToken != old {
			return apperrors.ErrRefreshTokenMismatch
		}
		u.RefreshToken = token
		return nil
	}, false)
}

func (r *UserRepo) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	return r.update(userID, func(u *models.User) error {
		u.PasswordHash = passwordHash
		return nil
	}, true)
}

func (r *UserRepo) UpdateAccount(_ context.Context, userID string, fullname string, email string) (models.User, error) {
	err := r.update(userID, func(u *models.User) error {
		for id, other := range r.byID {
			if id != userID && other.Email == email {
				return apperrors.ErrUserAlreadyExists
			}
		}
		u.Fullname = fullname
		u.Email = email
		return nil
	}, true)
	if err != nil {
		return models.User{}, err
	}

	return r.GetUserByID(context.Background(), userID, repository.WithoutCredentials())
}

func (r *UserRepo) UpdateAvatar(_ context.Context, userID string, avatarURL string) (models.User, error) {
	err := r.update(userID, func(u *models.User) error {
		u.Avatar = avatarURL
		return nil
	}, true)
	if err != nil {
		return models.User{}, err
	}

	return r.GetUserByID(context.Background(), userID, repository.WithoutCredentials())
}

// Apply fn to stored user under write lock
func (r *UserRepo) update(userID string, fn func(*models.User) error, touch bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	if touch {
		u.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	r.byID[userID] = u
	return nil
}
