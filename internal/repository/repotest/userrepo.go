// Package repotest holds behaviour checks shared by every UserRepo implementation
package repotest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/videotube/internal/apperrors"
	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/repository"
)

// Run UserRepo checks. newRepo must return repository with no users
func RunUserRepoTests(t *testing.T, newRepo func(t *testing.T) repository.UserRepo) {
	newUser := func(username string, email string) models.User {
		return models.User{
			Username:     username,
			Email:        email,
			Fullname:     "John Doe",
			PasswordHash: "hashedpassword123",
			Avatar:       "http://media.local/avatar.png",
		}
	}

	t.Run("create user ok", func(t *testing.T) {
		r := newRepo(t)

		user, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))

		require.NoError(t, err)
		assert.NotEmpty(t, user.ID, "ID should be generated")
		assert.Equal(t, "john", user.Username)
		assert.Equal(t, "hashedpassword123", user.PasswordHash)
		assert.Empty(t, user.RefreshToken)
		assert.WithinDuration(t, time.Now(), user.CreatedAt, 2*time.Second, "CreatedAt should be recent")
		assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	})

	t.Run("create user duplicate username or email fails", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)

		_, err = r.CreateUser(t.Context(), newUser("john", "other@example.com"))
		assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists, "if username exists must return well defined error")

		_, err = r.CreateUser(t.Context(), newUser("other", "john@example.com"))
		assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists, "if email exists must return well defined error")
	})

	t.Run("get user by id", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)
		err = r.SetRefreshToken(t.Context(), created.ID, "refresh-token")
		require.NoError(t, err)

		t.Run("with credentials", func(t *testing.T) {
			got, err := r.GetUserByID(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, "john", got.Username)
			assert.Equal(t, "hashedpassword123", got.PasswordHash)
			assert.Equal(t, "refresh-token", got.RefreshToken)
		})

		t.Run("without credentials", func(t *testing.T) {
			got, err := r.GetUserByID(t.Context(), created.ID, repository.WithoutCredentials())

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, "john@example.com", got.Email)
			assert.Empty(t, got.PasswordHash)
			assert.Empty(t, got.RefreshToken)
		})

		t.Run("not found", func(t *testing.T) {
			_, err := r.GetUserByID(t.Context(), "64b7f0c2a1b2c3d4e5f60718")

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})

		t.Run("malformed id is not found", func(t *testing.T) {
			_, err := r.GetUserByID(t.Context(), "not-an-id")

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("find user by login", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)

		tests := []struct {
			name     string
			username string
			email    string
			found    bool
		}{
			{"by username", "john", "", true},
			{"by email", "", "john@example.com", true},
			{"username matches email not", "john", "nobody@example.com", true},
			{"email matches username not", "nobody", "john@example.com", true},
			{"nothing matches", "nobody", "nobody@example.com", false},
			{"both empty", "", "", false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := r.FindUserByLogin(t.Context(), tt.username, tt.email)

				if !tt.found {
					assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, created.ID, got.ID)
				assert.Equal(t, "hashedpassword123", got.PasswordHash, "login lookup must load password hash")
			})
		}
	})

	t.Run("set refresh token", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)

		err = r.SetRefreshToken(t.Context(), created.ID, "first")
		require.NoError(t, err)
		err = r.SetRefreshToken(t.Context(), created.ID, "second")
		require.NoError(t, err)

		got, err := r.GetUserByID(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "second", got.RefreshToken, "rotation must overwrite previous token")
		assert.Equal(t, "hashedpassword123", got.PasswordHash, "password must stay untouched")

		err = r.SetRefreshToken(t.Context(), created.ID, "")
		require.NoError(t, err)

		got, err = r.GetUserByID(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Empty(t, got.RefreshToken, "empty token must clear stored one")
	})

	t.Run("set refresh token user not found", func(t *testing.T) {
		r := newRepo(t)

		err := r.SetRefreshToken(t.Context(), "64b7f0c2a1b2c3d4e5f60718", "token")

		assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})

	t.Run("rotate refresh token", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)
		err = r.SetRefreshToken(t.Context(), created.ID, "first")
		require.NoError(t, err)

		err = r.RotateRefreshToken(t.Context(), created.ID, "first", "second")
		require.NoError(t, err)

		got, err := r.GetUserByID(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "second", got.RefreshToken)

		err = r.RotateRefreshToken(t.Context(), created.ID, "first", "third")
		assert.ErrorIs(t, err, apperrors.ErrRefreshTokenMismatch, "used token must not rotate")

		got, err = r.GetUserByID(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "second", got.RefreshToken, "failed rotation must keep live token")
	})

	t.Run("rotate cleared refresh token", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)

		err = r.RotateRefreshToken(t.Context(), created.ID, "", "token")
		assert.ErrorIs(t, err, apperrors.ErrRefreshTokenMismatch)

		err = r.RotateRefreshToken(t.Context(), created.ID, "whatever", "token")
		assert.ErrorIs(t, err, apperrors.ErrRefreshTokenMismatch)
	})

	t.Run("rotate refresh token user not found", func(t *testing.T) {
		r := newRepo(t)

		err := r.RotateRefreshToken(t.Context(), "64b7f0c2a1b2c3d4e5f60718", "old", "new")

		assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})

	t.Run("concurrent rotations of one token", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)
		err = r.SetRefreshToken(t.Context(), created.ID, "live")
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			rotated  atomic.Int32
			start    = make(chan struct{})
			attempts = 16
		)
		for i := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				err := r.RotateRefreshToken(t.Context(), created.ID, "live", fmt.Sprintf("next-%d", i))
				if err == nil {
					rotated.Add(1)
					return
				}
				assert.ErrorIs(t, err, apperrors.ErrRefreshTokenMismatch)
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), rotated.Load(), "token must be rotated exactly once")
	})

	t.Run("update password", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)
		err = r.SetRefreshToken(t.Context(), created.ID, "token")
		require.NoError(t, err)

		err = r.UpdatePassword(t.Context(), created.ID, "newhash")
		require.NoError(t, err)

		got, err := r.GetUserByID(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, "newhash", got.PasswordHash)
		assert.Equal(t, "token", got.RefreshToken, "refresh token must stay untouched")
	})

	t.Run("update account", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)
		_, err = r.CreateUser(t.Context(), newUser("jane", "jane@example.com"))
		require.NoError(t, err)

		t.Run("ok", func(t *testing.T) {
			got, err := r.UpdateAccount(t.Context(), created.ID, "Johnny", "johnny@example.com")

			require.NoError(t, err)
			assert.Equal(t, "Johnny", got.Fullname)
			assert.Equal(t, "johnny@example.com", got.Email)
			assert.Empty(t, got.PasswordHash, "updated user returned without credentials")
			assert.False(t, got.UpdatedAt.Before(created.UpdatedAt))
		})

		t.Run("same email keeps working", func(t *testing.T) {
			got, err := r.UpdateAccount(t.Context(), created.ID, "John", "johnny@example.com")

			require.NoError(t, err)
			assert.Equal(t, "John", got.Fullname)
		})

		t.Run("email taken by other user", func(t *testing.T) {
			_, err := r.UpdateAccount(t.Context(), created.ID, "John", "jane@example.com")

			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})

		t.Run("not found", func(t *testing.T) {
			_, err := r.UpdateAccount(t.Context(), "64b7f0c2a1b2c3d4e5f60718", "John", "x@example.com")

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("update avatar", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.CreateUser(t.Context(), newUser("john", "john@example.com"))
		require.NoError(t, err)

		got, err := r.UpdateAvatar(t.Context(), created.ID, "http://media.local/new.png")

		require.NoError(t, err)
		assert.Equal(t, "http://media.local/new.png", got.Avatar)
		assert.Empty(t, got.PasswordHash)

		_, err = r.UpdateAvatar(t.Context(), "64b7f0c2a1b2c3d4e5f60718", "http://media.local/new.png")
		assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})
}
