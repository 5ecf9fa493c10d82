package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/videotube/internal/apperrors"
	"github.com/nkiryanov/videotube/internal/handlers/render"
	"github.com/nkiryanov/videotube/internal/handlers/userctx"
	"github.com/nkiryanov/videotube/internal/logger"
	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/service/user"
)

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func handleRegister(userService userService, uploadDir string, l logger.Logger) http.Handler {
	type request struct {
		Fullname string `json:"fullname" validate:"notblank"`
		Email    string `json:"email" validate:"notblank,email"`
		Username string `json:"username" validate:"notblank"`
		Password string `json:"password" validate:"notblank"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir, cleanup, ok := parseMultipart(w, r, uploadDir, l)
		if !ok {
			return
		}
		defer cleanup()

		data := request{
			Fullname: strings.TrimSpace(r.FormValue("fullname")),
			Email:    strings.TrimSpace(r.FormValue("email")),
			Username: strings.TrimSpace(r.FormValue("username")),
			Password: r.FormValue("password"),
		}
		if err := render.Validate(w, data); err != nil {
			return
		}

		avatar, err := saveFormFile(r, "avatar", dir)
		if err != nil {
			l.Error("Failed to save avatar file", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		cover, err := saveFormFile(r, "coverImage", dir)
		if err != nil {
			l.Error("Failed to save cover image file", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		u, err := userService.Register(r.Context(), user.RegisterParams{
			Fullname:       data.Fullname,
			Email:          data.Email,
			Username:       data.Username,
			Password:       data.Password,
			AvatarPath:     avatar,
			CoverImagePath: cover,
		})

		switch {
		case err == nil:
			render.Success(w, http.StatusCreated, "User registered successfully", u.Public())
		case errors.Is(err, apperrors.ErrInvalidInput):
			render.ServiceError(w, "All fields are required", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User with email or username already exists", http.StatusConflict)
		case errors.Is(err, apperrors.ErrAvatarRequired):
			if errors.Is(err, apperrors.ErrUploadFailed) {
				l.Warn("Avatar upload failed", "error", err)
			}
			render.ServiceError(w, "Avatar file is required", http.StatusBadRequest)
		default:
			l.Error("Failed to register user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required_without=Email"`
		Email    string `json:"email" validate:"required_without=Username"`
		Password string `json:"password" validate:"required"`
	}
	type response struct {
		User models.PublicUser `json:"user"`
		tokensResponse
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var data request
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			render.DecodeError(w, err)
			return
		}

		// Whitespace-only identifier counts as missing
		data.Username = strings.TrimSpace(data.Username)
		data.Email = strings.TrimSpace(data.Email)
		if err := render.Validate(w, data); err != nil {
			return
		}

		u, pair, err := authService.Login(r.Context(), data.Username, data.Email, data.Password)

		switch {
		case err == nil:
			authService.SetTokenPairToResponse(w, pair)
			render.Success(w, http.StatusOK, "User logged in successfully", response{
				User: u.Public(),
				tokensResponse: tokensResponse{
					AccessToken:  pair.Access.Value,
					RefreshToken: pair.Refresh.Value,
				},
			})
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid user credentials", http.StatusUnauthorized)
		default:
			l.Error("Failed to login user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogout(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		err := authService.Logout(r.Context(), u.ID)

		switch {
		case err == nil:
			authService.ClearTokensFromResponse(w)
			render.Success(w, http.StatusOK, "User logged out", nil)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			l.Error("Failed to logout user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleTokenRefresh(authService authService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefreshString(r)
		if err != nil {
			// Clients without cookies send token in body
			var body request
			_ = json.NewDecoder(r.Body).Decode(&body)
			refresh = body.RefreshToken
		}
		if refresh == "" {
			render.ServiceError(w, "Unauthorized request", http.StatusUnauthorized)
			return
		}

		pair, err := authService.RefreshPair(r.Context(), refresh)

		switch {
		case err == nil:
			authService.SetTokenPairToResponse(w, pair)
			render.Success(w, http.StatusOK, "Access token refreshed", tokensResponse{
				AccessToken:  pair.Access.Value,
				RefreshToken: pair.Refresh.Value,
			})
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Refresh token is expired", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrRefreshTokenMismatch):
			l.Warn("Refresh token reuse detected", "error", err)
			render.ServiceError(w, "Refresh token is expired or used", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrTokenInvalid), errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
		default:
			l.Error("Failed to refresh tokens", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleChangePassword(userService userService, l logger.Logger) http.Handler {
	type request struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = userService.ChangePassword(r.Context(), u.ID, data.OldPassword, data.NewPassword)

		switch {
		case err == nil:
			render.Success(w, http.StatusOK, "Password changed successfully", nil)
		case errors.Is(err, apperrors.ErrInvalidOldPassword):
			render.ServiceError(w, "Invalid old password", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrInvalidInput):
			render.ServiceError(w, "New password is required", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			l.Error("Failed to change password", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleUserMe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		render.Success(w, http.StatusOK, "Current user fetched successfully", u.Public())
	})
}

func handleUpdateAccount(userService userService, l logger.Logger) http.Handler {
	type request struct {
		Fullname string `json:"fullname" validate:"notblank"`
		Email    string `json:"email" validate:"notblank,email"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		updated, err := userService.UpdateAccount(r.Context(), u.ID, data.Fullname, data.Email)

		switch {
		case err == nil:
			render.Success(w, http.StatusOK, "Account details updated successfully", updated.Public())
		case errors.Is(err, apperrors.ErrInvalidInput):
			render.ServiceError(w, "All fields are required", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "Email is already taken", http.StatusConflict)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			l.Error("Failed to update account", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleUpdateAvatar(userService userService, uploadDir string, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		dir, cleanup, ok := parseMultipart(w, r, uploadDir, l)
		if !ok {
			return
		}
		defer cleanup()

		avatar, err := saveFormFile(r, "avatar", dir)
		if err != nil {
			l.Error("Failed to save avatar file", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if avatar == "" {
			render.ServiceError(w, "Avatar file is missing", http.StatusBadRequest)
			return
		}

		updated, err := userService.UpdateAvatar(r.Context(), u.ID, avatar)

		switch {
		case err == nil:
			render.Success(w, http.StatusOK, "Avatar image updated successfully", updated.Public())
		case errors.Is(err, apperrors.ErrAvatarRequired):
			l.Warn("Avatar upload failed", "error", err)
			render.ServiceError(w, "Error while uploading avatar", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			l.Error("Failed to update avatar", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleHealth(store pinger, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			l.Error("Storage ping failed", "error", err)
			render.ServiceError(w, "Storage unavailable", http.StatusServiceUnavailable)
			return
		}
		render.Success(w, http.StatusOK, "OK", nil)
	})
}
