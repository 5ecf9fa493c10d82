package apperrors

import (
	"errors"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")

	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidOldPassword = errors.New("invalid old password")

	ErrAvatarRequired = errors.New("avatar file is required")
	ErrUploadFailed   = errors.New("media upload failed")

	ErrTokenMissing         = errors.New("token not provided")
	ErrTokenInvalid         = errors.New("token is invalid")
	ErrTokenIssue           = errors.New("token could not be issued")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
	ErrRefreshTokenMismatch = errors.New("refresh token is used or revoked")
)
