package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nkiryanov/videotube/internal/apperrors"
	"github.com/nkiryanov/videotube/internal/media"
	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/repository"
	"github.com/nkiryanov/videotube/internal/service/auth"
)

type UserService struct {
	hasher   auth.PasswordHasher
	userRepo repository.UserRepo
	uploader media.Uploader
}

func NewService(hasher auth.PasswordHasher, userRepo repository.UserRepo, uploader media.Uploader) *UserService {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}

	return &UserService{
		hasher:   hasher,
		userRepo: userRepo,
		uploader: uploader,
	}
}

type RegisterParams struct {
	Fullname string
	Email    string
	Username string
	Password string

	// Local paths of uploaded files. Avatar is required, cover image is optional
	AvatarPath     string
	CoverImagePath string
}

// Register new user and return it without credentials
func (s *UserService) Register(ctx context.Context, p RegisterParams) (models.User, error) {
	for _, field := range []string{p.Fullname, p.Email, p.Username, p.Password} {
		if strings.TrimSpace(field) == "" {
			return models.User{}, fmt.Errorf("%w: all fields are required", apperrors.ErrInvalidInput)
		}
	}
	username := strings.ToLower(strings.TrimSpace(p.Username))
	email := strings.ToLower(strings.TrimSpace(p.Email))

	_, err := s.userRepo.FindUserByLogin(ctx, username, email)
	switch {
	case err == nil:
		return models.User{}, apperrors.ErrUserAlreadyExists
	case !errors.Is(err, apperrors.ErrUserNotFound):
		return models.User{}, fmt.Errorf("can't check user exists. Err: %w", err)
	}

	if p.AvatarPath == "" {
		return models.User{}, apperrors.ErrAvatarRequired
	}
	avatar, err := s.upload(ctx, p.AvatarPath)
	if err != nil {
		return models.User{}, err
	}

	// Cover image is optional, failed upload leaves it empty
	var cover string
	if p.CoverImagePath != "" {
		cover, _ = s.upload(ctx, p.CoverImagePath)
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	created, err := s.userRepo.CreateUser(ctx, models.User{
		Username:     username,
		Email:        email,
		Fullname:     strings.TrimSpace(p.Fullname),
		PasswordHash: hash,
		Avatar:       avatar,
		CoverImage:   cover,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrUserAlreadyExists) {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("can't create user. Err: %w", err)
	}

	user, err := s.userRepo.GetUserByID(ctx, created.ID, repository.WithoutCredentials())
	if err != nil {
		return models.User{}, fmt.Errorf("%w: user not found after registration: %w", apperrors.ErrInternal, err)
	}

	return user, nil
}

// Change password if old one matches
func (s *UserService) ChangePassword(ctx context.Context, userID string, oldPassword string, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", apperrors.ErrInvalidInput)
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.PasswordHash, oldPassword); err != nil {
		return apperrors.ErrInvalidOldPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, Err: %w", err)
	}

	return s.userRepo.UpdatePassword(ctx, userID, hash)
}

func (s *UserService) UpdateAccount(ctx context.Context, userID string, fullname string, email string) (models.User, error) {
	fullname = strings.TrimSpace(fullname)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullname == "" || email == "" {
		return models.User{}, fmt.Errorf("%w: fullname and email are required", apperrors.ErrInvalidInput)
	}

	return s.userRepo.UpdateAccount(ctx, userID, fullname, email)
}

// Upload new avatar and save its url. Previous image is left as is
func (s *UserService) UpdateAvatar(ctx context.Context, userID string, avatarPath string) (models.User, error) {
	if avatarPath == "" {
		return models.User{}, apperrors.ErrAvatarRequired
	}

	avatar, err := s.upload(ctx, avatarPath)
	if err != nil {
		return models.User{}, err
	}

	return s.userRepo.UpdateAvatar(ctx, userID, avatar)
}

// Upload without url in result is the same as failed one
func (s *UserService) upload(ctx context.Context, path string) (string, error) {
	url, err := s.uploader.Upload(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", apperrors.ErrAvatarRequired, apperrors.ErrUploadFailed, err)
	}
	if url == "" {
		return "", fmt.Errorf("%w: %w", apperrors.ErrAvatarRequired, apperrors.ErrUploadFailed)
	}
	return url, nil
}
