package memory

import (
	"context"

	"github.com/nkiryanov/videotube/internal/models"
	"github.com/nkiryanov/videotube/internal/repository"
)

// In-process storage. Used when MONGODB_URI is memory:// and in handler tests
type Storage struct {
	users *UserRepo
}

func NewStorage() *Storage {
	return &Storage{
		users: &UserRepo{byID: make(map[string]models.User)},
	}
}

func (s *Storage) User() repository.UserRepo {
	return s.users
}

func (s *Storage) Ping(_ context.Context) error {
	return nil
}

func (s *Storage) Close(_ context.Context) error {
	return nil
}

var _ repository.Storage = (*Storage)(nil)
