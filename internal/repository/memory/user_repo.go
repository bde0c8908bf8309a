package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if u, ok := r.db.users[id]; ok {
		return &u, nil
	}
	if r.db.autoUsers && id != uuid.Nil {
		return &domain.User{ID: id, DisplayName: id.String()[:8]}, nil
	}
	return nil, nil
}
