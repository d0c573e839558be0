package admins

import (
	"context"

	"github.com/ouptel/ouptel-admin/internal/rbac"
)

// RepositoryPort defines data access methods for the legacy user view.
type RepositoryPort interface {
	List(ctx context.Context, limit, offset int) ([]Admin, int, error)
	Get(ctx context.Context, id int64) (Admin, error)
}

// Service handles admin listing and actor resolution.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns admins with the total count for paging.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Admin, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// Get fetches one user.
func (s *Service) Get(ctx context.Context, id int64) (Admin, error) {
	return s.repo.Get(ctx, id)
}

// ResolveActor implements rbac.ActorResolver: it loads the legacy admin flag
// for the session's user so the gate can apply its precedence ladder.
func (s *Service) ResolveActor(ctx context.Context, userID int64) (rbac.Actor, error) {
	admin, err := s.repo.Get(ctx, userID)
	if err != nil {
		return rbac.Actor{}, err
	}
	return rbac.Actor{ID: admin.ID, AdminLevel: admin.AdminLevel}, nil
}
