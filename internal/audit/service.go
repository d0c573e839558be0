package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ouptel/ouptel-admin/internal/shared"
)

// Entry is one audit_logs row as shown in the back office.
type Entry struct {
	ID         int64
	ActorID    int64
	Action     string
	Entity     string
	EntityID   string
	Meta       map[string]any
	OccurredAt time.Time
}

// Filters narrows a timeline query.
type Filters struct {
	Action string
	Entity string
	Page   int
	Per    int
}

// Repository provides read access to audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns entries newest first with a total count.
func (r *Repository) List(ctx context.Context, f Filters, limit, offset int) ([]Entry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_logs
		WHERE ($1 = '' OR action = $1) AND ($2 = '' OR entity = $2)`,
		f.Action, f.Entity).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
		FROM audit_logs
		WHERE ($1 = '' OR action = $1) AND ($2 = '' OR entity = $2)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		f.Action, f.Entity, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.OccurredAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// DeleteOlderThan trims entries past the retention window. Used by the
// retention job.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RepositoryPort defines data access for the audit service.
type RepositoryPort interface {
	List(ctx context.Context, f Filters, limit, offset int) ([]Entry, int, error)
}

// Service coordinates audit timeline queries.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns a page of entries with paging metadata.
func (s *Service) Timeline(ctx context.Context, f Filters) ([]Entry, shared.Pagination, error) {
	per := f.Per
	if per <= 0 {
		per = 20
	}
	if per > 50 {
		per = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	entries, total, err := s.repo.List(ctx, f, per, (page-1)*per)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(page, per, total), nil
}
