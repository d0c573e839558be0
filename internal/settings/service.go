package settings

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/ouptel/ouptel-admin/internal/shared"
)

// RepositoryPort defines data access methods for settings.
type RepositoryPort interface {
	GetGroup(ctx context.Context, group string) (map[string]string, error)
	UpsertFields(ctx context.Context, group string, fields map[string]string) error
}

// Auditor records settings mutations. Satisfied by shared.AuditLogger.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the Store contract on top of Postgres with a Redis
// group cache in front of reads.
type Service struct {
	repo    RepositoryPort
	cache   *GroupCache
	schemas map[string]Schema
	audit   Auditor
	logger  *slog.Logger
}

// NewService builds a Service instance. audit may be nil.
func NewService(repo RepositoryPort, cache *GroupCache, schemas map[string]Schema, audit Auditor, logger *slog.Logger) *Service {
	if schemas == nil {
		schemas = DefaultSchemas()
	}
	return &Service{repo: repo, cache: cache, schemas: schemas, audit: audit, logger: logger}
}

// Schema returns the registered schema for a group, if any.
func (s *Service) Schema(group string) (Schema, bool) {
	schema, ok := s.schemas[group]
	return schema, ok
}

// Get returns the stored value for key within group, or fallback when the
// group or key is absent. Absence is not an error; lookup failures degrade
// to the fallback as well.
func (s *Service) Get(ctx context.Context, group, key, fallback string) string {
	values := s.GetGroup(ctx, group)
	if value, ok := values[key]; ok {
		return value
	}
	return fallback
}

// GetBool reads a boolean toggle stored as "1"/"0".
func (s *Service) GetBool(ctx context.Context, group, key string, fallback bool) bool {
	fb := "0"
	if fallback {
		fb = "1"
	}
	return s.Get(ctx, group, key, fb) == "1"
}

// GetInt reads an integer value, falling back on absence or parse failure.
func (s *Service) GetInt(ctx context.Context, group, key string, fallback int) int {
	raw := s.Get(ctx, group, key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// GetGroup returns all stored key/value pairs for a group, empty when none.
func (s *Service) GetGroup(ctx context.Context, group string) map[string]string {
	values, err := s.cache.Fetch(ctx, group, func(ctx context.Context) (map[string]string, error) {
		return s.repo.GetGroup(ctx, group)
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("settings group read", slog.String("group", group), slog.Any("error", err))
		}
		return map[string]string{}
	}
	if values == nil {
		return map[string]string{}
	}
	return values
}

// Update validates the submitted field set against the group schema, then
// atomically upserts exactly those keys and invalidates the group cache.
// Validation failures return *shared.ValidationError with per-field messages
// and leave the stored values untouched.
func (s *Service) Update(ctx context.Context, group string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	if schema, ok := s.schemas[group]; ok {
		if errs := schema.Validate(fields); len(errs) > 0 {
			return shared.NewValidationError(errs)
		}
	}

	if err := s.repo.UpsertFields(ctx, group, fields); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, group); err != nil && s.logger != nil {
		s.logger.Warn("settings cache invalidate", slog.String("group", group), slog.Any("error", err))
	}

	if s.audit != nil {
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		actorID := actorFromContext(ctx)
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "settings.update",
			Entity:   "settings_group",
			EntityID: group,
			Meta:     map[string]any{"keys": keys},
		}); err != nil && s.logger != nil {
			s.logger.Warn("settings audit record", slog.Any("error", err))
		}
	}
	return nil
}

func actorFromContext(ctx context.Context) int64 {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return 0
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
