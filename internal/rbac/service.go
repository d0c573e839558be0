package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ouptel/ouptel-admin/internal/shared"
)

// RepositoryPort defines data access methods for roles and permissions.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string, isSuperAdmin bool) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string, isSuperAdmin bool) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermissionByKey(ctx context.Context, key string) (Permission, error)
	EnsurePermission(ctx context.Context, key, label, navGroup string) (Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionID int64) error
	RevokePermission(ctx context.Context, roleID, permissionID int64) error
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RevokeRole(ctx context.Context, userID, roleID int64) error
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
	UserPermissionKeys(ctx context.Context, userID int64) ([]string, error)
}

// Auditor records role and assignment mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service decides access and manages roles, permissions and assignments.
type Service struct {
	repo   RepositoryPort
	audit  Auditor
	logger *slog.Logger
}

// NewService builds a Service instance. audit may be nil.
func NewService(repo RepositoryPort, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CanAccess decides whether the actor may access a resource requiring the
// given permission key. Precedence: legacy super-admin flag, then a held
// super-admin role, then the union of role permissions. A resource with no
// declared key is open to any authenticated admin. The check is read-only
// and never returns an error: lookup failures log and fail closed.
func (s *Service) CanAccess(ctx context.Context, actor Actor, key string) Decision {
	key = strings.TrimSpace(key)
	if key == "" {
		return Decision{Reason: GrantedDefaultOpen}
	}
	if actor.AdminLevel == shared.LegacySuperAdminFlag {
		return Decision{Reason: GrantedByLegacyFlag, PermissionKey: key}
	}

	snap, err := s.userSnapshot(ctx, actor.ID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("rbac lookup", slog.Int64("user_id", actor.ID), slog.Any("error", err))
		}
		return Decision{Reason: Denied, PermissionKey: key}
	}
	if snap.hasSuperRole {
		return Decision{Reason: GrantedBySuperRole, PermissionKey: key}
	}
	if _, ok := snap.keys[key]; ok {
		return Decision{Reason: GrantedByPermission, PermissionKey: key}
	}
	return Decision{Reason: Denied, PermissionKey: key}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role and its explicit permissions.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, []Permission, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, nil, err
	}
	perms, err := s.repo.RolePermissions(ctx, id)
	if err != nil {
		return Role{}, nil, err
	}
	return role, perms, nil
}

// CreateRole inserts a new role. Only a legacy super admin may manage roles;
// the finer-grained permission system cannot escalate control over itself.
func (s *Service) CreateRole(ctx context.Context, actor Actor, name, description string, isSuperAdmin bool) (Role, error) {
	if err := requireLegacySuperAdmin(actor); err != nil {
		return Role{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, shared.NewValidationError(map[string]string{"name": "role name required"})
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description), isSuperAdmin)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actor, "role.create", role)
	return role, nil
}

// UpdateRole updates an existing role. Legacy super admin only.
func (s *Service) UpdateRole(ctx context.Context, actor Actor, id int64, name, description string, isSuperAdmin bool) (Role, error) {
	if err := requireLegacySuperAdmin(actor); err != nil {
		return Role{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, shared.NewValidationError(map[string]string{"name": "role name required"})
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description), isSuperAdmin)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actor, "role.update", role)
	return role, nil
}

// DeleteRole removes a role and cascades its permission and user
// assignments. Legacy super admin only.
func (s *Service) DeleteRole(ctx context.Context, actor Actor, id int64) error {
	if err := requireLegacySuperAdmin(actor); err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "role.delete", Role{ID: id})
	return nil
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermission upserts a catalog entry. Used by the seed path.
func (s *Service) EnsurePermission(ctx context.Context, key, label, navGroup string) (Permission, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Permission{}, shared.NewValidationError(map[string]string{"key": "permission key required"})
	}
	return s.repo.EnsurePermission(ctx, key, strings.TrimSpace(label), strings.TrimSpace(navGroup))
}

// SetRolePermissions replaces the explicit permissions of a role with the
// given keys. Legacy super admin only.
func (s *Service) SetRolePermissions(ctx context.Context, actor Actor, roleID int64, keys []string) error {
	if err := requireLegacySuperAdmin(actor); err != nil {
		return err
	}
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}

	keep := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		keep[key] = struct{}{}
	}

	current, err := s.repo.RolePermissions(ctx, roleID)
	if err != nil {
		return err
	}
	existing := make(map[string]int64, len(current))
	for _, p := range current {
		existing[p.Key] = p.ID
	}

	for key := range keep {
		if _, held := existing[key]; held {
			continue
		}
		perm, err := s.repo.GetPermissionByKey(ctx, key)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.NewValidationError(map[string]string{"permissions": "unknown permission key: " + key})
			}
			return err
		}
		if err := s.repo.GrantPermission(ctx, roleID, perm.ID); err != nil {
			return err
		}
	}
	for key, id := range existing {
		if _, wanted := keep[key]; !wanted {
			if err := s.repo.RevokePermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	s.record(ctx, actor, "role.set_permissions", role)
	return nil
}

// AssignRole assigns a role to a user. Idempotent: assigning an already-held
// role reports success.
func (s *Service) AssignRole(ctx context.Context, actor Actor, userID, roleID int64) error {
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, actor, "role.assign", Role{ID: roleID})
	return nil
}

// RevokeRole removes a role from a user. Revoking an absent pair no-ops.
func (s *Service) RevokeRole(ctx context.Context, actor Actor, userID, roleID int64) error {
	if err := s.repo.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, actor, "role.revoke", Role{ID: roleID})
	return nil
}

// UserRoles returns the roles held by a user.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.UserRoles(ctx, userID)
}

// EffectivePermissions returns the deduplicated permission keys for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.UserPermissionKeys(ctx, userID)
}

func requireLegacySuperAdmin(actor Actor) error {
	if actor.AdminLevel != shared.LegacySuperAdminFlag {
		return shared.ErrForbidden
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor Actor, action string, role Role) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(role.ID, 10),
		Meta:     map[string]any{"name": role.Name},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("rbac audit record", slog.Any("error", err))
	}
}

// userSnapshot caches one user's role/permission view for the lifetime of a
// request, so repeated CanAccess calls avoid repeated joins.
type userSnapshot struct {
	hasSuperRole bool
	keys         map[string]struct{}
}

type requestCacheKey struct{}

type requestCache struct {
	mu    sync.Mutex
	users map[int64]userSnapshot
}

// WithRequestCache installs a per-request memo for access checks. Installed
// by the middleware; safe to omit (checks then hit the repository directly).
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey{}, &requestCache{users: make(map[int64]userSnapshot)})
}

func (s *Service) userSnapshot(ctx context.Context, userID int64) (userSnapshot, error) {
	cache, _ := ctx.Value(requestCacheKey{}).(*requestCache)
	if cache != nil {
		cache.mu.Lock()
		snap, ok := cache.users[userID]
		cache.mu.Unlock()
		if ok {
			return snap, nil
		}
	}

	roles, err := s.repo.UserRoles(ctx, userID)
	if err != nil {
		return userSnapshot{}, err
	}
	snap := userSnapshot{keys: make(map[string]struct{})}
	for _, role := range roles {
		if role.IsSuperAdmin {
			snap.hasSuperRole = true
		}
	}
	if !snap.hasSuperRole && len(roles) > 0 {
		keys, err := s.repo.UserPermissionKeys(ctx, userID)
		if err != nil {
			return userSnapshot{}, err
		}
		for _, key := range keys {
			snap.keys[key] = struct{}{}
		}
	}

	if cache != nil {
		cache.mu.Lock()
		cache.users[userID] = snap
		cache.mu.Unlock()
	}
	return snap, nil
}
