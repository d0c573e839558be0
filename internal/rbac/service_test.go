package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ouptel/ouptel-admin/internal/shared"
	_ "github.com/ouptel/ouptel-admin/testing"
)

type stubRepo struct {
	roles       map[int64]Role
	perms       map[string]Permission
	rolePerms   map[int64]map[int64]struct{}
	userRoles   map[int64]map[int64]struct{}
	lookupErr   error
	nextRoleID  int64
	nextPermID  int64
	roleQueries int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		roles:     make(map[int64]Role),
		perms:     make(map[string]Permission),
		rolePerms: make(map[int64]map[int64]struct{}),
		userRoles: make(map[int64]map[int64]struct{}),
	}
}

func (s *stubRepo) addRole(role Role) Role {
	s.nextRoleID++
	role.ID = s.nextRoleID
	s.roles[role.ID] = role
	return role
}

func (s *stubRepo) addPermission(key string) Permission {
	s.nextPermID++
	perm := Permission{ID: s.nextPermID, Key: key}
	s.perms[key] = perm
	return perm
}

func (s *stubRepo) grant(roleID int64, perm Permission) {
	if s.rolePerms[roleID] == nil {
		s.rolePerms[roleID] = make(map[int64]struct{})
	}
	s.rolePerms[roleID][perm.ID] = struct{}{}
}

func (s *stubRepo) assign(userID, roleID int64) {
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[int64]struct{})
	}
	s.userRoles[userID][roleID] = struct{}{}
}

func (s *stubRepo) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

func (s *stubRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *stubRepo) CreateRole(ctx context.Context, name, description string, isSuperAdmin bool) (Role, error) {
	for _, r := range s.roles {
		if r.Name == name {
			return Role{}, shared.ErrDuplicateRole
		}
	}
	return s.addRole(Role{Name: name, Description: description, IsSuperAdmin: isSuperAdmin}), nil
}

func (s *stubRepo) UpdateRole(ctx context.Context, id int64, name, description string, isSuperAdmin bool) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	role.Name = name
	role.Description = description
	role.IsSuperAdmin = isSuperAdmin
	s.roles[id] = role
	return role, nil
}

func (s *stubRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := s.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.roles, id)
	delete(s.rolePerms, id)
	for _, held := range s.userRoles {
		delete(held, id)
	}
	return nil
}

func (s *stubRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range s.perms {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) GetPermissionByKey(ctx context.Context, key string) (Permission, error) {
	perm, ok := s.perms[key]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return perm, nil
}

func (s *stubRepo) EnsurePermission(ctx context.Context, key, label, navGroup string) (Permission, error) {
	if perm, ok := s.perms[key]; ok {
		perm.Label = label
		perm.NavGroup = navGroup
		s.perms[key] = perm
		return perm, nil
	}
	perm := s.addPermission(key)
	perm.Label = label
	perm.NavGroup = navGroup
	s.perms[key] = perm
	return perm, nil
}

func (s *stubRepo) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	if s.rolePerms[roleID] == nil {
		s.rolePerms[roleID] = make(map[int64]struct{})
	}
	s.rolePerms[roleID][permissionID] = struct{}{}
	return nil
}

func (s *stubRepo) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	delete(s.rolePerms[roleID], permissionID)
	return nil
}

func (s *stubRepo) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	var out []Permission
	for _, perm := range s.perms {
		if _, ok := s.rolePerms[roleID][perm.ID]; ok {
			out = append(out, perm)
		}
	}
	return out, nil
}

func (s *stubRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, ok := s.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	s.assign(userID, roleID)
	return nil
}

func (s *stubRepo) RevokeRole(ctx context.Context, userID, roleID int64) error {
	delete(s.userRoles[userID], roleID)
	return nil
}

func (s *stubRepo) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	s.roleQueries++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	var out []Role
	for roleID := range s.userRoles[userID] {
		out = append(out, s.roles[roleID])
	}
	return out, nil
}

func (s *stubRepo) UserPermissionKeys(ctx context.Context, userID int64) ([]string, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	seen := make(map[string]struct{})
	var out []string
	for roleID := range s.userRoles[userID] {
		for _, perm := range s.perms {
			if _, ok := s.rolePerms[roleID][perm.ID]; ok {
				if _, dup := seen[perm.Key]; !dup {
					seen[perm.Key] = struct{}{}
					out = append(out, perm.Key)
				}
			}
		}
	}
	return out, nil
}

var superAdmin = Actor{ID: 1, AdminLevel: shared.LegacySuperAdminFlag}

func TestCanAccessLegacyFlagWins(t *testing.T) {
	repo := newStubRepo()
	repo.lookupErr = errors.New("db down")
	svc := NewService(repo, nil, nil)

	decision := svc.CanAccess(context.Background(), superAdmin, shared.PermManageSettings)
	assert.True(t, decision.Allowed())
	assert.Equal(t, GrantedByLegacyFlag, decision.Reason)
	assert.Zero(t, repo.roleQueries, "legacy grant must not hit the repository")
}

func TestCanAccessSuperRole(t *testing.T) {
	repo := newStubRepo()
	role := repo.addRole(Role{Name: "Owner", IsSuperAdmin: true})
	repo.assign(7, role.ID)
	svc := NewService(repo, nil, nil)

	decision := svc.CanAccess(context.Background(), Actor{ID: 7, AdminLevel: "2"}, shared.PermManageOrders)
	assert.True(t, decision.Allowed())
	assert.Equal(t, GrantedBySuperRole, decision.Reason)
}

func TestCanAccessPermissionUnion(t *testing.T) {
	repo := newStubRepo()
	users := repo.addPermission(shared.PermManageUsers)
	pages := repo.addPermission(shared.PermManagePages)
	moderation := repo.addRole(Role{Name: "Moderation"})
	content := repo.addRole(Role{Name: "Content"})
	repo.grant(moderation.ID, users)
	repo.grant(content.ID, pages)
	repo.assign(7, moderation.ID)
	repo.assign(7, content.ID)
	svc := NewService(repo, nil, nil)

	actor := Actor{ID: 7, AdminLevel: "2"}
	assert.Equal(t, GrantedByPermission, svc.CanAccess(context.Background(), actor, shared.PermManageUsers).Reason)
	assert.Equal(t, GrantedByPermission, svc.CanAccess(context.Background(), actor, shared.PermManagePages).Reason)
	assert.Equal(t, Denied, svc.CanAccess(context.Background(), actor, shared.PermManageSettings).Reason)
}

func TestCanAccessDefaultOpen(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil)

	decision := svc.CanAccess(context.Background(), Actor{ID: 7, AdminLevel: "2"}, "")
	assert.True(t, decision.Allowed())
	assert.Equal(t, GrantedDefaultOpen, decision.Reason)
}

func TestCanAccessFailsClosedOnLookupError(t *testing.T) {
	repo := newStubRepo()
	repo.lookupErr = errors.New("db down")
	svc := NewService(repo, nil, nil)

	decision := svc.CanAccess(context.Background(), Actor{ID: 7, AdminLevel: "2"}, shared.PermManageUsers)
	assert.False(t, decision.Allowed())
}

func TestCanAccessRequestCacheMemoises(t *testing.T) {
	repo := newStubRepo()
	perm := repo.addPermission(shared.PermManageUsers)
	role := repo.addRole(Role{Name: "Moderation"})
	repo.grant(role.ID, perm)
	repo.assign(7, role.ID)
	svc := NewService(repo, nil, nil)

	ctx := WithRequestCache(context.Background())
	actor := Actor{ID: 7, AdminLevel: "2"}
	svc.CanAccess(ctx, actor, shared.PermManageUsers)
	svc.CanAccess(ctx, actor, shared.PermManagePages)
	svc.CanAccess(ctx, actor, shared.PermManageSettings)
	assert.Equal(t, 1, repo.roleQueries)
}

func TestRoleMutationsRequireLegacySuperAdmin(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, nil)
	moderator := Actor{ID: 7, AdminLevel: "2"}

	_, err := svc.CreateRole(context.Background(), moderator, "Support", "", false)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.UpdateRole(context.Background(), moderator, 1, "Support", "", false)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteRole(context.Background(), moderator, 1), shared.ErrForbidden)
	assert.ErrorIs(t, svc.SetRolePermissions(context.Background(), moderator, 1, nil), shared.ErrForbidden)
}

func TestCreateRoleValidatesName(t *testing.T) {
	svc := NewService(newStubRepo(), nil, nil)

	_, err := svc.CreateRole(context.Background(), superAdmin, "   ", "", false)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
}

func TestCreateRoleDuplicateName(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.CreateRole(context.Background(), superAdmin, "Support", "", false)
	require.NoError(t, err)
	_, err = svc.CreateRole(context.Background(), superAdmin, "Support", "", false)
	assert.ErrorIs(t, err, shared.ErrDuplicateRole)
}

func TestSetRolePermissionsReplacesSet(t *testing.T) {
	repo := newStubRepo()
	users := repo.addPermission(shared.PermManageUsers)
	repo.addPermission(shared.PermManagePages)
	role := repo.addRole(Role{Name: "Moderation"})
	repo.grant(role.ID, users)
	svc := NewService(repo, nil, nil)

	err := svc.SetRolePermissions(context.Background(), superAdmin, role.ID, []string{shared.PermManagePages})
	require.NoError(t, err)

	_, perms, err := svc.GetRole(context.Background(), role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, shared.PermManagePages, perms[0].Key)
}

func TestSetRolePermissionsUnknownKey(t *testing.T) {
	repo := newStubRepo()
	role := repo.addRole(Role{Name: "Moderation"})
	svc := NewService(repo, nil, nil)

	err := svc.SetRolePermissions(context.Background(), superAdmin, role.ID, []string{"no-such-key"})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	role := repo.addRole(Role{Name: "Moderation"})
	svc := NewService(repo, nil, nil)

	require.NoError(t, svc.AssignRole(context.Background(), superAdmin, 7, role.ID))
	require.NoError(t, svc.AssignRole(context.Background(), superAdmin, 7, role.ID))

	roles, err := svc.UserRoles(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestRevokeAbsentRoleNoOps(t *testing.T) {
	repo := newStubRepo()
	role := repo.addRole(Role{Name: "Moderation"})
	svc := NewService(repo, nil, nil)

	require.NoError(t, svc.RevokeRole(context.Background(), superAdmin, 7, role.ID))
}

func TestDeleteRoleCascadesAssignments(t *testing.T) {
	repo := newStubRepo()
	perm := repo.addPermission(shared.PermManageUsers)
	role := repo.addRole(Role{Name: "Moderation"})
	repo.grant(role.ID, perm)
	repo.assign(7, role.ID)
	svc := NewService(repo, nil, nil)

	require.NoError(t, svc.DeleteRole(context.Background(), superAdmin, role.ID))

	roles, err := svc.UserRoles(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.Equal(t, Denied, svc.CanAccess(context.Background(), Actor{ID: 7, AdminLevel: "2"}, shared.PermManageUsers).Reason)
}
