package admins_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ouptel/ouptel-admin/internal/admins"
	"github.com/ouptel/ouptel-admin/internal/rbac"
	"github.com/ouptel/ouptel-admin/internal/shared"
	_ "github.com/ouptel/ouptel-admin/testing"
)

type stubAdminRepo struct {
	admins map[int64]admins.Admin
}

func (s *stubAdminRepo) List(ctx context.Context, limit, offset int) ([]admins.Admin, int, error) {
	var out []admins.Admin
	for _, a := range s.admins {
		out = append(out, a)
	}
	return out, len(out), nil
}

func (s *stubAdminRepo) Get(ctx context.Context, id int64) (admins.Admin, error) {
	a, ok := s.admins[id]
	if !ok {
		return admins.Admin{}, shared.ErrNotFound
	}
	return a, nil
}

type stubRoleRepo struct {
	rbac.RepositoryPort
	assigned map[int64][]int64
	roles    map[int64]rbac.Role
}

func (s *stubRoleRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, ok := s.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	s.assigned[userID] = append(s.assigned[userID], roleID)
	return nil
}

func (s *stubRoleRepo) RevokeRole(ctx context.Context, userID, roleID int64) error {
	var kept []int64
	for _, id := range s.assigned[userID] {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	s.assigned[userID] = kept
	return nil
}

func (s *stubRoleRepo) UserRoles(ctx context.Context, userID int64) ([]rbac.Role, error) {
	var out []rbac.Role
	for _, id := range s.assigned[userID] {
		out = append(out, s.roles[id])
	}
	return out, nil
}

func newAdminsRouter(t *testing.T, adminRepo *stubAdminRepo, roleRepo *stubRoleRepo) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := admins.NewService(adminRepo)
	roles := rbac.NewService(roleRepo, nil, logger)
	mw := rbac.Middleware{Service: roles, Resolver: service, Logger: logger}
	handler := admins.NewHandler(logger, service, roles, mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := rbac.ContextWithActor(req.Context(), rbac.Actor{ID: 1, AdminLevel: shared.LegacySuperAdminFlag})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/admin/admins", handler.MountRoutes)
	return r
}

func seedStubs() (*stubAdminRepo, *stubRoleRepo) {
	adminRepo := &stubAdminRepo{admins: map[int64]admins.Admin{
		1: {ID: 1, Username: "root", Email: "root@ouptel.local", AdminLevel: "1", IsActive: true},
		7: {ID: 7, Username: "mod", Email: "mod@ouptel.local", AdminLevel: "2", IsActive: true},
	}}
	roleRepo := &stubRoleRepo{
		assigned: make(map[int64][]int64),
		roles:    map[int64]rbac.Role{5: {ID: 5, Name: "Moderation"}},
	}
	return adminRepo, roleRepo
}

func TestListAdmins(t *testing.T) {
	adminRepo, roleRepo := seedStubs()
	router := newAdminsRouter(t, adminRepo, roleRepo)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin/admins/", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "mod@ouptel.local") {
		t.Fatalf("expected admin in body, got %s", res.Body.String())
	}
}

func TestAssignAndRevokeRole(t *testing.T) {
	adminRepo, roleRepo := seedStubs()
	router := newAdminsRouter(t, adminRepo, roleRepo)

	req := httptest.NewRequest(http.MethodPost, "/admin/admins/7/roles", strings.NewReader(`{"role_id":5}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", res.Code, res.Body.String())
	}
	if len(roleRepo.assigned[7]) != 1 {
		t.Fatalf("expected assignment, got %v", roleRepo.assigned)
	}

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/admin/admins/7/roles/5", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(roleRepo.assigned[7]) != 0 {
		t.Fatalf("expected revocation, got %v", roleRepo.assigned)
	}
}

func TestAssignRoleUnknownRole(t *testing.T) {
	adminRepo, roleRepo := seedStubs()
	router := newAdminsRouter(t, adminRepo, roleRepo)

	req := httptest.NewRequest(http.MethodPost, "/admin/admins/7/roles", strings.NewReader(`{"role_id":99}`))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown role, got %d", res.Code)
	}
}
