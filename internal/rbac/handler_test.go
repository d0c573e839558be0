package rbac

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ouptel/ouptel-admin/internal/shared"
	_ "github.com/ouptel/ouptel-admin/testing"
)

func newRoleRouter(t *testing.T, repo *stubRepo, actor Actor) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, nil, logger)
	mw := Middleware{Service: svc, Logger: logger}
	handler := NewHandler(logger, svc, mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(ContextWithActor(req.Context(), actor)))
		})
	})
	handler.MountRoutes(r)
	return r
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateRoleEndpoint(t *testing.T) {
	repo := newStubRepo()
	router := newRoleRouter(t, repo, superAdmin)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, jsonRequest(http.MethodPost, "/roles", `{"name":"Support","description":"Handles tickets"}`))

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), `"name":"Support"`) {
		t.Fatalf("expected role in body, got %s", res.Body.String())
	}
}

func TestCreateRoleEndpointValidation(t *testing.T) {
	router := newRoleRouter(t, newStubRepo(), superAdmin)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, jsonRequest(http.MethodPost, "/roles", `{"description":"missing name"}`))

	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestCreateRoleEndpointDuplicate(t *testing.T) {
	repo := newStubRepo()
	repo.addRole(Role{Name: "Support"})
	router := newRoleRouter(t, repo, superAdmin)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, jsonRequest(http.MethodPost, "/roles", `{"name":"Support"}`))

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestRoleMutationForbiddenForModerator(t *testing.T) {
	repo := newStubRepo()
	moderation := repo.addRole(Role{Name: "Moderation"})
	perm := repo.addPermission(shared.PermManageRoles)
	repo.grant(moderation.ID, perm)
	repo.assign(7, moderation.ID)
	router := newRoleRouter(t, repo, Actor{ID: 7, AdminLevel: "2"})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, jsonRequest(http.MethodPost, "/roles", `{"name":"Escalation"}`))

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 even with manage-roles permission, got %d", res.Code)
	}
}

func TestGetRoleNotFound(t *testing.T) {
	router := newRoleRouter(t, newStubRepo(), superAdmin)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/roles/99", nil))

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestSetRolePermissionsEndpoint(t *testing.T) {
	repo := newStubRepo()
	role := repo.addRole(Role{Name: "Moderation"})
	repo.addPermission(shared.PermManageUsers)
	router := newRoleRouter(t, repo, superAdmin)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, jsonRequest(http.MethodPut, "/roles/1", `{"name":"Moderation"}`))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 updating role, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	router.ServeHTTP(res, jsonRequest(http.MethodPut, "/roles/1/permissions", `{"permission_keys":["manage-users"]}`))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", res.Code, res.Body.String())
	}
	if _, ok := repo.rolePerms[role.ID]; !ok {
		t.Fatal("expected permission granted")
	}
}

func TestListPermissionsEndpoint(t *testing.T) {
	repo := newStubRepo()
	repo.addPermission(shared.PermManageUsers)
	router := newRoleRouter(t, repo, superAdmin)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/permissions", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), shared.PermManageUsers) {
		t.Fatalf("expected permission key in body, got %s", res.Body.String())
	}
}
