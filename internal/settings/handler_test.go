package settings_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ouptel/ouptel-admin/internal/rbac"
	"github.com/ouptel/ouptel-admin/internal/settings"
	"github.com/ouptel/ouptel-admin/internal/shared"
	_ "github.com/ouptel/ouptel-admin/testing"
)

type memRepo struct {
	groups map[string]map[string]string
}

func (m *memRepo) GetGroup(ctx context.Context, group string) (map[string]string, error) {
	values := make(map[string]string, len(m.groups[group]))
	for k, v := range m.groups[group] {
		values[k] = v
	}
	return values, nil
}

func (m *memRepo) UpsertFields(ctx context.Context, group string, fields map[string]string) error {
	if m.groups == nil {
		m.groups = make(map[string]map[string]string)
	}
	if m.groups[group] == nil {
		m.groups[group] = make(map[string]string)
	}
	for k, v := range fields {
		m.groups[group][k] = v
	}
	return nil
}

func newSettingsRouter(t *testing.T, repo *memRepo) (chi.Router, *shared.Session) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := settings.NewGroupCache(client, time.Minute, nil)
	service := settings.NewService(repo, cache, settings.DefaultSchemas(), nil, nil)
	mw := rbac.Middleware{Service: rbac.NewService(nil, nil, nil)}
	handler := settings.NewHandler(nil, service, mw)

	sess := &shared.Session{ID: "test-session"}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithSession(req.Context(), sess)
			ctx = rbac.ContextWithActor(ctx, rbac.Actor{ID: 1, AdminLevel: shared.LegacySuperAdminFlag})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/admin/settings", handler.MountRoutes)
	return r, sess
}

func TestGetGroupReturnsValues(t *testing.T) {
	repo := &memRepo{groups: map[string]map[string]string{
		settings.GroupGeneral: {"site_name": "Ouptel"},
	}}
	router, _ := newSettingsRouter(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/admin/settings/general", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"site_name":"Ouptel"`) {
		t.Fatalf("expected site_name in body, got %s", res.Body.String())
	}
}

func TestUpdateGroupJSON(t *testing.T) {
	repo := &memRepo{}
	router, _ := newSettingsRouter(t, repo)

	body := strings.NewReader(`{"site_name":"Ouptel","default_language":"en"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/settings/general", body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", res.Code, res.Body.String())
	}
	if repo.groups[settings.GroupGeneral]["site_name"] != "Ouptel" {
		t.Fatalf("expected site_name stored, got %v", repo.groups)
	}
}

func TestUpdateGroupJSONValidation(t *testing.T) {
	repo := &memRepo{}
	router, _ := newSettingsRouter(t, repo)

	body := strings.NewReader(`{"max_file_size":"9999"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/settings/file_upload", body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "max_file_size") {
		t.Fatalf("expected field error in body, got %s", res.Body.String())
	}
	if len(repo.groups) != 0 {
		t.Fatalf("invalid submission must not persist, got %v", repo.groups)
	}
}

func TestUpdateGroupFormExpandsCheckboxes(t *testing.T) {
	repo := &memRepo{groups: map[string]map[string]string{
		settings.GroupWebsiteMode: {"maintenance_mode": "1", "registration_enabled": "1"},
	}}
	router, sess := newSettingsRouter(t, repo)

	form := url.Values{}
	form.Set("registration_enabled", "on")
	form.Set("csrf_token", "ignored")
	req := httptest.NewRequest(http.MethodPost, "/admin/settings/website_mode", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", res.Code, res.Body.String())
	}
	stored := repo.groups[settings.GroupWebsiteMode]
	if stored["registration_enabled"] != "1" {
		t.Fatalf("expected checked toggle to store 1, got %q", stored["registration_enabled"])
	}
	if stored["maintenance_mode"] != "0" {
		t.Fatalf("expected omitted toggle to store 0, got %q", stored["maintenance_mode"])
	}
	flash := sess.PopFlash()
	if flash == nil || flash.Kind != "success" {
		t.Fatalf("expected success flash, got %+v", flash)
	}
}

func TestUpdateGroupFormValidationRedirects(t *testing.T) {
	repo := &memRepo{}
	router, sess := newSettingsRouter(t, repo)

	form := url.Values{}
	form.Set("max_file_size", "0")
	req := httptest.NewRequest(http.MethodPost, "/admin/settings/file_upload", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "/admin/settings/file_upload")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if res.Header().Get("Location") != "/admin/settings/file_upload" {
		t.Fatalf("expected redirect back to the page, got %q", res.Header().Get("Location"))
	}
	if sess.Get("settings_errors:file_upload") == "" {
		t.Fatal("expected stashed field errors in session")
	}
}

func TestGetGroupConsumesFlashedErrors(t *testing.T) {
	repo := &memRepo{}
	router, sess := newSettingsRouter(t, repo)

	form := url.Values{}
	form.Set("max_file_size", "0")
	req := httptest.NewRequest(http.MethodPost, "/admin/settings/file_upload", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(httptest.NewRecorder(), req)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin/settings/file_upload", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"errors"`) || !strings.Contains(res.Body.String(), "max_file_size") {
		t.Fatalf("expected flashed field errors in body, got %s", res.Body.String())
	}
	if sess.Get("settings_errors:file_upload") != "" {
		t.Fatal("expected errors cleared after one read")
	}

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin/settings/file_upload", nil))
	if strings.Contains(res.Body.String(), `"errors"`) {
		t.Fatalf("expected no errors on second read, got %s", res.Body.String())
	}
}
