package settings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ouptel/ouptel-admin/internal/platform/httpx"
	"github.com/ouptel/ouptel-admin/internal/rbac"
	"github.com/ouptel/ouptel-admin/internal/shared"
)

// Handler exposes the generic settings endpoints: one GET and one POST per
// group. Each settings page in the back office posts its whole form body to
// POST /settings/{group}.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require(shared.PermManageSettings))
		r.Get("/{group}", h.getGroup)
		r.Post("/{group}", h.updateGroup)
	})
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	values := h.service.GetGroup(r.Context(), group)
	payload := map[string]any{"group": group, "values": values}
	// Field errors flashed by a failed form post are consumed on the next
	// page load, one-shot like PopFlash.
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if raw := sess.Get(errorsSessionKey(group)); raw != "" {
			var fieldErrs map[string]string
			if err := json.Unmarshal([]byte(raw), &fieldErrs); err == nil {
				payload["errors"] = fieldErrs
			}
			sess.Delete(errorsSessionKey(group))
		}
	}
	httpx.JSON(w, http.StatusOK, payload)
}

func errorsSessionKey(group string) string {
	return "settings_errors:" + group
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")

	fields, isForm, ok := h.parseFields(w, r)
	if !ok {
		return
	}

	// Checkbox semantics of the legacy pages: a boolean toggle absent from
	// a form post means unchecked, so expand known toggles to an explicit
	// "0" before handing the set to the store. JSON callers submit explicit
	// values themselves.
	if isForm {
		if schema, known := h.service.Schema(group); known {
			for _, key := range schema.BoolFields() {
				if _, present := fields[key]; !present {
					fields[key] = "0"
				}
			}
		}
	}

	if err := h.service.Update(r.Context(), group, fields); err != nil {
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			h.respondInvalid(w, r, group, verr, isForm)
			return
		}
		h.logger.Error("update settings", slog.String("group", group), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	if isForm {
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Settings updated"})
		}
		http.Redirect(w, r, h.backLocation(r, group), http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseFields flattens the request body into a field map. Form posts take
// the first value per key and drop the CSRF token; JSON bodies must be a
// flat string map.
func (h *Handler) parseFields(w http.ResponseWriter, r *http.Request) (map[string]string, bool, bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "body must be a flat string map")
			return nil, false, false
		}
		return fields, false, true
	}

	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
		return nil, true, false
	}
	fields := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if key == shared.CSRFFormField || len(values) == 0 {
			continue
		}
		fields[key] = values[0]
	}
	return fields, true, true
}

func (h *Handler) respondInvalid(w http.ResponseWriter, r *http.Request, group string, verr *shared.ValidationError, isForm bool) {
	if !isForm {
		httpx.ValidationProblem(w, verr.Fields)
		return
	}
	// Form round-trip: flash the field errors and send the admin back to
	// the page they came from, previously entered values intact.
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if encoded, err := json.Marshal(verr.Fields); err == nil {
			sess.Set(errorsSessionKey(group), string(encoded))
		}
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Please correct the highlighted fields"})
	}
	http.Redirect(w, r, h.backLocation(r, group), http.StatusSeeOther)
}

func (h *Handler) backLocation(r *http.Request, group string) string {
	if ref := r.Header.Get("Referer"); ref != "" && strings.HasPrefix(ref, "/") {
		return ref
	}
	return "/admin/settings/" + group
}
