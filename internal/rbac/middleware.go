package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ouptel/ouptel-admin/internal/platform/httpx"
	"github.com/ouptel/ouptel-admin/internal/shared"
)

// ActorResolver loads the actor (legacy admin flag included) for a user ID.
// Implemented by the admins service; an interface here keeps the dependency
// pointing outward.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID int64) (Actor, error)
}

type actorContextKey struct{}

// ContextWithActor stores the resolved actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor placed by the middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// Middleware wires authorization checks for HTTP handlers.
type Middleware struct {
	Service  *Service
	Resolver ActorResolver
	Logger   *slog.Logger
	Audit    Auditor
}

// Require gates the wrapped handlers on the given permission key. An empty
// key admits any authenticated admin (resources predating the permission
// system stay open). The resolved actor and a per-request check memo are
// placed in the request context.
func (m Middleware) Require(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := m.currentActor(ctx)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}

			ctx = WithRequestCache(ContextWithActor(ctx, actor))
			decision := m.Service.CanAccess(ctx, actor, key)
			if !decision.Allowed() {
				if m.Logger != nil {
					m.Logger.Warn("access denied",
						slog.Int64("user_id", actor.ID),
						slog.String("permission", key),
						slog.String("path", r.URL.Path))
				}
				m.recordDecision(ctx, r, actor, decision)
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission: "+key)
				return
			}
			if m.Logger != nil {
				m.Logger.Debug("access granted",
					slog.Int64("user_id", actor.ID),
					slog.String("permission", key),
					slog.String("reason", decision.Reason.String()))
			}
			m.recordDecision(ctx, r, actor, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// recordDecision writes the access outcome and its reason to the audit log.
// Reads are skipped to keep the table to state-changing traffic.
func (m Middleware) recordDecision(ctx context.Context, r *http.Request, actor Actor, decision Decision) {
	if m.Audit == nil {
		return
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return
	}
	action := "access.granted"
	if !decision.Allowed() {
		action = "access.denied"
	}
	err := m.Audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "permission",
		EntityID: decision.PermissionKey,
		Meta: map[string]any{
			"reason": decision.Reason.String(),
			"path":   r.URL.Path,
			"method": r.Method,
		},
	})
	if err != nil && m.Logger != nil {
		m.Logger.Warn("audit access decision", slog.Any("error", err))
	}
}

func (m Middleware) currentActor(ctx context.Context) (Actor, bool) {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor, true
	}
	sess := shared.SessionFromContext(ctx)
	if sess == nil || sess.User() == "" {
		return Actor{}, false
	}
	userID, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse session user id", slog.String("value", sess.User()))
		}
		return Actor{}, false
	}
	if m.Resolver == nil {
		return Actor{ID: userID}, true
	}
	actor, err := m.Resolver.ResolveActor(ctx, userID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("resolve actor", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return Actor{}, false
	}
	return actor, true
}
