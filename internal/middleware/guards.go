package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/terraconstructs/authuser/internal/auth"
)

// Interceptor is one step of an authentication chain. It either calls next
// or writes a response and returns.
type Interceptor interface {
	Intercept(w http.ResponseWriter, r *http.Request, next http.Handler)
}

// InterceptorFunc adapts a function to the Interceptor interface.
type InterceptorFunc func(w http.ResponseWriter, r *http.Request, next http.Handler)

// Intercept calls f(w, r, next).
func (f InterceptorFunc) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	f(w, r, next)
}

// RequireAuthenticated rejects requests with no attached principal.
func RequireAuthenticated(deps AuthnDependencies) Interceptor {
	return InterceptorFunc(func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		if _, ok := auth.GetUserFromContext(r.Context()); !ok {
			deps.Metrics.RecordGuardRejection(string(SelectRequireAuthenticated))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RedirectIfUnauthenticated sends anonymous callers to loginPath with a 303.
func RedirectIfUnauthenticated(deps AuthnDependencies, loginPath string) Interceptor {
	return InterceptorFunc(func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		if _, ok := auth.GetUserFromContext(r.Context()); !ok {
			deps.Metrics.RecordGuardRejection(string(SelectRedirectIfUnauthenticated))
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OwnerOnly admits a request only when the route carries exactly one path
// parameter, that parameter parses as a UUID, and it equals the attached
// principal's ID. Anything else is rejected.
func OwnerOnly(deps AuthnDependencies) Interceptor {
	return InterceptorFunc(func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		if !isOwner(r) {
			deps.Metrics.RecordGuardRejection(string(SelectOwnerOnly))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isOwner(r *http.Request) bool {
	principal, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		return false
	}

	params := pathParams(r)
	if len(params) != 1 {
		return false
	}

	requested, err := uuid.Parse(params[0])
	if err != nil {
		return false
	}
	current, err := uuid.Parse(principal.ID)
	if err != nil {
		return false
	}
	return requested == current
}

// pathParams returns the values of named chi URL parameters, skipping the
// catch-all "*" that chi adds for mounted subrouters.
func pathParams(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	var values []string
	for i, key := range rctx.URLParams.Keys {
		if key == "*" || key == "" {
			continue
		}
		values = append(values, rctx.URLParams.Values[i])
	}
	return values
}

// RequirePermission admits a request when any role of the attached principal
// is allowed to perform act on obj by the casbin enforcer.
func RequirePermission(deps AuthnDependencies, timeout time.Duration, obj, act string) Interceptor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return InterceptorFunc(func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		principal, ok := auth.GetUserFromContext(r.Context())
		if !ok {
			deps.Metrics.RecordGuardRejection("requirePermission")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		roles, err := deps.Roles.ListRolesForPrincipal(ctx, principal.ID)
		cancel()
		if err != nil {
			deps.logger().Error("role lookup failed", "principal_id", principal.ID, "error", err)
			http.Error(w, "authorization lookup failed", http.StatusInternalServerError)
			return
		}

		names := make([]string, 0, len(roles))
		for _, role := range roles {
			names = append(names, role.Name)
		}

		allowed, err := auth.AnyRoleAllowed(deps.Enforcer, names, obj, act)
		if err != nil {
			deps.logger().Error("authorization error", "principal_id", principal.ID, "error", err)
			http.Error(w, "authorization error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			deps.Metrics.RecordGuardRejection("requirePermission")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
