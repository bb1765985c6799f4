package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/middleware"
	"github.com/terraconstructs/authuser/internal/services/iam"
	"github.com/terraconstructs/authuser/internal/sessionstore"
)

// LoginResponse is returned by a successful login when no redirect is configured.
type LoginResponse struct {
	Principal iam.PublicPrincipal `json:"principal"`
	Token     string              `json:"token"`
	ExpiresAt int64               `json:"expires_at"`
}

// AuthHandlerOptions configures login and logout.
type AuthHandlerOptions struct {
	// LoginRedirect, when set, answers a successful login with a 303 here.
	LoginRedirect string
	// LogoutRedirect, when set, answers logout with a 303 here.
	LogoutRedirect string

	Sessions          sessionstore.Store
	SessionCookieName string
	StorageTimeout    time.Duration
	Logger            *slog.Logger
}

func (o AuthHandlerOptions) timeout() time.Duration {
	if o.StorageTimeout > 0 {
		return o.StorageTimeout
	}
	return 5 * time.Second
}

func (o AuthHandlerOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// HandleLogin is the terminal handler of the login chain. The chain has
// already authenticated the caller and, for credential logins, written the
// session cookie. It issues a bearer token and answers with the principal
// or a redirect.
func HandleLogin(iamService iamAdminService, opts AuthHandlerOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		principal, ok := auth.GetUserFromContext(ctx)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		token, expiresAt, err := iamService.IssueToken(ctx, principal.ID)
		if err != nil {
			opts.logger().Error("issue token failed", "principal_id", principal.ID, "error", err)
			abandonSession(w, r, principal, opts)
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}

		if opts.LoginRedirect != "" {
			http.Redirect(w, r, opts.LoginRedirect, http.StatusSeeOther)
			return
		}

		public, err := iamService.GetPrincipal(ctx, principal.ID)
		if err != nil {
			writeServiceError(w, r, opts.logger(), err)
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Principal: *public,
			Token:     token,
			ExpiresAt: expiresAt.Unix(),
		})
	}
}

// abandonSession undoes the session written earlier in the chain so a failed
// login does not leave the client half logged in.
func abandonSession(w http.ResponseWriter, r *http.Request, principal auth.AuthenticatedPrincipal, opts AuthHandlerOptions) {
	if principal.Method == auth.MethodSession || principal.SessionToken == "" || opts.Sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), opts.timeout())
	defer cancel()
	if err := opts.Sessions.Delete(ctx, principal.SessionToken); err != nil {
		opts.logger().Error("delete abandoned session", "principal_id", principal.ID, "error", err)
	}
	http.SetCookie(w, auth.ExpiredSessionCookie(r, opts.SessionCookieName))
}

// HandleLogout ends the cookie session and revokes the presented bearer
// token. It succeeds for anonymous callers too.
func HandleLogout(iamService iamAdminService, opts AuthHandlerOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), opts.timeout())
		defer cancel()

		if cookie, err := r.Cookie(opts.SessionCookieName); err == nil && cookie.Value != "" && opts.Sessions != nil {
			if err := opts.Sessions.Delete(ctx, cookie.Value); err != nil {
				writeServiceError(w, r, opts.logger(), err)
				return
			}
		}

		if token, ok := middleware.BearerToken(r); ok {
			if err := iamService.RevokeToken(ctx, token); err != nil {
				writeServiceError(w, r, opts.logger(), err)
				return
			}
		}

		http.SetCookie(w, auth.ExpiredSessionCookie(r, opts.SessionCookieName))

		if opts.LogoutRedirect != "" {
			http.Redirect(w, r, opts.LogoutRedirect, http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusOK, StatusResponse{Status: "logged out"})
	}
}
