package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terraconstructs/authuser/internal/auth"
	authmiddleware "github.com/terraconstructs/authuser/internal/middleware"
	"github.com/terraconstructs/authuser/internal/telemetry"
)

// RouterOptions controls the construction of the HTTP router.
// The zero value is valid; sensible defaults are applied where fields are not set.
type RouterOptions struct {
	IAMService iamAdminService
	// Pipeline builds every authentication chain. Principal, role and
	// login routes are mounted only when both IAMService and Pipeline are set.
	Pipeline *authmiddleware.Builder
	// CreateChain guards POST /principals. Empty leaves it public.
	CreateChain []authmiddleware.Selector
	// RBACEnabled adds a casbin permission check to role mutations.
	RBACEnabled bool

	LoginLimiter   *authmiddleware.LoginRateLimiter
	LoginRedirect  string
	LogoutRedirect string

	Metrics       *telemetry.ServerMetrics
	Logger        *slog.Logger
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the principal, role and login handlers mounted. The chains in
// opts.Pipeline must already be known to build; NewRouter panics otherwise.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	// Apply custom middleware passed from the caller.
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	if opts.IAMService != nil && opts.Pipeline != nil {
		chains := newRouteChains(opts)
		MountPrincipalRoutes(r, NewPrincipalHandlers(opts.IAMService, opts.Logger), chains)
		MountRoleRoutes(r, NewRoleHandlers(opts.IAMService, opts.Logger), chains)
		MountAuthRoutes(r, opts, chains)
	} else {
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("skipping principal, role and login routes: IAM service or pipeline not available")
	}

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}

// RouteChains holds the chains each route group runs behind.
type RouteChains struct {
	// Default is the configured default chain (owner-protected principal routes).
	Default *authmiddleware.Chain
	// Authenticated admits any identified caller.
	Authenticated *authmiddleware.Chain
	// RoleWrite guards role mutations.
	RoleWrite *authmiddleware.Chain
	// RoleGrant guards attaching a role from the principal side.
	RoleGrant *authmiddleware.Chain
	// Create guards principal creation. Nil means public.
	Create *authmiddleware.Chain
}

func newRouteChains(opts RouterOptions) RouteChains {
	p := opts.Pipeline

	chains := RouteChains{
		Default: p.MustBuild(),
		Authenticated: p.MustBuild(
			authmiddleware.SelectSession,
			authmiddleware.SelectBasic,
			authmiddleware.SelectToken,
			authmiddleware.SelectRequireAuthenticated,
		),
	}

	chains.RoleWrite = chains.Authenticated
	chains.RoleGrant = chains.Authenticated
	if opts.RBACEnabled {
		chains.RoleWrite = chains.Authenticated.With(p.RequirePermission(auth.ObjectRoles, auth.ActionWrite))
		chains.RoleGrant = chains.Authenticated.With(p.RequirePermission(auth.ObjectPrincipals, auth.ActionWrite))
	}

	if len(opts.CreateChain) > 0 {
		chains.Create = p.MustBuild(opts.CreateChain...)
	}
	return chains
}

// MountPrincipalRoutes mounts /principals.
func MountPrincipalRoutes(r chi.Router, h *PrincipalHandlers, chains RouteChains) {
	r.Route("/principals", func(r chi.Router) {
		r.Get("/", h.List)

		if chains.Create != nil {
			r.With(chains.Create.Middleware()).Post("/", h.Create)
		} else {
			r.Post("/", h.Create)
		}

		r.Get("/{id}/public", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(chains.Default.Middleware())
			r.Get("/{id}", h.Get)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})

		r.With(chains.RoleGrant.Middleware()).Post("/{id}/addRole/{roleId}", h.AddRole)
	})
}

// MountRoleRoutes mounts /roles.
func MountRoleRoutes(r chi.Router, h *RoleHandlers, chains RouteChains) {
	r.Route("/roles", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/findOrCreate/{name}", h.FindOrCreate)

		r.With(chains.Authenticated.Middleware()).Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(chains.RoleWrite.Middleware())
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Post("/{id}", h.AttachPrincipal)
		})
	})
}

// MountAuthRoutes mounts /login and /logout. Login runs the authenticated
// chain behind the per-client rate limiter.
func MountAuthRoutes(r chi.Router, opts RouterOptions, chains RouteChains) {
	pipeline := opts.Pipeline
	authOpts := AuthHandlerOptions{
		LoginRedirect:     opts.LoginRedirect,
		LogoutRedirect:    opts.LogoutRedirect,
		Sessions:          pipeline.Dependencies().Sessions,
		SessionCookieName: pipeline.Config().SessionCookieName,
		StorageTimeout:    pipeline.Config().StorageTimeout,
		Logger:            opts.Logger,
	}

	login := chains.Authenticated.Then(HandleLogin(opts.IAMService, authOpts))
	if opts.LoginLimiter != nil {
		login = opts.LoginLimiter.Middleware(login)
	}
	r.Method(http.MethodGet, "/login", login)
	r.Method(http.MethodPost, "/login", login)

	logout := HandleLogout(opts.IAMService, authOpts)
	r.Get("/logout", logout)
	r.Post("/logout", logout)
}
