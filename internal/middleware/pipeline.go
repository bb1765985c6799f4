package middleware

import (
	"fmt"
	"net/http"
	"strings"
)

// Selector names one strategy or guard in a chain.
type Selector string

const (
	SelectSession                   Selector = "session"
	SelectBasic                     Selector = "basic"
	SelectToken                     Selector = "token"
	SelectOwnerOnly                 Selector = "ownerOnly"
	SelectRequireAuthenticated      Selector = "requireAuthenticated"
	SelectRedirectIfUnauthenticated Selector = "redirectIfUnauthenticated"
)

// IsStrategy reports whether s attaches identity rather than enforcing policy.
func (s Selector) IsStrategy() bool {
	switch s {
	case SelectSession, SelectBasic, SelectToken:
		return true
	}
	return false
}

func (s Selector) valid() bool {
	switch s {
	case SelectSession, SelectBasic, SelectToken,
		SelectOwnerOnly, SelectRequireAuthenticated, SelectRedirectIfUnauthenticated:
		return true
	}
	return false
}

// DefaultChain returns the chain used when none is configured:
// session, basic, redirectIfUnauthenticated, ownerOnly, requireAuthenticated.
func DefaultChain() []Selector {
	return []Selector{
		SelectSession,
		SelectBasic,
		SelectRedirectIfUnauthenticated,
		SelectOwnerOnly,
		SelectRequireAuthenticated,
	}
}

// ParseSelectors parses a comma separated selector list such as
// "session,basic,requireAuthenticated". An empty string yields nil.
func ParseSelectors(s string) ([]Selector, error) {
	var selectors []Selector
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sel := Selector(part)
		if !sel.valid() {
			return nil, fmt.Errorf("unknown auth selector %q", part)
		}
		selectors = append(selectors, sel)
	}
	return selectors, nil
}

// Builder turns selector lists into chains over a fixed set of dependencies.
type Builder struct {
	deps AuthnDependencies
	cfg  PipelineConfig
}

// NewBuilder creates a Builder. Zero fields of cfg take their defaults.
func NewBuilder(deps AuthnDependencies, cfg PipelineConfig) *Builder {
	return &Builder{deps: deps, cfg: cfg.withDefaults()}
}

// Config returns the effective pipeline configuration.
func (b *Builder) Config() PipelineConfig {
	return b.cfg
}

// Dependencies returns the dependencies chains are built over.
func (b *Builder) Dependencies() AuthnDependencies {
	return b.deps
}

// Build composes selectors into a Chain. With no selectors the configured
// default chain is used. Strategies must precede guards and a selector may
// appear only once. When the chain contains the session strategy, a session
// is written after the last strategy for principals identified another way.
func (b *Builder) Build(selectors ...Selector) (*Chain, error) {
	if len(selectors) == 0 {
		selectors = b.cfg.DefaultChain
	}

	seen := make(map[Selector]bool, len(selectors))
	guardSeen := false
	lastStrategy := -1
	hasSession := false
	for i, sel := range selectors {
		if !sel.valid() {
			return nil, fmt.Errorf("unknown auth selector %q", sel)
		}
		if seen[sel] {
			return nil, fmt.Errorf("auth selector %q listed twice", sel)
		}
		seen[sel] = true

		if sel.IsStrategy() {
			if guardSeen {
				return nil, fmt.Errorf("strategy %q must precede all guards", sel)
			}
			lastStrategy = i
		} else {
			guardSeen = true
		}
		if sel == SelectSession {
			hasSession = true
		}
	}

	interceptors := make([]Interceptor, 0, len(selectors)+1)
	for i, sel := range selectors {
		ic, err := b.interceptorFor(sel)
		if err != nil {
			return nil, err
		}
		interceptors = append(interceptors, ic)

		if hasSession && i == lastStrategy {
			interceptors = append(interceptors, &sessionCommit{deps: b.deps, cfg: b.cfg, timeout: b.cfg.StorageTimeout})
		}
	}

	return &Chain{
		selectors:    append([]Selector(nil), selectors...),
		interceptors: interceptors,
	}, nil
}

// MustBuild is Build that panics on error, for statically known chains.
func (b *Builder) MustBuild(selectors ...Selector) *Chain {
	c, err := b.Build(selectors...)
	if err != nil {
		panic(err)
	}
	return c
}

// RequirePermission returns the casbin guard bound to this builder's
// dependencies, for use with Chain.With.
func (b *Builder) RequirePermission(obj, act string) Interceptor {
	return RequirePermission(b.deps, b.cfg.StorageTimeout, obj, act)
}

func (b *Builder) interceptorFor(sel Selector) (Interceptor, error) {
	strategy := func(s Strategy) Interceptor {
		return &strategyInterceptor{strategy: s, deps: b.deps, timeout: b.cfg.StorageTimeout}
	}

	switch sel {
	case SelectBasic:
		if b.deps.Principals == nil || b.deps.Hasher == nil {
			return nil, fmt.Errorf("basic strategy requires principals and a password hasher")
		}
		return strategy(&BasicStrategy{Principals: b.deps.Principals, Hasher: b.deps.Hasher}), nil
	case SelectSession:
		if b.deps.Principals == nil || b.deps.Sessions == nil {
			return nil, fmt.Errorf("session strategy requires principals and a session store")
		}
		return strategy(&SessionStrategy{
			Principals: b.deps.Principals,
			Sessions:   b.deps.Sessions,
			CookieName: b.cfg.SessionCookieName,
		}), nil
	case SelectToken:
		if b.deps.Principals == nil || b.deps.Tokens == nil {
			return nil, fmt.Errorf("token strategy requires principals and a token store")
		}
		return strategy(&TokenStrategy{Principals: b.deps.Principals, Tokens: b.deps.Tokens}), nil
	case SelectOwnerOnly:
		return OwnerOnly(b.deps), nil
	case SelectRequireAuthenticated:
		return RequireAuthenticated(b.deps), nil
	case SelectRedirectIfUnauthenticated:
		return RedirectIfUnauthenticated(b.deps, b.cfg.LoginPath), nil
	}
	return nil, fmt.Errorf("unknown auth selector %q", sel)
}

// Chain is an ordered list of interceptors executed front to back.
type Chain struct {
	selectors    []Selector
	interceptors []Interceptor
}

// Selectors returns the selectors the chain was built from.
func (c *Chain) Selectors() []Selector {
	return append([]Selector(nil), c.selectors...)
}

// With returns a copy of the chain with extra interceptors appended.
func (c *Chain) With(extra ...Interceptor) *Chain {
	out := &Chain{selectors: c.Selectors()}
	out.interceptors = append(append([]Interceptor(nil), c.interceptors...), extra...)
	return out
}

// Then wraps h so that the chain runs before it.
func (c *Chain) Then(h http.Handler) http.Handler {
	if c == nil {
		return h
	}
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		h = link(c.interceptors[i], h)
	}
	return h
}

// Middleware adapts the chain for chi's Use and With.
func (c *Chain) Middleware() func(http.Handler) http.Handler {
	return c.Then
}

func link(ic Interceptor, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ic.Intercept(w, r, next)
	})
}
