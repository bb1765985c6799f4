package auth

import "context"

// Method names the strategy that attached a principal to a request.
type Method string

const (
	MethodBasic   Method = "basic"
	MethodSession Method = "session"
	MethodToken   Method = "token"
)

// AuthenticatedPrincipal captures identity metadata propagated through the request context.
type AuthenticatedPrincipal struct {
	// ID references principals.id.
	ID string
	// Username is the principal's unique login name.
	Username string
	// Method records which strategy authenticated the request.
	Method Method
	// SessionToken is the raw cookie value when Method is MethodSession.
	SessionToken string
}

type principalContextKey struct{}

// SetUserContext stores the authenticated principal on the context for downstream consumers.
func SetUserContext(ctx context.Context, principal AuthenticatedPrincipal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// GetUserFromContext retrieves the authenticated principal from the context.
func GetUserFromContext(ctx context.Context) (AuthenticatedPrincipal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(AuthenticatedPrincipal)
	return principal, ok
}
