package auth

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var casbinModelContent string

// Objects and actions checked by RequirePermission.
const (
	ObjectRoles      = "roles"
	ObjectPrincipals = "principals"

	ActionRead  = "read"
	ActionWrite = "write"
)

// DefaultPolicies grants the seeded admin role every action on roles and principals.
var DefaultPolicies = [][]string{
	{"admin", ObjectRoles, "*"},
	{"admin", ObjectPrincipals, "*"},
}

// InitEnforcer creates an in-memory Casbin enforcer from the embedded model
// and loads policies. Subjects are role names.
func InitEnforcer(policies [][]string) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	for _, p := range policies {
		if len(p) != 3 {
			return nil, fmt.Errorf("casbin policy %v: want sub, obj, act", p)
		}
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add casbin policy %v: %w", p, err)
		}
	}

	return enforcer, nil
}

// AnyRoleAllowed reports whether at least one of roles may perform act on obj.
func AnyRoleAllowed(enforcer casbin.IEnforcer, roles []string, obj, act string) (bool, error) {
	for _, role := range roles {
		ok, err := enforcer.Enforce(role, obj, act)
		if err != nil {
			return false, fmt.Errorf("enforce %s %s %s: %w", role, obj, act, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
