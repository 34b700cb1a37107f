// Package authz decides which back-office role may call which admin route.
package authz

import (
	"fmt"
	"strings"

	"payment-ledger/internal/core/domain"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
)

const adminPrefix = "/api/v1/admin"

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// Policy grants Subject the Action (HTTP method or "*") on Object (a keyMatch2 path).
type Policy struct {
	Subject string
	Object  string
	Action  string
}

// DefaultPolicies is the built-in role table.
var DefaultPolicies = []Policy{
	{string(domain.RoleAdmin), adminPrefix + "/*", "*"},

	{string(domain.RoleFinance), adminPrefix + "/payments", "*"},
	{string(domain.RoleFinance), adminPrefix + "/payments/*", "*"},
	{string(domain.RoleFinance), adminPrefix + "/refunds/*", "*"},

	{string(domain.RoleSupport), adminPrefix + "/payments", "GET"},
	{string(domain.RoleSupport), adminPrefix + "/payments/*", "GET"},
	{string(domain.RoleSupport), adminPrefix + "/payments/:id/receipt", "POST"},
}

// Enforcer wraps a casbin enforcer loaded with the role table.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads DefaultPolicies plus extra, each "role,object,action".
func NewEnforcer(extra []string) (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)

	policies := append([]Policy{}, DefaultPolicies...)
	for _, raw := range extra {
		p, err := ParsePolicy(raw)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p.Subject, p.Object, p.Action); err != nil {
			return nil, fmt.Errorf("add policy %s %s %s: %w", p.Subject, p.Object, p.Action, err)
		}
	}

	return &Enforcer{enforcer: enforcer}, nil
}

// Allow reports whether role may call method on path.
func (e *Enforcer) Allow(role domain.Role, path, method string) (bool, error) {
	if !role.Valid() {
		return false, nil
	}
	return e.enforcer.Enforce(string(role), normalizePath(path), strings.ToUpper(method))
}

// ParsePolicy parses "role,object,action".
func ParsePolicy(raw string) (Policy, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return Policy{}, fmt.Errorf("invalid policy %q: want role,object,action", raw)
	}
	p := Policy{
		Subject: strings.TrimSpace(parts[0]),
		Object:  normalizePath(parts[1]),
		Action:  strings.ToUpper(strings.TrimSpace(parts[2])),
	}
	if p.Subject == "" || p.Object == "" || p.Action == "" {
		return Policy{}, fmt.Errorf("invalid policy %q: empty field", raw)
	}
	return p, nil
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
