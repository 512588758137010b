package domain

import "strings"

const (
	RoleAdmin    = "admin"
	RoleInvestor = "investor"
	RoleFounder  = "founder"
)

// TwoFactorPolicy lists the roles that must pass the email code step.
// The wildcard "*" covers every role.
type TwoFactorPolicy struct {
	roles map[string]struct{}
	all   bool
}

func NewTwoFactorPolicy(roles []string) TwoFactorPolicy {
	p := TwoFactorPolicy{roles: make(map[string]struct{}, len(roles))}
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if r == "*" {
			p.all = true
		}
		p.roles[r] = struct{}{}
	}
	return p
}

// Requires reports whether role must complete two-factor verification.
func (p TwoFactorPolicy) Requires(role string) bool {
	if p.all {
		return true
	}
	_, ok := p.roles[strings.ToLower(role)]
	return ok
}
