package internal

import "context"

type Role string

const (
	RoleAdmin   Role = "admin"
	RolePartner Role = "partner"
	RoleClient  Role = "client"
)

var Roles = []Role{RoleAdmin, RolePartner, RoleClient}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePartner, RoleClient:
		return true
	}
	return false
}

// Principal is the authenticated caller as seen by services and the gate.
type Principal struct {
	UserID    string
	Email     string
	Role      Role
	SessionID string
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

type ctxKey string

const ContextPrincipalKey ctxKey = "principal"

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(ContextPrincipalKey).(*Principal)
	return p, ok && p != nil
}

func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ContextPrincipalKey, p)
}
