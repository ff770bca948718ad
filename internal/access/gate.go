package access

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/pentest-portal/internal"
)

// GrantChecker answers the existential grant question against the store.
type GrantChecker interface {
	HasGrant(ctx context.Context, userID string, reportID int64, capability Capability) (bool, error)
}

// Gate decides whether a principal may touch a report. Admins pass every
// check; partners and clients need a grant and can never write.
type Gate struct {
	grants GrantChecker
	logger *slog.Logger
}

func NewGate(grants GrantChecker, logger *slog.Logger) *Gate {
	return &Gate{grants: grants, logger: logger}
}

// HasGrant reports whether userID holds capability on reportID.
func (g *Gate) HasGrant(ctx context.Context, userID string, reportID int64, capability Capability) (bool, error) {
	ok, err := g.grants.HasGrant(ctx, userID, reportID, capability)
	if err != nil {
		return false, internal.NewInternalError("failed to check access grant", err)
	}
	return ok, nil
}

func (g *Gate) CanRead(ctx context.Context, p *internal.Principal, reportID int64) (bool, error) {
	return g.can(ctx, p, reportID, CapabilityView)
}

func (g *Gate) CanDownload(ctx context.Context, p *internal.Principal, reportID int64) (bool, error) {
	return g.can(ctx, p, reportID, CapabilityDownload)
}

func (g *Gate) CanWrite(p *internal.Principal) bool {
	return p.IsAdmin()
}

func (g *Gate) can(ctx context.Context, p *internal.Principal, reportID int64, c Capability) (bool, error) {
	if p == nil {
		return false, nil
	}
	if p.IsAdmin() {
		return true, nil
	}
	if p.Role != internal.RolePartner && p.Role != internal.RoleClient {
		return false, nil
	}
	return g.HasGrant(ctx, p.UserID, reportID, c)
}

// AuthorizeRead covers reading a report and anything hanging off it.
func (g *Gate) AuthorizeRead(ctx context.Context, p *internal.Principal, reportID int64) error {
	return g.authorize(ctx, p, reportID, CapabilityView)
}

func (g *Gate) AuthorizeDownload(ctx context.Context, p *internal.Principal, reportID int64) error {
	return g.authorize(ctx, p, reportID, CapabilityDownload)
}

func (g *Gate) authorize(ctx context.Context, p *internal.Principal, reportID int64, c Capability) error {
	ok, err := g.can(ctx, p, reportID, c)
	if err != nil {
		return err
	}
	if !ok {
		g.deny(ctx, p, "report", reportID, string(c))
		return internal.ErrAccessDenied
	}
	return nil
}

// AuthorizeWrite is the admin-only rule for every mutation.
func (g *Gate) AuthorizeWrite(ctx context.Context, p *internal.Principal) error {
	if !g.CanWrite(p) {
		g.deny(ctx, p, "write", 0, "write")
		return internal.ErrAccessDenied
	}
	return nil
}

// Scope describes which reports a listing may return. Unrestricted is only
// set for admins; everyone else is limited to reports granted to UserID.
type Scope struct {
	Unrestricted bool
	UserID       string
}

func (g *Gate) ReportScope(p *internal.Principal) Scope {
	if p.IsAdmin() {
		return Scope{Unrestricted: true}
	}
	if p == nil {
		return Scope{}
	}
	return Scope{UserID: p.UserID}
}

func (g *Gate) deny(ctx context.Context, p *internal.Principal, target string, id int64, capability string) {
	if g.logger == nil {
		return
	}
	userID, role := "", ""
	if p != nil {
		userID, role = p.UserID, string(p.Role)
	}
	g.logger.WarnContext(ctx, "authorization denied",
		"user_id", userID,
		"role", role,
		"target", target,
		"report_id", id,
		"capability", capability)
}
