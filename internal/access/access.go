package access

import (
	"time"

	accessDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/access"
)

// Capability is what a grant allows on a report.
type Capability string

const (
	CapabilityView     Capability = "view"
	CapabilityDownload Capability = "download"
)

type Grant struct {
	ID          int64     `json:"id"`
	ClientID    *int64    `json:"clientId"`
	UserID      string    `json:"userId"`
	ReportID    int64     `json:"reportId"`
	CanView     bool      `json:"canView"`
	CanDownload bool      `json:"canDownload"`
	GrantedBy   string    `json:"grantedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (g *Grant) Allows(c Capability) bool {
	switch c {
	case CapabilityView:
		return g.CanView
	case CapabilityDownload:
		return g.CanDownload
	}
	return false
}

func ToDataModel(g *Grant) *accessDatamodel.Grant {
	return &accessDatamodel.Grant{
		ID:          g.ID,
		ClientID:    g.ClientID,
		UserID:      g.UserID,
		ReportID:    g.ReportID,
		CanView:     g.CanView,
		CanDownload: g.CanDownload,
		GrantedBy:   g.GrantedBy,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func FromDataModel(g *accessDatamodel.Grant) *Grant {
	return &Grant{
		ID:          g.ID,
		ClientID:    g.ClientID,
		UserID:      g.UserID,
		ReportID:    g.ReportID,
		CanView:     g.CanView,
		CanDownload: g.CanDownload,
		GrantedBy:   g.GrantedBy,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}
