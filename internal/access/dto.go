package access

import (
	errors "github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/core/common/validation"
)

// GrantRequest is the upsert body. Omitted flags fall back to view-only.
type GrantRequest struct {
	ClientID    *int64 `json:"clientId"`
	UserID      string `json:"userId"`
	ReportID    int64  `json:"reportId"`
	CanView     *bool  `json:"canView"`
	CanDownload *bool  `json:"canDownload"`
}

func (r GrantRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("userId", r.UserID).Required().MaxLength(64)
	v.Field("reportId", r.ReportID).Required().PositiveID()
	v.Field("clientId", r.ClientID).PositiveID()
	return v.Validate()
}

func (r GrantRequest) flags() (canView, canDownload bool) {
	canView = true
	if r.CanView != nil {
		canView = *r.CanView
	}
	if r.CanDownload != nil {
		canDownload = *r.CanDownload
	}
	return canView, canDownload
}

// ListFilter narrows GET /api/client-access.
type ListFilter struct {
	UserID   string
	ReportID *int64
}
