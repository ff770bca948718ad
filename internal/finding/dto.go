package finding

import (
	"strings"

	errors "github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/core/common/validation"
)

type CreateFindingRequest struct {
	ReportID       int64    `json:"reportId"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Severity       string   `json:"severity"`
	CVSSScore      *float64 `json:"cvssScore"`
	Impact         string   `json:"impact"`
	Recommendation string   `json:"recommendation"`
	Status         string   `json:"status"`
}

func (r *CreateFindingRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Severity = strings.ToLower(strings.TrimSpace(r.Severity))
	if r.Status == "" {
		r.Status = StatusOpen
	}
}

func (r CreateFindingRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("reportId", r.ReportID).Required().PositiveID()
	v.Field("title", r.Title).Required().MaxLength(255)
	v.Field("severity", r.Severity).Required().OneOf(Severities, errors.ErrCodeInvalidSeverity)
	v.Field("cvssScore", r.CVSSScore).FloatRange(0, 10, errors.ErrCodeInvalidScore)
	v.Field("status", r.Status).OneOf(Statuses, errors.ErrCodeInvalidStatus)
	return v.Validate()
}

// UpdateFindingRequest is a partial update. A finding never moves between
// reports.
type UpdateFindingRequest struct {
	Title          *string  `json:"title"`
	Description    *string  `json:"description"`
	Severity       *string  `json:"severity"`
	CVSSScore      *float64 `json:"cvssScore"`
	Impact         *string  `json:"impact"`
	Recommendation *string  `json:"recommendation"`
	Status         *string  `json:"status"`
}

func (r UpdateFindingRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	if r.Title != nil {
		v.Field("title", *r.Title).Required().MaxLength(255)
	}
	if r.Severity != nil {
		v.Field("severity", *r.Severity).Required().OneOf(Severities, errors.ErrCodeInvalidSeverity)
	}
	v.Field("cvssScore", r.CVSSScore).FloatRange(0, 10, errors.ErrCodeInvalidScore)
	if r.Status != nil {
		v.Field("status", *r.Status).Required().OneOf(Statuses, errors.ErrCodeInvalidStatus)
	}
	return v.Validate()
}
