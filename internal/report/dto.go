package report

import (
	"encoding/json"
	"strings"
	"time"

	errors "github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/core/common/validation"
)

// InitialGrant is an access grant created together with the report.
type InitialGrant struct {
	UserID      string `json:"userId"`
	CanView     *bool  `json:"canView"`
	CanDownload *bool  `json:"canDownload"`
}

type CreateReportRequest struct {
	Title            string         `json:"title"`
	ClientID         *int64         `json:"clientId"`
	AssessmentType   string         `json:"assessmentType"`
	Status           string         `json:"status"`
	Severity         string         `json:"severity"`
	ExecutiveSummary string         `json:"executiveSummary"`
	DueDate          *time.Time     `json:"dueDate"`
	Grants           []InitialGrant `json:"grants"`
}

func (r *CreateReportRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.AssessmentType = strings.TrimSpace(r.AssessmentType)
	if r.Status == "" {
		r.Status = StatusDraft
	}
	if r.Severity == "" {
		r.Severity = "medium"
	}
}

func (r CreateReportRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("title", r.Title).Required().MaxLength(255)
	v.Field("assessmentType", r.AssessmentType).Required().MaxLength(100)
	v.Field("clientId", r.ClientID).PositiveID()
	v.Field("status", r.Status).OneOf(Statuses, errors.ErrCodeInvalidStatus)
	v.Field("severity", r.Severity).OneOf(Severities, errors.ErrCodeInvalidSeverity)
	for _, g := range r.Grants {
		v.Field("grants.userId", g.UserID).Required().MaxLength(64)
	}
	return v.Validate()
}

// UpdateReportRequest is a partial update; nil fields are left alone.
// ClientIDSet marks a clientId key in the body, so an explicit null
// detaches the report from its client.
type UpdateReportRequest struct {
	Title            *string    `json:"title"`
	ClientID         *int64     `json:"clientId"`
	ClientIDSet      bool       `json:"-"`
	AssessmentType   *string    `json:"assessmentType"`
	Status           *string    `json:"status"`
	Severity         *string    `json:"severity"`
	ExecutiveSummary *string    `json:"executiveSummary"`
	DueDate          *time.Time `json:"dueDate"`
}

func (r *UpdateReportRequest) UnmarshalJSON(data []byte) error {
	type plain UpdateReportRequest
	var body plain
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	_, body.ClientIDSet = keys["clientId"]
	*r = UpdateReportRequest(body)
	return nil
}

// clientChanged reports whether the update touches the report's client.
func (r UpdateReportRequest) clientChanged() bool {
	return r.ClientIDSet || r.ClientID != nil
}

func (r UpdateReportRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	if r.Title != nil {
		v.Field("title", *r.Title).Required().MaxLength(255)
	}
	if r.AssessmentType != nil {
		v.Field("assessmentType", *r.AssessmentType).Required().MaxLength(100)
	}
	v.Field("clientId", r.ClientID).PositiveID()
	if r.Status != nil {
		v.Field("status", *r.Status).Required().OneOf(Statuses, errors.ErrCodeInvalidStatus)
	}
	if r.Severity != nil {
		v.Field("severity", *r.Severity).Required().OneOf(Severities, errors.ErrCodeInvalidSeverity)
	}
	return v.Validate()
}
