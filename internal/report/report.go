package report

import (
	"time"

	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
)

const (
	StatusDraft      = "draft"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusDelivered  = "delivered"
)

var Statuses = []string{StatusDraft, StatusInProgress, StatusCompleted, StatusDelivered}

var Severities = []string{"critical", "high", "medium", "low"}

type Report struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title"`
	ClientID         *int64         `json:"clientId"`
	Client           *ClientSummary `json:"client,omitempty"`
	AssessmentType   string         `json:"assessmentType"`
	Status           string         `json:"status"`
	Severity         string         `json:"severity"`
	ExecutiveSummary string         `json:"executiveSummary"`
	DueDate          *time.Time     `json:"dueDate"`
	CreatedBy        string         `json:"createdBy"`
	Creator          *UserSummary   `json:"creator,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

type ClientSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type UserSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func FromDataModel(r *reportDatamodel.Report) *Report {
	out := &Report{
		ID:               r.ID,
		Title:            r.Title,
		ClientID:         r.ClientID,
		AssessmentType:   r.AssessmentType,
		Status:           r.Status,
		Severity:         r.Severity,
		ExecutiveSummary: r.ExecutiveSummary,
		DueDate:          r.DueDate,
		CreatedBy:        r.CreatedBy,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.Client != nil {
		out.Client = &ClientSummary{ID: r.Client.ID, Name: r.Client.Name}
	}
	if r.Creator != nil {
		out.Creator = &UserSummary{
			ID:        r.Creator.ID,
			Email:     r.Creator.Email,
			FirstName: r.Creator.FirstName,
			LastName:  r.Creator.LastName,
		}
	}
	return out
}
