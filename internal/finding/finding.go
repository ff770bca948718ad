package finding

import (
	"time"

	findingDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/finding"
)

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusFixed      = "fixed"
	StatusAccepted   = "accepted"
)

var (
	Statuses   = []string{StatusOpen, StatusInProgress, StatusFixed, StatusAccepted}
	Severities = []string{"critical", "high", "medium", "low", "info"}
)

// severityRank orders findings most severe first.
var severityRank = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3, "info": 4}

// SeverityRank returns the sort position of a severity; unknown values sort last.
func SeverityRank(severity string) int {
	if r, ok := severityRank[severity]; ok {
		return r
	}
	return len(severityRank)
}

type Finding struct {
	ID             int64     `json:"id"`
	ReportID       int64     `json:"reportId"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Severity       string    `json:"severity"`
	CVSSScore      *float64  `json:"cvssScore"`
	Impact         string    `json:"impact"`
	Recommendation string    `json:"recommendation"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func FromDataModel(f *findingDatamodel.Finding) *Finding {
	return &Finding{
		ID:             f.ID,
		ReportID:       f.ReportID,
		Title:          f.Title,
		Description:    f.Description,
		Severity:       f.Severity,
		CVSSScore:      f.CVSSScore,
		Impact:         f.Impact,
		Recommendation: f.Recommendation,
		Status:         f.Status,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}
