package upload

import (
	"time"

	uploadDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/upload"
)

type Upload struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	Path         string    `json:"path"`
	ReportID     *int64    `json:"reportId"`
	FindingID    *int64    `json:"findingId"`
	UploadedBy   string    `json:"uploadedBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

func FromDataModel(u *uploadDatamodel.Upload) *Upload {
	return &Upload{
		ID:           u.ID,
		Filename:     u.Filename,
		OriginalName: u.OriginalName,
		MimeType:     u.MimeType,
		Size:         u.Size,
		Path:         u.Path,
		ReportID:     u.ReportID,
		FindingID:    u.FindingID,
		UploadedBy:   u.UploadedBy,
		CreatedAt:    u.CreatedAt,
	}
}
