package upload

import "time"

type Upload struct {
	ID           int64     `gorm:"primaryKey;column:id"`
	Filename     string    `gorm:"column:filename;not null"`
	OriginalName string    `gorm:"column:original_name;not null"`
	MimeType     string    `gorm:"column:mime_type;not null"`
	Size         int64     `gorm:"column:size;not null"`
	Path         string    `gorm:"column:path;not null"`
	ReportID     *int64    `gorm:"column:report_id;index"`
	FindingID    *int64    `gorm:"column:finding_id;index"`
	UploadedBy   string    `gorm:"column:uploaded_by;type:varchar(64);not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Upload) TableName() string {
	return "uploads"
}
