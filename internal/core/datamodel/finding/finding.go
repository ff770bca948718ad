package finding

import "time"

type Finding struct {
	ID             int64     `gorm:"primaryKey;column:id"`
	ReportID       int64     `gorm:"column:report_id;not null;index"`
	Title          string    `gorm:"column:title;not null"`
	Description    string    `gorm:"column:description"`
	Severity       string    `gorm:"column:severity;not null"`
	CVSSScore      *float64  `gorm:"column:cvss_score"`
	Impact         string    `gorm:"column:impact"`
	Recommendation string    `gorm:"column:recommendation"`
	Status         string    `gorm:"column:status;not null;default:open"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Finding) TableName() string {
	return "findings"
}
