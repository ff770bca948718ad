package access

import "time"

// Grant is unique per (user_id, report_id); writes go through an upsert.
type Grant struct {
	ID          int64     `gorm:"primaryKey;column:id"`
	ClientID    *int64    `gorm:"column:client_id;index"`
	UserID      string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:ux_access_grants_user_report"`
	ReportID    int64     `gorm:"column:report_id;not null;uniqueIndex:ux_access_grants_user_report"`
	CanView     bool      `gorm:"column:can_view;not null"`
	CanDownload bool      `gorm:"column:can_download;not null"`
	GrantedBy   string    `gorm:"column:granted_by;type:varchar(64)"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Grant) TableName() string {
	return "access_grants"
}
