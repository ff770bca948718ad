package report

import (
	"time"

	clientDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/client"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
)

type Report struct {
	ID               int64      `gorm:"primaryKey;column:id"`
	Title            string     `gorm:"column:title;not null"`
	ClientID         *int64     `gorm:"column:client_id;index"`
	AssessmentType   string     `gorm:"column:assessment_type;not null"`
	Status           string     `gorm:"column:status;not null;default:draft"`
	Severity         string     `gorm:"column:severity;not null;default:medium"`
	ExecutiveSummary string     `gorm:"column:executive_summary"`
	DueDate          *time.Time `gorm:"column:due_date"`
	CreatedBy        string     `gorm:"column:created_by;type:varchar(64);not null"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Client  *clientDatamodel.Client `gorm:"foreignKey:ClientID"`
	Creator *userDatamodel.User     `gorm:"foreignKey:CreatedBy"`
}

func (Report) TableName() string {
	return "reports"
}
