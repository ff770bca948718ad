package audit

import "time"

type Entry struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	ActorID    string    `gorm:"column:actor_id;type:varchar(64)"`
	Action     string    `gorm:"column:action;not null;index"`
	TargetType string    `gorm:"column:target_type;not null"`
	TargetID   string    `gorm:"column:target_id;not null"`
	Details    string    `gorm:"column:details"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Entry) TableName() string {
	return "audit_log"
}
