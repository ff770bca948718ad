package user

import "time"

type User struct {
	ID              string    `gorm:"primaryKey;column:id;type:varchar(64)"`
	Email           string    `gorm:"column:email;uniqueIndex;not null"`
	FirstName       string    `gorm:"column:first_name"`
	LastName        string    `gorm:"column:last_name"`
	ProfileImageURL string    `gorm:"column:profile_image_url"`
	Role            string    `gorm:"column:role;not null;default:client"`
	PasswordHash    *string   `gorm:"column:password_hash"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
