package user

import (
	"time"

	"github.com/frahmantamala/pentest-portal/internal"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
)

type User struct {
	ID              string        `json:"id"`
	Email           string        `json:"email"`
	FirstName       string        `json:"firstName"`
	LastName        string        `json:"lastName"`
	ProfileImageURL string        `json:"profileImageUrl"`
	Role            internal.Role `json:"role"`
	PasswordHash    string        `json:"-"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == internal.RoleAdmin
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Principal is the view of u the gate works with.
func (u *User) Principal(sessionID string) *internal.Principal {
	return &internal.Principal{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		SessionID: sessionID,
	}
}

func ToDataModel(u *User) *userDatamodel.User {
	var hash *string
	if u.PasswordHash != "" {
		h := u.PasswordHash
		hash = &h
	}
	return &userDatamodel.User{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ProfileImageURL: u.ProfileImageURL,
		Role:            string(u.Role),
		PasswordHash:    hash,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	out := &User{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		ProfileImageURL: u.ProfileImageURL,
		Role:            internal.Role(u.Role),
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
	if u.PasswordHash != nil {
		out.PasswordHash = *u.PasswordHash
	}
	return out
}
