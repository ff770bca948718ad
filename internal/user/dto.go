package user

import (
	errors "github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/core/common/validation"
)

type RoleRequest struct {
	Role string `json:"role"`
}

func (r RoleRequest) Validate() *errors.AppError {
	return validation.ValidateRole(r.Role)
}

// Profile is what an identity provider tells us about a user at login.
type Profile struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	ProfileImageURL string
}

func (p Profile) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("id", p.ID).Required().MaxLength(64)
	v.Field("email", p.Email).Required().Email()
	return v.Validate()
}
