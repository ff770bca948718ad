package client

import (
	"strings"

	errors "github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/core/common/validation"
)

// ClientRequest creates a client.
type ClientRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contactEmail"`
	ContactPhone string `json:"contactPhone"`
	Address      string `json:"address"`
}

func (r *ClientRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.ContactEmail = strings.TrimSpace(r.ContactEmail)
	r.ContactPhone = strings.TrimSpace(r.ContactPhone)
}

func (r ClientRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("name", r.Name).Required().MaxLength(255)
	v.Field("contactEmail", r.ContactEmail).Email().MaxLength(255)
	v.Field("contactPhone", r.ContactPhone).MaxLength(50)
	return v.Validate()
}

// UpdateClientRequest is a partial update; nil fields are left alone.
type UpdateClientRequest struct {
	Name         *string `json:"name"`
	ContactEmail *string `json:"contactEmail"`
	ContactPhone *string `json:"contactPhone"`
	Address      *string `json:"address"`
}

func (r *UpdateClientRequest) Normalize() {
	for _, f := range []*string{r.Name, r.ContactEmail, r.ContactPhone} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

func (r UpdateClientRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	if r.Name != nil {
		v.Field("name", *r.Name).Required().MaxLength(255)
	}
	if r.ContactEmail != nil {
		v.Field("contactEmail", *r.ContactEmail).Email().MaxLength(255)
	}
	if r.ContactPhone != nil {
		v.Field("contactPhone", *r.ContactPhone).MaxLength(50)
	}
	return v.Validate()
}
