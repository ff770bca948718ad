package upload

import (
	"fmt"
	"io"

	errors "github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/core/common/validation"
)

// CreateUploadRequest attaches one file to either a report or a finding.
type CreateUploadRequest struct {
	ReportID     *int64
	FindingID    *int64
	OriginalName string
	MimeType     string
	Size         int64
	Body         io.Reader
}

func (r CreateUploadRequest) Validate(maxSize int64) *errors.AppError {
	v := validation.NewValidator()
	v.Field("reportId", r.ReportID).PositiveID()
	v.Field("findingId", r.FindingID).PositiveID()
	v.Field("file", r.OriginalName).Required().MaxLength(255)
	v.Field("parent", nil).Custom(func(interface{}) *errors.AppError {
		if (r.ReportID == nil) == (r.FindingID == nil) {
			return errors.NewValidationFieldError("parent", "exactly one of reportId or findingId is required", errors.ErrCodeValidationFailed)
		}
		return nil
	})
	if maxSize > 0 {
		v.Field("file", r.Size).Custom(func(interface{}) *errors.AppError {
			if r.Size > maxSize {
				return errors.NewValidationFieldError("file", fmt.Sprintf("file exceeds the %d byte limit", maxSize), errors.ErrCodeFileTooLarge)
			}
			return nil
		})
	}
	return v.Validate()
}
