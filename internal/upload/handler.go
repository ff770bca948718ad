package upload

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/transport"
)

type ServiceAPI interface {
	Create(ctx context.Context, p *internal.Principal, req CreateUploadRequest) (*Upload, error)
	ListByReport(ctx context.Context, p *internal.Principal, reportID int64) ([]*Upload, error)
	ListByFinding(ctx context.Context, p *internal.Principal, findingID int64) ([]*Upload, error)
	Open(ctx context.Context, p *internal.Principal, id int64) (*Upload, io.ReadCloser, error)
	Delete(ctx context.Context, p *internal.Principal, id int64) error
	MaxSizeBytes() int64
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// multipartOverhead leaves room for form fields and part headers.
const multipartOverhead = 1 << 20

// CreateUpload handles POST /api/uploads as multipart/form-data with a
// "file" part and one of "reportId" or "findingId".
func (h *Handler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	if limit := h.Service.MaxSizeBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.HandleServiceError(w, r, internal.NewValidationFieldError("file", "file is too large", internal.ErrCodeFileTooLarge))
			return
		}
		h.HandleServiceError(w, r, internal.NewValidationError("invalid multipart body", internal.ErrCodeValidationFailed).WithCause(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	reportID, err := formID(r, "reportId")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	findingID, err := formID(r, "findingId")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("file", "file is required", internal.ErrCodeValidationFailed))
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := io.ReadFull(file, sniff)
		mimeType = http.DetectContentType(sniff[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			h.HandleServiceError(w, r, internal.NewInternalError("failed to read upload", err))
			return
		}
	}

	upload, err := h.Service.Create(r.Context(), p, CreateUploadRequest{
		ReportID:     reportID,
		FindingID:    findingID,
		OriginalName: header.Filename,
		MimeType:     mimeType,
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, upload)
}

func formID(r *http.Request, name string) (*int64, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, internal.NewValidationFieldError(name, name+" must be a positive integer", internal.ErrCodeInvalidID)
	}
	return &v, nil
}

// ListReportUploads handles GET /api/reports/{id}/uploads.
func (h *Handler) ListReportUploads(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}
	reportID, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	uploads, err := h.Service.ListByReport(r.Context(), p, reportID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, uploads)
}

// ListFindingUploads handles GET /api/findings/{id}/uploads.
func (h *Handler) ListFindingUploads(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}
	findingID, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	uploads, err := h.Service.ListByFinding(r.Context(), p, findingID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, uploads)
}

func (h *Handler) DownloadUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	upload, body, err := h.Service.Open(r.Context(), p, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", upload.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": upload.OriginalName}))
	if upload.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(upload.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.Logger.WarnContext(r.Context(), "upload download interrupted", "error", err, "upload_id", id)
	}
}

func (h *Handler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}
	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if err := h.Service.Delete(r.Context(), p, id); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
