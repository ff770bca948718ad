package access

import (
	"context"
	"net/http"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/transport"
)

type ServiceAPI interface {
	Upsert(ctx context.Context, p *internal.Principal, req GrantRequest) (*Grant, error)
	Revoke(ctx context.Context, p *internal.Principal, id int64) error
	List(ctx context.Context, p *internal.Principal, filter ListFilter) ([]*Grant, error)
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

// CreateGrant handles POST /api/client-access.
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	var req GrantRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	grant, err := h.Service.Upsert(r.Context(), p, req)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, grant)
}

func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	reportID, err := h.OptionalInt64Query(r, "reportId")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	grants, err := h.Service.List(r.Context(), p, ListFilter{
		UserID:   r.URL.Query().Get("userId"),
		ReportID: reportID,
	})
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, grants)
}

func (h *Handler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	id, err := h.IDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if err := h.Service.Revoke(r.Context(), p, id); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
