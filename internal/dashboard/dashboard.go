package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	"github.com/frahmantamala/pentest-portal/internal/transport"
)

// Metrics are the four headline counters on the dashboard.
type Metrics struct {
	Critical   int64 `json:"critical" db:"critical"`
	High       int64 `json:"high" db:"high"`
	Reports    int64 `json:"reports" db:"reports"`
	Remediated int64 `json:"remediated" db:"remediated"`
}

type RepositoryAPI interface {
	Metrics(ctx context.Context, scope access.Scope) (*Metrics, error)
}

type Service struct {
	repo   RepositoryAPI
	gate   *access.Gate
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, gate *access.Gate, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, logger: logger}
}

// Metrics counts over every report for admins and over the caller's
// viewable reports for everyone else.
func (s *Service) Metrics(ctx context.Context, p *internal.Principal) (*Metrics, error) {
	scope := s.gate.ReportScope(p)
	m, err := s.repo.Metrics(ctx, scope)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to compute dashboard metrics", "error", err, "unrestricted", scope.Unrestricted)
		return nil, internal.NewInternalError("failed to compute dashboard metrics", err)
	}
	return m, nil
}

type ServiceAPI interface {
	Metrics(ctx context.Context, p *internal.Principal) (*Metrics, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Service: service}
}

func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Principal(w, r)
	if !ok {
		return
	}

	metrics, err := h.Service.Metrics(r.Context(), p)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, metrics)
}
