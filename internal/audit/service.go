package audit

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	auditDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/audit"
)

type RepositoryAPI interface {
	Writer
	Recent(ctx context.Context, limit int) ([]*auditDatamodel.Entry, error)
}

type Service struct {
	repo   RepositoryAPI
	gate   *access.Gate
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, gate *access.Gate, logger *slog.Logger) *Service {
	return &Service{repo: repo, gate: gate, logger: logger}
}

// Recent returns the newest entries first. The trail is admin-only.
func (s *Service) Recent(ctx context.Context, p *internal.Principal, limit int) ([]*Entry, error) {
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := s.repo.Recent(ctx, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list audit entries", "error", err)
		return nil, internal.NewInternalError("failed to list audit entries", err)
	}

	entries := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, FromDataModel(row))
	}
	return entries, nil
}
