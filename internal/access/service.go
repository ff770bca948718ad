package access

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/frahmantamala/pentest-portal/internal"
	accessDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/access"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
)

type RepositoryAPI interface {
	GrantChecker
	Upsert(ctx context.Context, grant *accessDatamodel.Grant) (*accessDatamodel.Grant, error)
	GetByID(ctx context.Context, id int64) (*accessDatamodel.Grant, error)
	GetByUserAndReport(ctx context.Context, userID string, reportID int64) (*accessDatamodel.Grant, error)
	List(ctx context.Context, filter ListFilter) ([]*accessDatamodel.Grant, error)
	Delete(ctx context.Context, id int64) error

	UserExists(ctx context.Context, userID string) (bool, error)
	ClientExists(ctx context.Context, clientID int64) (bool, error)
	// ReportClientID returns the report's client and whether the report exists.
	ReportClientID(ctx context.Context, reportID int64) (*int64, bool, error)
}

type Service struct {
	repo      RepositoryAPI
	gate      *Gate
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, gate *Gate, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		gate:      gate,
		publisher: publisher,
		logger:    logger,
	}
}

// Upsert creates the grant for (userId, reportId) or overwrites its flags.
func (s *Service) Upsert(ctx context.Context, p *internal.Principal, req GrantRequest) (*Grant, error) {
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.repo.UserExists(ctx, req.UserID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to look up grant user", "error", err, "user_id", req.UserID)
		return nil, internal.NewInternalError("failed to look up user", err)
	}
	if !exists {
		return nil, internal.ErrUserNotFound
	}

	reportClientID, found, err := s.repo.ReportClientID(ctx, req.ReportID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to look up grant report", "error", err, "report_id", req.ReportID)
		return nil, internal.NewInternalError("failed to look up report", err)
	}
	if !found {
		return nil, internal.ErrReportNotFound
	}

	if err := s.checkClient(ctx, req.ClientID, reportClientID); err != nil {
		return nil, err
	}
	canView, canDownload := req.flags()

	stored, err := s.repo.Upsert(ctx, &accessDatamodel.Grant{
		ClientID:    reportClientID,
		UserID:      req.UserID,
		ReportID:    req.ReportID,
		CanView:     canView,
		CanDownload: canDownload,
		GrantedBy:   p.UserID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to upsert access grant", "error", err,
			"user_id", req.UserID, "report_id", req.ReportID)
		return nil, internal.NewInternalError("failed to store access grant", err)
	}

	grant := FromDataModel(stored)
	s.logger.InfoContext(ctx, "access grant stored",
		"grant_id", grant.ID,
		"user_id", grant.UserID,
		"report_id", grant.ReportID,
		"can_view", grant.CanView,
		"can_download", grant.CanDownload)

	s.publish(ctx, events.EventTypeGrantUpserted, p.UserID, grant)
	return grant, nil
}

// checkClient accepts a supplied clientId only when it names the report's
// own client. The stored grant always carries the report's client.
func (s *Service) checkClient(ctx context.Context, supplied, reportClientID *int64) error {
	if supplied == nil {
		return nil
	}
	exists, err := s.repo.ClientExists(ctx, *supplied)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to look up grant client", "error", err, "client_id", *supplied)
		return internal.NewInternalError("failed to look up client", err)
	}
	if !exists {
		return internal.ErrClientNotFound
	}
	if reportClientID == nil || *reportClientID != *supplied {
		return internal.NewValidationFieldError("clientId", "clientId does not match the report's client", internal.ErrCodeValidationFailed)
	}
	return nil
}

func (s *Service) Revoke(ctx context.Context, p *internal.Principal, id int64) error {
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return err
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return internal.NewInternalError("failed to load access grant", err)
	}
	if existing == nil {
		return internal.ErrGrantNotFound
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke access grant", "error", err, "grant_id", id)
		return internal.NewInternalError("failed to revoke access grant", err)
	}

	s.logger.InfoContext(ctx, "access grant revoked", "grant_id", id,
		"user_id", existing.UserID, "report_id", existing.ReportID)
	s.publish(ctx, events.EventTypeGrantRevoked, p.UserID, FromDataModel(existing))
	return nil
}

func (s *Service) List(ctx context.Context, p *internal.Principal, filter ListFilter) ([]*Grant, error) {
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list access grants", "error", err)
		return nil, internal.NewInternalError("failed to list access grants", err)
	}

	grants := make([]*Grant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, FromDataModel(row))
	}
	return grants, nil
}

// GetGrant returns the grant for (userID, reportID), or nil when none exists.
func (s *Service) GetGrant(ctx context.Context, userID string, reportID int64) (*Grant, error) {
	row, err := s.repo.GetByUserAndReport(ctx, userID, reportID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load access grant", err)
	}
	if row == nil {
		return nil, nil
	}
	return FromDataModel(row), nil
}

func (s *Service) publish(ctx context.Context, eventType, actorID string, g *Grant) {
	if s.publisher == nil {
		return
	}
	event := events.NewDomainEvent(eventType, actorID, "access_grant", strconv.FormatInt(g.ID, 10), map[string]interface{}{
		"user_id":      g.UserID,
		"report_id":    g.ReportID,
		"can_view":     g.CanView,
		"can_download": g.CanDownload,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish grant event", "error", err, "event_type", eventType)
	}
}
