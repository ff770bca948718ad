package client

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	clientDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/client"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
)

type RepositoryAPI interface {
	List(ctx context.Context, scope access.Scope) ([]*clientDatamodel.Client, error)
	GetByID(ctx context.Context, id int64) (*clientDatamodel.Client, error)
	Create(ctx context.Context, c *clientDatamodel.Client) error
	Update(ctx context.Context, c *clientDatamodel.Client) error
	Delete(ctx context.Context, id int64) error
	// Visible reports whether scope reaches the client through a granted report.
	Visible(ctx context.Context, scope access.Scope, id int64) (bool, error)
	DetachReports(ctx context.Context, id int64) (int64, error)
	DeleteGrants(ctx context.Context, id int64) (int64, error)
}

type Service struct {
	repo      RepositoryAPI
	gate      *access.Gate
	tx        datastore.Transactor
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, gate *access.Gate, tx datastore.Transactor, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		gate:      gate,
		tx:        tx,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *Service) List(ctx context.Context, p *internal.Principal) ([]*Client, error) {
	rows, err := s.repo.List(ctx, s.gate.ReportScope(p))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list clients", "error", err)
		return nil, internal.NewInternalError("failed to list clients", err)
	}

	clients := make([]*Client, 0, len(rows))
	for _, row := range rows {
		clients = append(clients, FromDataModel(row))
	}
	return clients, nil
}

func (s *Service) Get(ctx context.Context, p *internal.Principal, id int64) (*Client, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	scope := s.gate.ReportScope(p)
	if !scope.Unrestricted {
		ok, err := s.repo.Visible(ctx, scope, id)
		if err != nil {
			return nil, internal.NewInternalError("failed to check client visibility", err)
		}
		if !ok {
			return nil, internal.ErrAccessDenied
		}
	}

	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, p *internal.Principal, req ClientRequest) (*Client, error) {
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	row := &clientDatamodel.Client{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Address:      req.Address,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to create client", "error", err)
		return nil, internal.NewInternalError("failed to create client", err)
	}

	s.logger.InfoContext(ctx, "client created", "client_id", row.ID, "name", row.Name)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, p *internal.Principal, id int64, req UpdateClientRequest) (*Client, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Name != nil {
		row.Name = *req.Name
	}
	if req.ContactEmail != nil {
		row.ContactEmail = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		row.ContactPhone = *req.ContactPhone
	}
	if req.Address != nil {
		row.Address = *req.Address
	}
	if err := s.repo.Update(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to update client", "error", err, "client_id", id)
		return nil, internal.NewInternalError("failed to update client", err)
	}

	return FromDataModel(row), nil
}

// Delete removes the client. Its reports survive without a client and every
// grant issued under it is revoked, all in one transaction.
func (s *Service) Delete(ctx context.Context, p *internal.Principal, id int64) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return err
	}

	var detached, revoked int64
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if revoked, err = s.repo.DeleteGrants(ctx, id); err != nil {
			return err
		}
		if detached, err = s.repo.DetachReports(ctx, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete client", "error", err, "client_id", id)
		return internal.NewInternalError("failed to delete client", err)
	}

	s.logger.InfoContext(ctx, "client deleted", "client_id", id, "reports_detached", detached, "grants_revoked", revoked)
	if s.publisher != nil {
		event := events.NewDomainEvent(events.EventTypeClientDeleted, p.UserID, "client", strconv.FormatInt(id, 10), map[string]interface{}{
			"reports_detached": detached,
			"grants_revoked":   revoked,
		})
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish client deletion", "error", err)
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, id int64) (*clientDatamodel.Client, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load client", "error", err, "client_id", id)
		return nil, internal.NewInternalError("failed to load client", err)
	}
	if row == nil {
		return nil, internal.ErrClientNotFound
	}
	return row, nil
}
