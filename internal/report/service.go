package report

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	accessDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/access"
	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
)

type RepositoryAPI interface {
	List(ctx context.Context, scope access.Scope, clientID *int64) ([]*reportDatamodel.Report, error)
	GetByID(ctx context.Context, id int64) (*reportDatamodel.Report, error)
	Create(ctx context.Context, r *reportDatamodel.Report) error
	Update(ctx context.Context, r *reportDatamodel.Report) error
	ClientExists(ctx context.Context, clientID int64) (bool, error)

	// Cascade pieces, always called inside one transaction.
	UploadKeys(ctx context.Context, reportID int64) ([]string, error)
	DeleteUploads(ctx context.Context, reportID int64) (int64, error)
	DeleteFindings(ctx context.Context, reportID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// GrantStore is the slice of the grant repository reports need.
type GrantStore interface {
	Upsert(ctx context.Context, grant *accessDatamodel.Grant) (*accessDatamodel.Grant, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	DeleteByReport(ctx context.Context, reportID int64) error
	SyncReportClient(ctx context.Context, reportID int64, clientID *int64) error
}

type Service struct {
	repo      RepositoryAPI
	grants    GrantStore
	gate      *access.Gate
	tx        datastore.Transactor
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, grants GrantStore, gate *access.Gate, tx datastore.Transactor, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		grants:    grants,
		gate:      gate,
		tx:        tx,
		publisher: publisher,
		logger:    logger,
	}
}

// List returns every report for admins and exactly the granted set for
// everyone else, newest first.
func (s *Service) List(ctx context.Context, p *internal.Principal, clientID *int64) ([]*Report, error) {
	rows, err := s.repo.List(ctx, s.gate.ReportScope(p), clientID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list reports", "error", err)
		return nil, internal.NewInternalError("failed to list reports", err)
	}

	reports := make([]*Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, FromDataModel(row))
	}
	return reports, nil
}

func (s *Service) Get(ctx context.Context, p *internal.Principal, id int64) (*Report, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeRead(ctx, p, id); err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

// Exists reports whether the report is there without any access check.
func (s *Service) Exists(ctx context.Context, id int64) error {
	_, err := s.load(ctx, id)
	return err
}

func (s *Service) Create(ctx context.Context, p *internal.Principal, req CreateReportRequest) (*Report, error) {
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkClient(ctx, req.ClientID); err != nil {
		return nil, err
	}

	row := &reportDatamodel.Report{
		Title:            req.Title,
		ClientID:         req.ClientID,
		AssessmentType:   req.AssessmentType,
		Status:           req.Status,
		Severity:         req.Severity,
		ExecutiveSummary: req.ExecutiveSummary,
		DueDate:          req.DueDate,
		CreatedBy:        p.UserID,
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, row); err != nil {
			return internal.NewInternalError("failed to create report", err)
		}
		for _, g := range req.Grants {
			exists, err := s.grants.UserExists(ctx, g.UserID)
			if err != nil {
				return internal.NewInternalError("failed to look up user", err)
			}
			if !exists {
				return internal.ErrUserNotFound
			}
			canView, canDownload := true, false
			if g.CanView != nil {
				canView = *g.CanView
			}
			if g.CanDownload != nil {
				canDownload = *g.CanDownload
			}
			if _, err := s.grants.Upsert(ctx, &accessDatamodel.Grant{
				ClientID:    row.ClientID,
				UserID:      g.UserID,
				ReportID:    row.ID,
				CanView:     canView,
				CanDownload: canDownload,
				GrantedBy:   p.UserID,
			}); err != nil {
				return internal.NewInternalError("failed to create access grant", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create report", "error", err, "title", req.Title)
		return nil, err
	}

	s.logger.InfoContext(ctx, "report created", "report_id", row.ID, "client_id", row.ClientID, "grants", len(req.Grants))
	return s.reload(ctx, row.ID)
}

func (s *Service) Update(ctx context.Context, p *internal.Principal, id int64, req UpdateReportRequest) (*Report, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkClient(ctx, req.ClientID); err != nil {
		return nil, err
	}

	if req.Title != nil {
		row.Title = strings.TrimSpace(*req.Title)
	}
	clientChanged := req.clientChanged() && !sameClient(row.ClientID, req.ClientID)
	if clientChanged {
		row.ClientID = req.ClientID
	}
	if req.AssessmentType != nil {
		row.AssessmentType = strings.TrimSpace(*req.AssessmentType)
	}
	if req.Status != nil {
		row.Status = *req.Status
	}
	if req.Severity != nil {
		row.Severity = *req.Severity
	}
	if req.ExecutiveSummary != nil {
		row.ExecutiveSummary = *req.ExecutiveSummary
	}
	if req.DueDate != nil {
		row.DueDate = req.DueDate
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, row); err != nil {
			return internal.NewInternalError("failed to update report", err)
		}
		if !clientChanged {
			return nil
		}
		if err := s.grants.SyncReportClient(ctx, id, row.ClientID); err != nil {
			return internal.NewInternalError("failed to update report grants", err)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update report", "error", err, "report_id", id)
		return nil, err
	}

	if clientChanged {
		s.logger.InfoContext(ctx, "report client changed", "report_id", id, "client_id", row.ClientID)
	}
	return s.reload(ctx, id)
}

func sameClient(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Delete removes the report with its findings, uploads and grants in one
// transaction. Stored evidence is purged after commit.
func (s *Service) Delete(ctx context.Context, p *internal.Principal, id int64) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return err
	}

	var (
		keys                []string
		findings, uploadCnt int64
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if keys, err = s.repo.UploadKeys(ctx, id); err != nil {
			return err
		}
		if uploadCnt, err = s.repo.DeleteUploads(ctx, id); err != nil {
			return err
		}
		if findings, err = s.repo.DeleteFindings(ctx, id); err != nil {
			return err
		}
		if err = s.grants.DeleteByReport(ctx, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete report", "error", err, "report_id", id)
		return internal.NewInternalError("failed to delete report", err)
	}

	s.logger.InfoContext(ctx, "report deleted", "report_id", id, "findings", findings, "uploads", uploadCnt)

	if s.publisher != nil {
		if len(keys) > 0 {
			if err := s.publisher.Publish(ctx, events.NewUploadsRemovedEvent(keys)); err != nil {
				s.logger.WarnContext(ctx, "failed to schedule evidence purge", "error", err, "report_id", id)
			}
		}
		event := events.NewDomainEvent(events.EventTypeReportDeleted, p.UserID, "report", strconv.FormatInt(id, 10), map[string]interface{}{
			"findings": findings,
			"uploads":  uploadCnt,
		})
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish report deletion", "error", err)
		}
	}
	return nil
}

func (s *Service) checkClient(ctx context.Context, clientID *int64) error {
	if clientID == nil {
		return nil
	}
	ok, err := s.repo.ClientExists(ctx, *clientID)
	if err != nil {
		return internal.NewInternalError("failed to look up client", err)
	}
	if !ok {
		return internal.ErrClientNotFound
	}
	return nil
}

func (s *Service) reload(ctx context.Context, id int64) (*Report, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) load(ctx context.Context, id int64) (*reportDatamodel.Report, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load report", "error", err, "report_id", id)
		return nil, internal.NewInternalError("failed to load report", err)
	}
	if row == nil {
		return nil, internal.ErrReportNotFound
	}
	return row, nil
}
