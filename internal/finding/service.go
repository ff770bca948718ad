package finding

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	findingDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/finding"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
)

type RepositoryAPI interface {
	ListByReport(ctx context.Context, reportID int64) ([]*findingDatamodel.Finding, error)
	ListAll(ctx context.Context) ([]*findingDatamodel.Finding, error)
	GetByID(ctx context.Context, id int64) (*findingDatamodel.Finding, error)
	Create(ctx context.Context, f *findingDatamodel.Finding) error
	Update(ctx context.Context, f *findingDatamodel.Finding) error
	ReportExists(ctx context.Context, reportID int64) (bool, error)

	UploadKeys(ctx context.Context, findingID int64) ([]string, error)
	DeleteUploads(ctx context.Context, findingID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
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

// ListByReport returns the findings of a report the caller may read.
func (s *Service) ListByReport(ctx context.Context, p *internal.Principal, reportID int64) ([]*Finding, error) {
	if err := s.requireReport(ctx, reportID); err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeRead(ctx, p, reportID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListByReport(ctx, reportID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list findings", "error", err, "report_id", reportID)
		return nil, internal.NewInternalError("failed to list findings", err)
	}
	return fromRows(rows), nil
}

// ListAll is the admin-wide finding index.
func (s *Service) ListAll(ctx context.Context, p *internal.Principal) ([]*Finding, error) {
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list findings", "error", err)
		return nil, internal.NewInternalError("failed to list findings", err)
	}
	return fromRows(rows), nil
}

func (s *Service) Get(ctx context.Context, p *internal.Principal, id int64) (*Finding, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeRead(ctx, p, row.ReportID); err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

// ReportOf resolves the parent report of a finding without an access check.
func (s *Service) ReportOf(ctx context.Context, id int64) (int64, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	return row.ReportID, nil
}

func (s *Service) Create(ctx context.Context, p *internal.Principal, req CreateFindingRequest) (*Finding, error) {
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireReport(ctx, req.ReportID); err != nil {
		return nil, err
	}

	row := &findingDatamodel.Finding{
		ReportID:       req.ReportID,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       req.Severity,
		CVSSScore:      req.CVSSScore,
		Impact:         req.Impact,
		Recommendation: req.Recommendation,
		Status:         req.Status,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to create finding", "error", err, "report_id", req.ReportID)
		return nil, internal.NewInternalError("failed to create finding", err)
	}

	s.logger.InfoContext(ctx, "finding created", "finding_id", row.ID, "report_id", row.ReportID, "severity", row.Severity)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, p *internal.Principal, id int64, req UpdateFindingRequest) (*Finding, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	if req.Severity != nil {
		lower := strings.ToLower(strings.TrimSpace(*req.Severity))
		req.Severity = &lower
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Title != nil {
		row.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		row.Description = *req.Description
	}
	if req.Severity != nil {
		row.Severity = *req.Severity
	}
	if req.CVSSScore != nil {
		row.CVSSScore = req.CVSSScore
	}
	if req.Impact != nil {
		row.Impact = *req.Impact
	}
	if req.Recommendation != nil {
		row.Recommendation = *req.Recommendation
	}
	if req.Status != nil {
		row.Status = *req.Status
	}

	if err := s.repo.Update(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to update finding", "error", err, "finding_id", id)
		return nil, internal.NewInternalError("failed to update finding", err)
	}
	return FromDataModel(row), nil
}

// Delete removes the finding and its evidence rows in one transaction.
func (s *Service) Delete(ctx context.Context, p *internal.Principal, id int64) error {
	row, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return err
	}

	var (
		keys    []string
		removed int64
	)
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if keys, err = s.repo.UploadKeys(ctx, id); err != nil {
			return err
		}
		if removed, err = s.repo.DeleteUploads(ctx, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete finding", "error", err, "finding_id", id)
		return internal.NewInternalError("failed to delete finding", err)
	}

	s.logger.InfoContext(ctx, "finding deleted", "finding_id", id, "report_id", row.ReportID, "uploads", removed)

	if s.publisher != nil {
		if len(keys) > 0 {
			if err := s.publisher.Publish(ctx, events.NewUploadsRemovedEvent(keys)); err != nil {
				s.logger.WarnContext(ctx, "failed to schedule evidence purge", "error", err, "finding_id", id)
			}
		}
		event := events.NewDomainEvent(events.EventTypeFindingDeleted, p.UserID, "finding", strconv.FormatInt(id, 10), map[string]interface{}{
			"report_id": row.ReportID,
			"title":     row.Title,
		})
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish finding deletion", "error", err)
		}
	}
	return nil
}

func (s *Service) requireReport(ctx context.Context, reportID int64) error {
	ok, err := s.repo.ReportExists(ctx, reportID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to look up report", "error", err, "report_id", reportID)
		return internal.NewInternalError("failed to look up report", err)
	}
	if !ok {
		return internal.ErrReportNotFound
	}
	return nil
}

func (s *Service) load(ctx context.Context, id int64) (*findingDatamodel.Finding, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load finding", "error", err, "finding_id", id)
		return nil, internal.NewInternalError("failed to load finding", err)
	}
	if row == nil {
		return nil, internal.ErrFindingNotFound
	}
	return row, nil
}

func fromRows(rows []*findingDatamodel.Finding) []*Finding {
	out := make([]*Finding, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out
}

// SortBySeverity orders findings most severe first, then by CVSS score.
func SortBySeverity(findings []*Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		ri, rj := SeverityRank(findings[i].Severity), SeverityRank(findings[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return score(findings[i]) > score(findings[j])
	})
}

func score(f *Finding) float64 {
	if f.CVSSScore == nil {
		return -1
	}
	return *f.CVSSScore
}
