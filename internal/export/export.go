// Package export renders reports as downloadable PDF documents.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	findingDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/finding"
	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
	"github.com/frahmantamala/pentest-portal/internal/finding"
	"github.com/frahmantamala/pentest-portal/internal/report"
)

type ReportLoader interface {
	GetByID(ctx context.Context, id int64) (*reportDatamodel.Report, error)
}

type FindingLister interface {
	ListByReport(ctx context.Context, reportID int64) ([]*findingDatamodel.Finding, error)
}

type Document struct {
	Filename string
	Content  []byte
}

type Service struct {
	reports  ReportLoader
	findings FindingLister
	gate     *access.Gate
	logger   *slog.Logger
	now      func() time.Time
	// noCompress leaves content streams readable; tests only.
	noCompress bool
}

func NewService(reports ReportLoader, findings FindingLister, gate *access.Gate, logger *slog.Logger) *Service {
	return &Service{
		reports:  reports,
		findings: findings,
		gate:     gate,
		logger:   logger,
		now:      time.Now,
	}
}

// RenderReport requires download rights on the report.
func (s *Service) RenderReport(ctx context.Context, p *internal.Principal, reportID int64) (*Document, error) {
	row, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load report for export", "error", err, "report_id", reportID)
		return nil, internal.NewInternalError("failed to load report", err)
	}
	if row == nil {
		return nil, internal.ErrReportNotFound
	}
	if err := s.gate.AuthorizeDownload(ctx, p, reportID); err != nil {
		return nil, err
	}

	rows, err := s.findings.ListByReport(ctx, reportID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load findings for export", "error", err, "report_id", reportID)
		return nil, internal.NewInternalError("failed to load findings", err)
	}
	findings := make([]*finding.Finding, 0, len(rows))
	for _, f := range rows {
		findings = append(findings, finding.FromDataModel(f))
	}
	finding.SortBySeverity(findings)

	rep := report.FromDataModel(row)
	buf := &bytes.Buffer{}
	if err := newRenderer(s.now(), s.noCompress).Render(buf, rep, findings); err != nil {
		s.logger.ErrorContext(ctx, "failed to render report", "error", err, "report_id", reportID)
		return nil, internal.NewInternalError("failed to render report", err)
	}

	s.logger.InfoContext(ctx, "report exported", "report_id", reportID, "findings", len(findings), "bytes", buf.Len())
	return &Document{Filename: filename(rep), Content: buf.Bytes()}, nil
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func filename(rep *report.Report) string {
	slug := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(rep.Title), "-"), "-")
	if slug == "" {
		slug = "report"
	}
	return fmt.Sprintf("%s-%d.pdf", slug, rep.ID)
}
