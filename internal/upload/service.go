package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/access"
	uploadDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/upload"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
	"github.com/frahmantamala/pentest-portal/internal/upload/storage"
)

type RepositoryAPI interface {
	Create(ctx context.Context, u *uploadDatamodel.Upload) error
	GetByID(ctx context.Context, id int64) (*uploadDatamodel.Upload, error)
	ListByReport(ctx context.Context, reportID int64) ([]*uploadDatamodel.Upload, error)
	ListByFinding(ctx context.Context, findingID int64) ([]*uploadDatamodel.Upload, error)
	Delete(ctx context.Context, id int64) error
	AllKeys(ctx context.Context) ([]string, error)

	ReportExists(ctx context.Context, reportID int64) (bool, error)
	// FindingReportID returns the parent report of a finding; ok is false
	// when the finding does not exist.
	FindingReportID(ctx context.Context, findingID int64) (reportID int64, ok bool, err error)
}

// Enqueuer receives storage keys to delete.
type Enqueuer interface {
	Enqueue(keys ...string) error
}

// DefaultOrphanMinAge keeps the sweeper away from blobs whose row may
// still be on its way in.
const DefaultOrphanMinAge = time.Hour

type Options struct {
	MaxSizeBytes int64
	Location     string
	// OrphanMinAge is how old an unreferenced object must be before a
	// sweep schedules it. Zero sweeps everything.
	OrphanMinAge time.Duration
}

type Service struct {
	repo      RepositoryAPI
	store     storage.ObjectStorage
	gate      *access.Gate
	tx        datastore.Transactor
	publisher events.Publisher
	opts      Options
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, store storage.ObjectStorage, gate *access.Gate, tx datastore.Transactor, publisher events.Publisher, opts Options, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		gate:      gate,
		tx:        tx,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}
}

func (s *Service) MaxSizeBytes() int64 {
	return s.opts.MaxSizeBytes
}

// Create stores the blob first and then the row. A failed insert removes
// the blob again.
func (s *Service) Create(ctx context.Context, p *internal.Principal, req CreateUploadRequest) (*Upload, error) {
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return nil, err
	}
	if err := req.Validate(s.opts.MaxSizeBytes); err != nil {
		return nil, err
	}
	if req.ReportID != nil {
		if err := s.requireReport(ctx, *req.ReportID); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.findingReport(ctx, *req.FindingID); err != nil {
			return nil, err
		}
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	key := uuid.NewString() + strings.ToLower(filepath.Ext(req.OriginalName))

	if err := s.store.Put(ctx, key, req.Body, storage.ObjectMetadata{ContentType: mimeType, ContentLength: req.Size}); err != nil {
		s.logger.ErrorContext(ctx, "failed to store upload", "error", err, "key", key)
		return nil, internal.NewInternalError("failed to store file", err)
	}

	row := &uploadDatamodel.Upload{
		Filename:     key,
		OriginalName: filepath.Base(req.OriginalName),
		MimeType:     mimeType,
		Size:         req.Size,
		Path:         s.location(key),
		ReportID:     req.ReportID,
		FindingID:    req.FindingID,
		UploadedBy:   p.UserID,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "failed to record upload", "error", err, "key", key)
		if derr := s.store.Delete(ctx, key); derr != nil && !errors.Is(derr, storage.ErrObjectNotFound) {
			s.logger.WarnContext(ctx, "failed to remove stored file after insert failure", "error", derr, "key", key)
		}
		return nil, internal.NewInternalError("failed to record upload", err)
	}

	s.logger.InfoContext(ctx, "upload stored", "upload_id", row.ID, "key", key, "size", row.Size)
	return FromDataModel(row), nil
}

func (s *Service) location(key string) string {
	if s.opts.Location == "" {
		return key
	}
	return strings.TrimRight(s.opts.Location, "/") + "/" + key
}

func (s *Service) ListByReport(ctx context.Context, p *internal.Principal, reportID int64) ([]*Upload, error) {
	if err := s.requireReport(ctx, reportID); err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeRead(ctx, p, reportID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByReport(ctx, reportID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list uploads", "error", err, "report_id", reportID)
		return nil, internal.NewInternalError("failed to list uploads", err)
	}
	return fromRows(rows), nil
}

func (s *Service) ListByFinding(ctx context.Context, p *internal.Principal, findingID int64) ([]*Upload, error) {
	reportID, err := s.findingReport(ctx, findingID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeRead(ctx, p, reportID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByFinding(ctx, findingID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list uploads", "error", err, "finding_id", findingID)
		return nil, internal.NewInternalError("failed to list uploads", err)
	}
	return fromRows(rows), nil
}

// Open returns the upload and a reader over its content. The caller needs
// download rights on the owning report and must close the reader.
func (s *Service) Open(ctx context.Context, p *internal.Principal, id int64) (*Upload, io.ReadCloser, error) {
	row, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	reportID, err := s.owningReport(ctx, row)
	if err != nil {
		return nil, nil, err
	}
	if err := s.gate.AuthorizeDownload(ctx, p, reportID); err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Get(ctx, row.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.WarnContext(ctx, "upload row without stored object", "upload_id", id, "key", row.Filename)
			return nil, nil, internal.ErrUploadNotFound
		}
		s.logger.ErrorContext(ctx, "failed to open upload", "error", err, "upload_id", id)
		return nil, nil, internal.NewInternalError("failed to open file", err)
	}
	return FromDataModel(row), rc, nil
}

func (s *Service) Delete(ctx context.Context, p *internal.Principal, id int64) error {
	row, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.AuthorizeWrite(ctx, p); err != nil {
		return err
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete upload", "error", err, "upload_id", id)
		return internal.NewInternalError("failed to delete upload", err)
	}

	s.logger.InfoContext(ctx, "upload deleted", "upload_id", id, "key", row.Filename, "deleted_by", p.UserID)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.NewUploadsRemovedEvent([]string{row.Filename})); err != nil {
			s.logger.WarnContext(ctx, "failed to schedule object purge", "error", err, "upload_id", id)
		}
	}
	return nil
}

// SweepOrphans enqueues every stored object that no upload row references
// and that is older than OrphanMinAge, and returns how many were scheduled.
func (s *Service) SweepOrphans(ctx context.Context, purger Enqueuer) (int, error) {
	cutoff := time.Now().Add(-s.opts.OrphanMinAge)

	known, err := s.repo.AllKeys(ctx)
	if err != nil {
		return 0, internal.NewInternalError("failed to load upload keys", err)
	}
	referenced := make(map[string]struct{}, len(known))
	for _, k := range known {
		referenced[k] = struct{}{}
	}

	objects, err := s.store.List(ctx, "")
	if err != nil {
		return 0, internal.NewInternalError("failed to list stored objects", err)
	}

	var (
		orphans []string
		recent  int
	)
	for _, obj := range objects {
		if _, ok := referenced[obj.Key]; ok {
			continue
		}
		if s.opts.OrphanMinAge > 0 && obj.LastModified.After(cutoff) {
			recent++
			continue
		}
		orphans = append(orphans, obj.Key)
	}
	if len(orphans) == 0 {
		s.logger.InfoContext(ctx, "no orphaned objects found", "objects", len(objects), "too_recent", recent)
		return 0, nil
	}
	if err := purger.Enqueue(orphans...); err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "orphaned objects scheduled for purge", "count", len(orphans), "objects", len(objects), "too_recent", recent)
	return len(orphans), nil
}

func (s *Service) owningReport(ctx context.Context, row *uploadDatamodel.Upload) (int64, error) {
	if row.ReportID != nil {
		return *row.ReportID, nil
	}
	if row.FindingID != nil {
		return s.findingReport(ctx, *row.FindingID)
	}
	return 0, internal.ErrUploadNotFound
}

func (s *Service) requireReport(ctx context.Context, reportID int64) error {
	ok, err := s.repo.ReportExists(ctx, reportID)
	if err != nil {
		return internal.NewInternalError("failed to look up report", err)
	}
	if !ok {
		return internal.ErrReportNotFound
	}
	return nil
}

func (s *Service) findingReport(ctx context.Context, findingID int64) (int64, error) {
	reportID, ok, err := s.repo.FindingReportID(ctx, findingID)
	if err != nil {
		return 0, internal.NewInternalError("failed to look up finding", err)
	}
	if !ok {
		return 0, internal.ErrFindingNotFound
	}
	return reportID, nil
}

func (s *Service) load(ctx context.Context, id int64) (*uploadDatamodel.Upload, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load upload", "error", err, "upload_id", id)
		return nil, internal.NewInternalError("failed to load upload", err)
	}
	if row == nil {
		return nil, internal.ErrUploadNotFound
	}
	return row, nil
}

func fromRows(rows []*uploadDatamodel.Upload) []*Upload {
	out := make([]*Upload, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out
}
