package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/pentest-portal/internal/access"
	accessPostgres "github.com/frahmantamala/pentest-portal/internal/access/postgres"
	clientDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/client"
	findingDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/finding"
	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
	uploadDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/upload"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// List filters non-admin scopes with a semi-join on access_grants, so a
// report appears at most once however many grant rows match.
func (r *Repository) List(ctx context.Context, scope access.Scope, clientID *int64) ([]*reportDatamodel.Report, error) {
	conn := datastore.Conn(ctx, r.db)
	q := conn.Preload("Client").Preload("Creator").Order("created_at DESC, id DESC")
	if !scope.Unrestricted {
		q = q.Where("id IN (?)", accessPostgres.ViewableReportIDs(conn, scope.UserID))
	}
	if clientID != nil {
		q = q.Where("client_id = ?", *clientID)
	}

	var reports []*reportDatamodel.Report
	err := q.Find(&reports).Error
	return reports, err
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*reportDatamodel.Report, error) {
	var report reportDatamodel.Report
	err := datastore.Conn(ctx, r.db).Preload("Client").Preload("Creator").
		Where("id = ?", id).First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

func (r *Repository) Create(ctx context.Context, report *reportDatamodel.Report) error {
	return datastore.Conn(ctx, r.db).Omit("Client", "Creator").Create(report).Error
}

func (r *Repository) Update(ctx context.Context, report *reportDatamodel.Report) error {
	report.UpdatedAt = time.Now()
	return datastore.Conn(ctx, r.db).Model(&reportDatamodel.Report{ID: report.ID}).
		Select("title", "client_id", "assessment_type", "status", "severity", "executive_summary", "due_date", "updated_at").
		Updates(map[string]interface{}{
			"title":             report.Title,
			"client_id":         report.ClientID,
			"assessment_type":   report.AssessmentType,
			"status":            report.Status,
			"severity":          report.Severity,
			"executive_summary": report.ExecutiveSummary,
			"due_date":          report.DueDate,
			"updated_at":        report.UpdatedAt,
		}).Error
}

func (r *Repository) ClientExists(ctx context.Context, clientID int64) (bool, error) {
	var count int64
	err := datastore.Conn(ctx, r.db).Model(&clientDatamodel.Client{}).Where("id = ?", clientID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) findingIDs(conn *gorm.DB, reportID int64) *gorm.DB {
	return conn.Model(&findingDatamodel.Finding{}).Select("id").Where("report_id = ?", reportID)
}

func (r *Repository) uploadsOf(conn *gorm.DB, reportID int64) *gorm.DB {
	return conn.Model(&uploadDatamodel.Upload{}).
		Where("report_id = ? OR finding_id IN (?)", reportID, r.findingIDs(conn, reportID))
}

// UploadKeys lists storage keys of evidence on the report or its findings.
func (r *Repository) UploadKeys(ctx context.Context, reportID int64) ([]string, error) {
	var keys []string
	conn := datastore.Conn(ctx, r.db)
	err := r.uploadsOf(conn, reportID).Pluck("filename", &keys).Error
	return keys, err
}

func (r *Repository) DeleteUploads(ctx context.Context, reportID int64) (int64, error) {
	conn := datastore.Conn(ctx, r.db)
	res := conn.Where("report_id = ? OR finding_id IN (?)", reportID, r.findingIDs(conn, reportID)).
		Delete(&uploadDatamodel.Upload{})
	return res.RowsAffected, res.Error
}

func (r *Repository) DeleteFindings(ctx context.Context, reportID int64) (int64, error) {
	res := datastore.Conn(ctx, r.db).Where("report_id = ?", reportID).Delete(&findingDatamodel.Finding{})
	return res.RowsAffected, res.Error
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	return datastore.Conn(ctx, r.db).Delete(&reportDatamodel.Report{}, id).Error
}
