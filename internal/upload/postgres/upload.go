package postgres

import (
	"context"
	"errors"

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

func (r *Repository) Create(ctx context.Context, u *uploadDatamodel.Upload) error {
	return datastore.Conn(ctx, r.db).Create(u).Error
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*uploadDatamodel.Upload, error) {
	var upload uploadDatamodel.Upload
	if err := datastore.Conn(ctx, r.db).Where("id = ?", id).First(&upload).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &upload, nil
}

func (r *Repository) ListByReport(ctx context.Context, reportID int64) ([]*uploadDatamodel.Upload, error) {
	var uploads []*uploadDatamodel.Upload
	err := datastore.Conn(ctx, r.db).Where("report_id = ?", reportID).
		Order("created_at DESC, id DESC").Find(&uploads).Error
	return uploads, err
}

func (r *Repository) ListByFinding(ctx context.Context, findingID int64) ([]*uploadDatamodel.Upload, error) {
	var uploads []*uploadDatamodel.Upload
	err := datastore.Conn(ctx, r.db).Where("finding_id = ?", findingID).
		Order("created_at DESC, id DESC").Find(&uploads).Error
	return uploads, err
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	return datastore.Conn(ctx, r.db).Delete(&uploadDatamodel.Upload{}, id).Error
}

func (r *Repository) AllKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := datastore.Conn(ctx, r.db).Model(&uploadDatamodel.Upload{}).Pluck("filename", &keys).Error
	return keys, err
}

func (r *Repository) ReportExists(ctx context.Context, reportID int64) (bool, error) {
	var count int64
	err := datastore.Conn(ctx, r.db).Model(&reportDatamodel.Report{}).Where("id = ?", reportID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) FindingReportID(ctx context.Context, findingID int64) (int64, bool, error) {
	var finding findingDatamodel.Finding
	err := datastore.Conn(ctx, r.db).Select("id", "report_id").Where("id = ?", findingID).First(&finding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return finding.ReportID, true, nil
}
