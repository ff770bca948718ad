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

func (r *Repository) ListByReport(ctx context.Context, reportID int64) ([]*findingDatamodel.Finding, error) {
	var findings []*findingDatamodel.Finding
	err := datastore.Conn(ctx, r.db).Where("report_id = ?", reportID).
		Order("created_at DESC, id DESC").Find(&findings).Error
	return findings, err
}

func (r *Repository) ListAll(ctx context.Context) ([]*findingDatamodel.Finding, error) {
	var findings []*findingDatamodel.Finding
	err := datastore.Conn(ctx, r.db).Order("created_at DESC, id DESC").Find(&findings).Error
	return findings, err
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*findingDatamodel.Finding, error) {
	var finding findingDatamodel.Finding
	if err := datastore.Conn(ctx, r.db).Where("id = ?", id).First(&finding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &finding, nil
}

func (r *Repository) Create(ctx context.Context, f *findingDatamodel.Finding) error {
	return datastore.Conn(ctx, r.db).Create(f).Error
}

func (r *Repository) Update(ctx context.Context, f *findingDatamodel.Finding) error {
	return datastore.Conn(ctx, r.db).Save(f).Error
}

func (r *Repository) ReportExists(ctx context.Context, reportID int64) (bool, error) {
	var count int64
	err := datastore.Conn(ctx, r.db).Model(&reportDatamodel.Report{}).Where("id = ?", reportID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) UploadKeys(ctx context.Context, findingID int64) ([]string, error) {
	var keys []string
	err := datastore.Conn(ctx, r.db).Model(&uploadDatamodel.Upload{}).
		Where("finding_id = ?", findingID).Pluck("filename", &keys).Error
	return keys, err
}

func (r *Repository) DeleteUploads(ctx context.Context, findingID int64) (int64, error) {
	res := datastore.Conn(ctx, r.db).Where("finding_id = ?", findingID).Delete(&uploadDatamodel.Upload{})
	return res.RowsAffected, res.Error
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	return datastore.Conn(ctx, r.db).Delete(&findingDatamodel.Finding{}, id).Error
}
