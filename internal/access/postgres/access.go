package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/pentest-portal/internal/access"
	accessDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/access"
	clientDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/client"
	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert inserts the grant or, when (user_id, report_id) already exists,
// overwrites its flags in place. The stored row is returned.
func (r *Repository) Upsert(ctx context.Context, grant *accessDatamodel.Grant) (*accessDatamodel.Grant, error) {
	conn := datastore.Conn(ctx, r.db)
	grant.UpdatedAt = time.Now()

	err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "report_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"client_id", "can_view", "can_download", "granted_by", "updated_at"}),
	}).Create(grant).Error
	if err != nil {
		return nil, err
	}

	return r.GetByUserAndReport(ctx, grant.UserID, grant.ReportID)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*accessDatamodel.Grant, error) {
	var grant accessDatamodel.Grant
	err := datastore.Conn(ctx, r.db).Where("id = ?", id).First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

func (r *Repository) GetByUserAndReport(ctx context.Context, userID string, reportID int64) (*accessDatamodel.Grant, error) {
	var grant accessDatamodel.Grant
	err := datastore.Conn(ctx, r.db).
		Where("user_id = ? AND report_id = ?", userID, reportID).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

// HasGrant is existential so it stays correct even if legacy duplicates exist.
func (r *Repository) HasGrant(ctx context.Context, userID string, reportID int64, capability access.Capability) (bool, error) {
	column := "can_view"
	if capability == access.CapabilityDownload {
		column = "can_download"
	}

	var count int64
	err := datastore.Conn(ctx, r.db).Model(&accessDatamodel.Grant{}).
		Where("user_id = ? AND report_id = ? AND "+column+" = ?", userID, reportID, true).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) List(ctx context.Context, filter access.ListFilter) ([]*accessDatamodel.Grant, error) {
	var grants []*accessDatamodel.Grant
	q := datastore.Conn(ctx, r.db).Order("created_at DESC, id DESC")
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.ReportID != nil {
		q = q.Where("report_id = ?", *filter.ReportID)
	}
	err := q.Find(&grants).Error
	return grants, err
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	return datastore.Conn(ctx, r.db).Delete(&accessDatamodel.Grant{}, id).Error
}

// DeleteByReport removes every grant on a report; used by the report cascade.
func (r *Repository) DeleteByReport(ctx context.Context, reportID int64) error {
	return datastore.Conn(ctx, r.db).Where("report_id = ?", reportID).Delete(&accessDatamodel.Grant{}).Error
}

// SyncReportClient keeps the client recorded on a report's grants in step
// with the report itself.
func (r *Repository) SyncReportClient(ctx context.Context, reportID int64, clientID *int64) error {
	return datastore.Conn(ctx, r.db).Model(&accessDatamodel.Grant{}).
		Where("report_id = ?", reportID).
		Updates(map[string]interface{}{"client_id": clientID, "updated_at": time.Now()}).Error
}

func (r *Repository) ClientExists(ctx context.Context, clientID int64) (bool, error) {
	var count int64
	err := datastore.Conn(ctx, r.db).Model(&clientDatamodel.Client{}).Where("id = ?", clientID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := datastore.Conn(ctx, r.db).Model(&userDatamodel.User{}).Where("id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) ReportClientID(ctx context.Context, reportID int64) (*int64, bool, error) {
	var report reportDatamodel.Report
	err := datastore.Conn(ctx, r.db).Select("id", "client_id").Where("id = ?", reportID).First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return report.ClientID, true, nil
}

// ViewableReportIDs is the semi-join subquery behind every non-admin
// listing: the ids of reports userID holds a view grant on.
func ViewableReportIDs(db *gorm.DB, userID string) *gorm.DB {
	return db.Model(&accessDatamodel.Grant{}).
		Select("report_id").
		Where("user_id = ? AND can_view = ?", userID, true)
}
