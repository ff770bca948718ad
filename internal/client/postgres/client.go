package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/pentest-portal/internal/access"
	accessPostgres "github.com/frahmantamala/pentest-portal/internal/access/postgres"
	accessDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/access"
	clientDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/client"
	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context, scope access.Scope) ([]*clientDatamodel.Client, error) {
	conn := datastore.Conn(ctx, r.db)
	q := conn.Order("created_at DESC, id DESC")
	if !scope.Unrestricted {
		q = q.Where("id IN (?)", r.visibleClientIDs(conn, scope.UserID))
	}

	var clients []*clientDatamodel.Client
	err := q.Find(&clients).Error
	return clients, err
}

func (r *Repository) Visible(ctx context.Context, scope access.Scope, id int64) (bool, error) {
	if scope.Unrestricted {
		return true, nil
	}
	conn := datastore.Conn(ctx, r.db)

	var count int64
	err := conn.Model(&clientDatamodel.Client{}).
		Where("id = ? AND id IN (?)", id, r.visibleClientIDs(conn, scope.UserID)).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) visibleClientIDs(conn *gorm.DB, userID string) *gorm.DB {
	return conn.Model(&reportDatamodel.Report{}).
		Select("client_id").
		Where("client_id IS NOT NULL AND id IN (?)", accessPostgres.ViewableReportIDs(conn, userID))
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*clientDatamodel.Client, error) {
	var c clientDatamodel.Client
	err := datastore.Conn(ctx, r.db).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Create(ctx context.Context, c *clientDatamodel.Client) error {
	return datastore.Conn(ctx, r.db).Create(c).Error
}

func (r *Repository) Update(ctx context.Context, c *clientDatamodel.Client) error {
	c.UpdatedAt = time.Now()
	return datastore.Conn(ctx, r.db).Save(c).Error
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	return datastore.Conn(ctx, r.db).Delete(&clientDatamodel.Client{}, id).Error
}

func (r *Repository) DetachReports(ctx context.Context, id int64) (int64, error) {
	res := datastore.Conn(ctx, r.db).Model(&reportDatamodel.Report{}).
		Where("client_id = ?", id).
		Updates(map[string]interface{}{"client_id": nil, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *Repository) DeleteGrants(ctx context.Context, id int64) (int64, error) {
	conn := datastore.Conn(ctx, r.db)
	reports := conn.Model(&reportDatamodel.Report{}).Select("id").Where("client_id = ?", id)
	res := conn.Where("report_id IN (?)", reports).Delete(&accessDatamodel.Grant{})
	return res.RowsAffected, res.Error
}
