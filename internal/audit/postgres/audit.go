package postgres

import (
	"context"

	auditDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/audit"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Append(ctx context.Context, entry *auditDatamodel.Entry) error {
	return datastore.Conn(ctx, r.db).Create(entry).Error
}

func (r *Repository) Recent(ctx context.Context, limit int) ([]*auditDatamodel.Entry, error) {
	var entries []*auditDatamodel.Entry
	err := datastore.Conn(ctx, r.db).Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
