// Package datastoretest opens throwaway sqlite databases for repository and
// handler tests.
package datastoretest

import (
	"fmt"

	accessDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/access"
	auditDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/audit"
	clientDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/client"
	findingDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/finding"
	reportDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/report"
	uploadDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/upload"
	userDatamodel "github.com/frahmantamala/pentest-portal/internal/core/datamodel/user"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite returns an in-memory database with the full schema migrated.
// The pool is pinned to one connection: every new sqlite :memory:
// connection would otherwise see its own empty database.
func OpenSQLite() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&userDatamodel.User{},
		&clientDatamodel.Client{},
		&reportDatamodel.Report{},
		&findingDatamodel.Finding{},
		&accessDatamodel.Grant{},
		&uploadDatamodel.Upload{},
		&auditDatamodel.Entry{},
	); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return db, nil
}

// Close releases the underlying connection.
func Close(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
