package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/pentest-portal/internal"
	"github.com/frahmantamala/pentest-portal/internal/upload/storage"
	"github.com/frahmantamala/pentest-portal/internal/upload/storage/fs"
	"github.com/frahmantamala/pentest-portal/internal/upload/storage/s3"
)

// NewObjectStorage picks the adapter named by cfg.Driver. The returned
// location prefixes the path recorded on each upload row.
func NewObjectStorage(ctx context.Context, cfg internal.StorageConfig, logger *slog.Logger) (storage.ObjectStorage, string, error) {
	switch cfg.Driver {
	case "", "fs":
		store, err := fs.New(cfg.BasePath, logger)
		if err != nil {
			return nil, "", err
		}
		return store, "file://" + cfg.BasePath, nil
	case "s3":
		store, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			MaxRetries:      cfg.S3.MaxRetries,
			Timeout:         cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return store, "s3://" + cfg.Bucket, nil
	default:
		return nil, "", fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
