package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/DocChat/internal/blob"
	"github.com/dharsanguruparan/DocChat/internal/config"
	"github.com/dharsanguruparan/DocChat/internal/database"
	"github.com/dharsanguruparan/DocChat/internal/jobstore"
)

// openJobStore returns the configured record store. The pool is nil for the
// memory backend.
func openJobStore(ctx context.Context, cfg *config.Config) (jobstore.Store, *pgxpool.Pool, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return jobstore.NewPostgresStore(pool), pool, nil
	case config.StoreMemory:
		return jobstore.NewMemoryStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobMinio:
		store, err := blob.NewMinioStore(blob.MinioConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BlobDir:
		return blob.NewDirStore(cfg.BlobDir)
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
}
