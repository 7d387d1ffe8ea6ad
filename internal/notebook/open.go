package notebook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kuitang/notekeep/internal/config"
	"github.com/kuitang/notekeep/internal/crypto"
	"github.com/kuitang/notekeep/internal/kv"
	"github.com/kuitang/notekeep/internal/obs"
	"github.com/kuitang/notekeep/internal/query"
	"github.com/kuitang/notekeep/internal/s3client"
)

// SQLiteFileName is the database file created under the data directory.
const SQLiteFileName = "notekeep.db"

// OpenStore builds the store backend cfg selects. Memory and SQLite enforce
// the quota across all keys themselves.
func OpenStore(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return kv.NewMemory(cfg.QuotaBytes), nil

	case config.BackendFile:
		store, err := kv.NewFile(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendSQLite:
		masterKey, err := crypto.ParseMasterKey(cfg.MasterKey)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		store, err := kv.NewSQLite(filepath.Join(cfg.DataDir, SQLiteFileName), masterKey, cfg.QuotaBytes)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendS3:
		client, err := s3client.New(ctx, s3client.Config{
			Endpoint:          cfg.S3.Endpoint,
			Region:            cfg.S3.Region,
			AccessKeyID:       cfg.S3.AccessKeyID,
			SecretAccessKey:   cfg.S3.SecretAccessKey,
			BucketName:        cfg.S3.Bucket,
			UsePathStyle:      cfg.S3.UsePathStyle,
			RequestsPerSecond: cfg.S3.RequestsPerSecond,
			Burst:             cfg.S3.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		return kv.NewS3(client, cfg.S3.Prefix), nil

	case config.BackendRedis:
		store, err := kv.NewRedis(ctx, kv.RedisConfig{URL: cfg.Redis.URL, Prefix: cfg.Redis.Prefix})
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Open builds the store cfg selects, loads the notebook from it and empties
// archived notes past the configured retention.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Notebook, error) {
	obs.SetLevel(cfg.LogLevel)
	logger := obs.Pkg("notebook")

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}

	base := []Option{
		WithAutosaveInterval(cfg.AutosaveInterval),
		WithQuota(cfg.QuotaBytes),
	}
	nb := New(store, append(base, opts...)...)
	if err := nb.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if key, ok := query.ParseSortKey(cfg.SortBy); ok {
		nb.SetOrder(query.Order{Key: key, Desc: key != query.ByTitle})
	}
	logger.Info("notebook opened", "config", cfg, "notes", len(nb.AllNotes()), "folders", len(nb.Folders()))

	if cfg.PurgeAfter > 0 {
		n, err := nb.PurgeArchived(ctx, cfg.PurgeAfter)
		if err != nil {
			logger.Warn("purge of old archived notes failed", "error", err)
		} else if n > 0 {
			logger.Info("purged old archived notes", "count", n, "older_than", cfg.PurgeAfter)
		}
	}
	return nb, nil
}
