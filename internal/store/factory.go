// factory.go implements the backend registry and the one-shot selection that
// decides between the document backend and the file backend at startup.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/code-supporter/code-supporter/internal/config"
)

// Backend kind names used for registration and reported by Kind().
const (
	KindMongo = "mongo"
	KindFile  = "file"
)

// FactoryFunc constructs a storage backend from configuration
type FactoryFunc func(ctx context.Context, cfg *config.StorageConfig) (Backend, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// Open selects and constructs the storage backend for this process.
//
// When a document-database connection string is configured, that backend is
// attempted first (connect, ping, ensure indices). Any failure, be it an
// unreachable server or a timeout, is non-fatal: Open logs the
// reason and falls back to the file backend, which creates its on-disk layout
// idempotently. The decision is permanent for the process lifetime; there is
// no later retry of the document backend.
func Open(ctx context.Context, cfg *config.StorageConfig) (Backend, error) {
	if cfg.MongoURI != "" {
		if factory, ok := factories[KindMongo]; ok {
			backend, err := factory(ctx, cfg)
			if err == nil {
				slog.Info("storage backend selected", "kind", KindMongo, "database", cfg.MongoDatabase)
				return backend, nil
			}
			slog.Warn("document backend unavailable, falling back to file storage",
				"error", err, "data_dir", cfg.DataDir)
		} else {
			slog.Warn("document backend not compiled in, falling back to file storage",
				"data_dir", cfg.DataDir)
		}
	}

	factory, ok := factories[KindFile]
	if !ok {
		return nil, fmt.Errorf("no file storage backend registered")
	}

	backend, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}
	slog.Info("storage backend selected", "kind", KindFile, "data_dir", cfg.DataDir)
	return backend, nil
}
