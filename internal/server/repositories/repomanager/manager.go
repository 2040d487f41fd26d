// Package repomanager opens the identity store backend named in the
// configuration and owns the connections behind it.
package repomanager

import (
	"context"
	"fmt"

	"github.com/zhangleigang/knowledge-api/internal/logging"
	"github.com/zhangleigang/knowledge-api/internal/server/config"
	"github.com/zhangleigang/knowledge-api/internal/server/repositories/users"
)

type RepositoryManager interface {
	Users() users.Repository
	Close() error
}

// Open returns the manager for cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (RepositoryManager, error) {
	var (
		m   RepositoryManager
		err error
	)

	switch cfg.StoreBackend {
	case config.BackendFile, "":
		m, err = NewFileRepositoryManager(ctx, cfg.UserDataFile, logger)
	case config.BackendPostgres:
		m, err = NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
	case config.BackendRedis:
		m, err = NewRedisRepositoryManager(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "user store opened", "backend", cfg.StoreBackend)
	return m, nil
}

// FileRepositoryManager serves users from a JSON file.
type FileRepositoryManager struct {
	users *users.FileRepository
}

func NewFileRepositoryManager(ctx context.Context, path string, logger logging.Logger) (*FileRepositoryManager, error) {
	r, err := users.NewFileRepository(ctx, path, logger)
	if err != nil {
		return nil, err
	}
	return &FileRepositoryManager{users: r}, nil
}

func (m *FileRepositoryManager) Users() users.Repository { return m.users }

func (m *FileRepositoryManager) Close() error { return nil }
