package repomanager

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhangleigang/knowledge-api/internal/server/repositories/users"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisRepositoryManager owns the Redis client behind the users repository.
type RedisRepositoryManager struct {
	rdb   *redis.Client
	users *users.RedisRepository
}

func NewRedisRepositoryManager(ctx context.Context, o RedisOptions) (*RedisRepositoryManager, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.Addr, err)
	}

	return &RedisRepositoryManager{rdb: rdb, users: users.NewRedisRepository(rdb, o.Prefix)}, nil
}

func (m *RedisRepositoryManager) Users() users.Repository { return m.users }

func (m *RedisRepositoryManager) Close() error { return m.rdb.Close() }
