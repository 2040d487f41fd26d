package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/server/models"
)

// Key layout, relative to the configured prefix. Every key carries the
// {users} hash tag so a cluster keeps them in one slot, which the create
// script and the WATCH transactions need.
//
//	{users}:user:<id>        JSON-encoded models.User
//	{users}:openid:<openid>  id of the user owning that openid
//	{users}:ids              sorted set of ids scored by sequence number
//	{users}:next             last sequence number handed out
const (
	hashTag   = "{users}:"
	keyUser   = "user:"
	keyOpenID = "openid:"
	keyIDs    = "ids"
	keyNext   = "next"
)

const maxTxRetries = 8

// createScript stores a record whose id was drawn beforehand with INCR.
// KEYS: openid index, user record, id set. ARGV: user JSON, id, sequence.
// It returns 0 without writing when the openid is already taken.
var createScript = redis.NewScript(`
  if redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
  end
  redis.call('SET', KEYS[2], ARGV[1])
  redis.call('SET', KEYS[1], ARGV[2])
  redis.call('ZADD', KEYS[3], ARGV[3], ARGV[2])
  return 1
`)

// RedisRepository keeps users in Redis under a key prefix.
//
// Ids come from INCR on the next key before the record is written, so a
// create that loses a race for the same openid leaves a gap in the
// sequence, as a failed insert does with the postgres sequence. Ids are
// never reused.
type RedisRepository struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRepository(rdb redis.UniversalClient, prefix string) *RedisRepository {
	return &RedisRepository{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *RedisRepository) key(parts ...string) string {
	return r.prefix + hashTag + strings.Join(parts, "")
}

func storeErr(err error) error {
	return fmt.Errorf("%w: redis error: %v", common.ErrStoreIO, err)
}

func (r *RedisRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, r.rdb, id)
}

func (r *RedisRepository) get(ctx context.Context, c redis.Cmdable, id string) (*models.User, error) {
	b, err := c.Get(ctx, r.key(keyUser, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}

	u := &models.User{}
	if err := json.Unmarshal(b, u); err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func (r *RedisRepository) GetByOpenID(ctx context.Context, openID string) (*models.User, error) {
	id, err := r.rdb.Get(ctx, r.key(keyOpenID, openID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return r.GetByID(ctx, id)
}

func (r *RedisRepository) Create(ctx context.Context, nu models.NewUser) (*models.User, error) {
	now := r.now()
	u := models.User{
		OpenID:        nu.OpenID,
		SessionKey:    nu.SessionKey,
		Phone:         nu.Phone,
		CreateTime:    nu.CreateTime,
		LastLoginTime: now,
	}
	if u.CreateTime.IsZero() {
		u.CreateTime = now
	}

	openIDKey := r.key(keyOpenID, nu.OpenID)

	// Cheap pre-check so plain duplicates do not burn an id.
	taken, err := r.rdb.Exists(ctx, openIDKey).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	if taken > 0 {
		return nil, fmt.Errorf("openid %q: %w", nu.OpenID, common.ErrAlreadyExists)
	}

	n, err := r.rdb.Incr(ctx, r.key(keyNext)).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	u.ID = FormatID(n)

	b, err := json.Marshal(u)
	if err != nil {
		return nil, storeErr(err)
	}

	keys := []string{openIDKey, r.key(keyUser, u.ID), r.key(keyIDs)}
	ok, err := createScript.Run(ctx, r.rdb, keys, b, u.ID, n).Int64()
	if err != nil {
		return nil, storeErr(err)
	}
	if ok == 0 {
		return nil, fmt.Errorf("openid %q: %w", nu.OpenID, common.ErrAlreadyExists)
	}

	return &u, nil
}

// Update is an optimistic read-modify-write guarded by WATCH on the record.
func (r *RedisRepository) Update(ctx context.Context, id string, p models.Patch) (*models.User, error) {
	key := r.key(keyUser, id)
	var updated *models.User

	txf := func(tx *redis.Tx) error {
		u, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}

		p.Apply(u, r.now())
		b, err := json.Marshal(u)
		if err != nil {
			return storeErr(err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		if err != nil {
			return err
		}

		updated = u
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrStoreIO) {
			return nil, err
		}
		return nil, storeErr(err)
	}

	return nil, fmt.Errorf("%w: update of %s kept conflicting", common.ErrStoreIO, id)
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	key := r.key(keyUser, id)

	txf := func(tx *redis.Tx) error {
		u, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, r.key(keyOpenID, u.OpenID))
			pipe.ZRem(ctx, r.key(keyIDs), id)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrStoreIO) {
			return err
		}
		return storeErr(err)
	}

	return fmt.Errorf("%w: delete of %s kept conflicting", common.ErrStoreIO, id)
}

func (r *RedisRepository) List(ctx context.Context) ([]models.User, error) {
	ids, err := r.rdb.ZRange(ctx, r.key(keyIDs), 0, -1).Result()
	if err != nil {
		return nil, storeErr(err)
	}

	list := []models.User{}
	if len(ids) == 0 {
		return list, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(keyUser, id)
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeErr(err)
	}

	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var u models.User
		if err := json.Unmarshal([]byte(s), &u); err != nil {
			return nil, storeErr(err)
		}
		list = append(list, u)
	}

	return list, nil
}

func (r *RedisRepository) Stats(ctx context.Context) (models.Stats, error) {
	pipe := r.rdb.Pipeline()
	card := pipe.ZCard(ctx, r.key(keyIDs))
	next := pipe.Get(ctx, r.key(keyNext))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return models.Stats{}, storeErr(err)
	}

	last, err := next.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Stats{}, storeErr(err)
	}

	return models.Stats{TotalUsers: int(card.Val()), NextID: last + 1}, nil
}
