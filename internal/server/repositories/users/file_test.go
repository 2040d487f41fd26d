package users

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/logging"
	"github.com/zhangleigang/knowledge-api/internal/server/models"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newFileRepo(t *testing.T) (*FileRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "users.json")
	r, err := NewFileRepository(context.Background(), path, logging.NopLogger{})
	require.NoError(t, err)
	r.now = func() time.Time { return t0 }
	return r, path
}

func readContainer(t *testing.T, path string) container {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var c container
	require.NoError(t, json.Unmarshal(b, &c))
	return c
}

func TestNewFileRepository_InitialisesEmptyContainer(t *testing.T) {
	_, path := newFileRepo(t)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[],"nextId":1}`, string(b))
}

func TestNewFileRepository_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users":[{"id":"user_4","openid":"o"}],"nextId":5}`), 0o600))

	r, err := NewFileRepository(context.Background(), path, logging.NopLogger{})
	require.NoError(t, err)

	st, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Stats{TotalUsers: 1, NextID: 5}, st)
}

func TestFileRepository_CreateAssignsSequentialIDs(t *testing.T) {
	r, path := newFileRepo(t)
	ctx := context.Background()

	u1, err := r.Create(ctx, models.NewUser{OpenID: "o-1", SessionKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, "user_1", u1.ID)
	assert.Equal(t, t0, u1.CreateTime)
	assert.Equal(t, t0, u1.LastLoginTime)
	assert.Nil(t, u1.UpdateTime)

	created := t0.Add(-time.Hour)
	u2, err := r.Create(ctx, models.NewUser{OpenID: "o-2", SessionKey: "k2", Phone: "138", CreateTime: created})
	require.NoError(t, err)
	assert.Equal(t, "user_2", u2.ID)
	assert.Equal(t, created, u2.CreateTime)
	assert.Equal(t, "138", u2.Phone)

	c := readContainer(t, path)
	assert.Equal(t, int64(3), c.NextID)
	require.Len(t, c.Users, 2)
	assert.Equal(t, "o-1", c.Users[0].OpenID)
	assert.Equal(t, "o-2", c.Users[1].OpenID)
}

func TestFileRepository_CreateRejectsDuplicateOpenID(t *testing.T) {
	r, path := newFileRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, models.NewUser{OpenID: "dup", SessionKey: "k"})
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = r.Create(ctx, models.NewUser{OpenID: "dup", SessionKey: "k2"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileRepository_Lookups(t *testing.T) {
	r, _ := newFileRepo(t)
	ctx := context.Background()

	u, err := r.Create(ctx, models.NewUser{OpenID: "o-1", SessionKey: "k"})
	require.NoError(t, err)

	got, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.OpenID)

	got, err = r.GetByOpenID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = r.GetByID(ctx, "user_404")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = r.GetByOpenID(ctx, "nobody")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFileRepository_UpdateMergesPatch(t *testing.T) {
	r, _ := newFileRepo(t)
	ctx := context.Background()

	u, err := r.Create(ctx, models.NewUser{OpenID: "o", SessionKey: "old", Phone: "138"})
	require.NoError(t, err)

	later := t0.Add(time.Minute)
	r.now = func() time.Time { return later }

	got, err := r.Update(ctx, u.ID, models.Patch{SessionKey: models.Ptr("new"), LastLoginTime: &later})
	require.NoError(t, err)
	assert.Equal(t, "new", got.SessionKey)
	assert.Equal(t, "138", got.Phone)
	assert.Equal(t, later, got.LastLoginTime)
	require.NotNil(t, got.UpdateTime)
	assert.Equal(t, later, *got.UpdateTime)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.CreateTime, got.CreateTime)

	reloaded, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", reloaded.SessionKey)
}

func TestFileRepository_UpdateUnknownLeavesFileUnchanged(t *testing.T) {
	r, path := newFileRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, models.NewUser{OpenID: "o", SessionKey: "k"})
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	got, err := r.Update(ctx, "user_99", models.Patch{NickName: models.Ptr("X")})
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Nil(t, got)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileRepository_DeleteNeverReusesIDs(t *testing.T) {
	r, _ := newFileRepo(t)
	ctx := context.Background()

	u1, err := r.Create(ctx, models.NewUser{OpenID: "a", SessionKey: "k"})
	require.NoError(t, err)
	_, err = r.Create(ctx, models.NewUser{OpenID: "b", SessionKey: "k"})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, u1.ID))
	assert.ErrorIs(t, r.Delete(ctx, u1.ID), common.ErrNotFound)

	u3, err := r.Create(ctx, models.NewUser{OpenID: "c", SessionKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "user_3", u3.ID)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "user_2", list[0].ID)
	assert.Equal(t, "user_3", list[1].ID)

	st, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{TotalUsers: 2, NextID: 4}, st)
}

func TestFileRepository_ConcurrentCreatesAllPersist(t *testing.T) {
	r, path := newFileRepo(t)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := r.Create(ctx, models.NewUser{OpenID: fmt.Sprintf("o-%d", i), SessionKey: "k"})
			errs[i] = err
			if err == nil {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "duplicate id %s", ids[i])
		seen[ids[i]] = true
	}

	c := readContainer(t, path)
	assert.Len(t, c.Users, n)
	assert.Equal(t, int64(n+1), c.NextID)
}

func TestFileRepository_CorruptFile(t *testing.T) {
	r, path := newFileRepo(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	// Reads degrade to an empty store.
	_, err := r.GetByID(ctx, "user_1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// Writes refuse to clobber the file.
	_, err = r.Create(ctx, models.NewUser{OpenID: "o", SessionKey: "k"})
	assert.ErrorIs(t, err, common.ErrStoreIO)
	_, err = r.Update(ctx, "user_1", models.Patch{})
	assert.ErrorIs(t, err, common.ErrStoreIO)
	assert.ErrorIs(t, r.Delete(ctx, "user_1"), common.ErrStoreIO)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(b))
}

func TestFileRepository_RecreatesRemovedFile(t *testing.T) {
	r, path := newFileRepo(t)
	ctx := context.Background()

	require.NoError(t, os.Remove(path))

	st, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{TotalUsers: 0, NextID: 1}, st)
	assert.FileExists(t, path)
}

func TestFileRepository_ReopenSeesData(t *testing.T) {
	r, path := newFileRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, models.NewUser{OpenID: "o", SessionKey: "k"})
	require.NoError(t, err)

	r2, err := NewFileRepository(ctx, path, logging.NopLogger{})
	require.NoError(t, err)
	got, err := r2.GetByOpenID(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, "user_1", got.ID)
}

func TestFileRepository_NoTempFilesLeft(t *testing.T) {
	r, path := newFileRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Create(ctx, models.NewUser{OpenID: fmt.Sprint(i), SessionKey: "k"})
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "users.json", entries[0].Name())
}
