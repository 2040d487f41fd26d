package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/filex"
	"github.com/zhangleigang/knowledge-api/internal/logging"
	"github.com/zhangleigang/knowledge-api/internal/server/models"
)

// container is the on-disk document. It is always read and written whole.
type container struct {
	Users  []models.User `json:"users"`
	NextID int64         `json:"nextId"`
}

func emptyContainer() *container {
	return &container{Users: []models.User{}, NextID: 1}
}

// FileRepository keeps every user in a single JSON file.
//
// Each operation reloads the file, so edits made by the admin tool are seen
// by a running server. mu serialises read-modify-write cycles inside this
// process; two processes writing the same file can still lose updates.
type FileRepository struct {
	path   string
	logger logging.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewFileRepository opens the store at path, creating the parent directory
// and an empty container when the file does not exist yet.
func NewFileRepository(ctx context.Context, path string, logger logging.Logger) (*FileRepository, error) {
	r := &FileRepository{
		path:   path,
		logger: logger.With("module", "user_store", "backend", "file"),
		now:    time.Now,
	}

	if _, err := filex.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreIO, err)
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := r.save(emptyContainer()); err != nil {
			return nil, err
		}
		r.logger.Info(ctx, "user data file created", "path", path)
	}

	return r, nil
}

// load reads and decodes the container. A file removed behind our back is
// recreated empty, as on first use.
func (r *FileRepository) load() (*container, error) {
	b, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		c := emptyContainer()
		if err := r.save(c); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", common.ErrStoreIO, r.path, err)
	}

	c := &container{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", common.ErrStoreIO, r.path, err)
	}
	if c.Users == nil {
		c.Users = []models.User{}
	}
	if c.NextID < 1 {
		c.NextID = 1
	}

	return c, nil
}

// view is load for read-only paths: an unreadable file is logged and served
// as an empty store instead of failing the request.
func (r *FileRepository) view(ctx context.Context) *container {
	c, err := r.load()
	if err != nil {
		r.logger.Error(ctx, "user data unreadable, serving empty view", "path", r.path, "error", err)
		return emptyContainer()
	}
	return c
}

// save replaces the file atomically.
func (r *FileRepository) save(c *container) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", common.ErrStoreIO, err)
	}

	if err := filex.WriteFileAtomic(r.path, b, ".users-*.tmp"); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreIO, err)
	}

	return nil
}

func (c *container) indexByID(id string) int {
	for i := range c.Users {
		if c.Users[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.view(ctx)
	if i := c.indexByID(id); i >= 0 {
		u := c.Users[i]
		return &u, nil
	}
	return nil, common.ErrNotFound
}

func (r *FileRepository) GetByOpenID(ctx context.Context, openID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.view(ctx)
	for _, u := range c.Users {
		if u.OpenID == openID {
			return &u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *FileRepository) Create(ctx context.Context, nu models.NewUser) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.load()
	if err != nil {
		return nil, err
	}

	for _, u := range c.Users {
		if u.OpenID == nu.OpenID {
			return nil, fmt.Errorf("openid %q: %w", nu.OpenID, common.ErrAlreadyExists)
		}
	}

	now := r.now()
	createTime := nu.CreateTime
	if createTime.IsZero() {
		createTime = now
	}

	u := models.User{
		ID:            FormatID(c.NextID),
		OpenID:        nu.OpenID,
		SessionKey:    nu.SessionKey,
		Phone:         nu.Phone,
		CreateTime:    createTime,
		LastLoginTime: now,
	}
	c.Users = append(c.Users, u)
	c.NextID++

	if err := r.save(c); err != nil {
		return nil, err
	}

	r.logger.Info(ctx, "user created", "user_id", u.ID)
	return &u, nil
}

func (r *FileRepository) Update(ctx context.Context, id string, p models.Patch) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.load()
	if err != nil {
		return nil, err
	}

	i := c.indexByID(id)
	if i < 0 {
		return nil, common.ErrNotFound
	}

	p.Apply(&c.Users[i], r.now())

	if err := r.save(c); err != nil {
		return nil, err
	}

	r.logger.Debug(ctx, "user updated", "user_id", id)
	u := c.Users[i]
	return &u, nil
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.load()
	if err != nil {
		return err
	}

	i := c.indexByID(id)
	if i < 0 {
		return common.ErrNotFound
	}
	c.Users = append(c.Users[:i], c.Users[i+1:]...)

	if err := r.save(c); err != nil {
		return err
	}

	r.logger.Info(ctx, "user deleted", "user_id", id)
	return nil
}

func (r *FileRepository) List(ctx context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.view(ctx).Users, nil
}

func (r *FileRepository) Stats(ctx context.Context) (models.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.view(ctx)
	return models.Stats{TotalUsers: len(c.Users), NextID: c.NextID}, nil
}
