// Package users implements the identity store: the durable mapping from a
// provider openid to a local user record. Three backends share one
// Repository contract: a whole-file JSON container, PostgreSQL and Redis.
package users

import (
	"context"
	"strconv"

	"github.com/zhangleigang/knowledge-api/internal/server/models"
)

// Repository is the identity store contract.
//
// Lookups return common.ErrNotFound when no record matches. Create rejects
// a second record for an existing openid with common.ErrAlreadyExists.
// Update and Delete of an unknown id return common.ErrNotFound and leave
// the store untouched. Backend failures wrap common.ErrStoreIO.
type Repository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByOpenID(ctx context.Context, openID string) (*models.User, error)
	Create(ctx context.Context, nu models.NewUser) (*models.User, error)
	Update(ctx context.Context, id string, p models.Patch) (*models.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.User, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// FormatID renders the n-th user id.
func FormatID(n int64) string {
	return "user_" + strconv.FormatInt(n, 10)
}
