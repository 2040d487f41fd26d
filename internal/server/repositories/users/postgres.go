package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/dbx"
	"github.com/zhangleigang/knowledge-api/internal/server/models"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const userColumns = `id, openid, session_key, phone, nick_name, avatar_url, create_time, last_login_time, update_time`

// PostgresRepository stores users in the users table created by the
// embedded migrations. Ids come from the user_id_seq sequence.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	var (
		u                       models.User
		phone, nickName, avatar sql.NullString
		updateTime              sql.NullTime
	)
	err := row.Scan(&u.ID, &u.OpenID, &u.SessionKey, &phone, &nickName, &avatar,
		&u.CreateTime, &u.LastLoginTime, &updateTime)
	if err != nil {
		return nil, err
	}
	u.Phone = phone.String
	u.NickName = nickName.String
	u.AvatarURL = avatar.String
	if updateTime.Valid {
		t := updateTime.Time
		u.UpdateTime = &t
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func getOne(ctx context.Context, db dbx.DBTX, query string, args ...any) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: db error: %v", common.ErrStoreIO, err)
	}
	return u, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return getOne(ctx, r.db, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByOpenID(ctx context.Context, openID string) (*models.User, error) {
	return getOne(ctx, r.db, `SELECT `+userColumns+` FROM users WHERE openid = $1`, openID)
}

func (r *PostgresRepository) Create(ctx context.Context, nu models.NewUser) (*models.User, error) {
	now := r.now()
	createTime := nu.CreateTime
	if createTime.IsZero() {
		createTime = now
	}

	query :=
		`WITH n AS (SELECT nextval('user_id_seq') AS v)
		 INSERT INTO users (id, seq, openid, session_key, phone, create_time, last_login_time)
		 SELECT 'user_' || n.v, n.v, $1, $2, $3, $4, $5 FROM n
		 RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query,
		nu.OpenID, nu.SessionKey, nullString(nu.Phone), createTime, now))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("openid %q: %w", nu.OpenID, common.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("%w: db error: %v", common.ErrStoreIO, err)
	}

	return u, nil
}

// Update locks the row, merges the patch in Go and writes every mutable
// column back, so the merge rules are the same as for the file backend.
func (r *PostgresRepository) Update(ctx context.Context, id string, p models.Patch) (*models.User, error) {
	var updated *models.User

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := getOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}

		p.Apply(u, r.now())

		_, err = tx.ExecContext(ctx,
			`UPDATE users
			 SET session_key = $2, phone = $3, nick_name = $4, avatar_url = $5,
			     last_login_time = $6, update_time = $7
			 WHERE id = $1`,
			u.ID, u.SessionKey, nullString(u.Phone), nullString(u.NickName), nullString(u.AvatarURL),
			u.LastLoginTime, *u.UpdateTime)
		if err != nil {
			return fmt.Errorf("%w: db error: %v", common.ErrStoreIO, err)
		}

		updated = u
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrStoreIO):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: db error: %v", common.ErrStoreIO, err)
	}

	return updated, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	n, err := dbx.RowsAffected(r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id))
	if err != nil {
		return fmt.Errorf("%w: db error: %v", common.ErrStoreIO, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: db error: %v", common.ErrStoreIO, err)
	}
	defer rows.Close()

	list := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: db error: %v", common.ErrStoreIO, err)
		}
		list = append(list, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: db error: %v", common.ErrStoreIO, err)
	}

	return list, nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (models.Stats, error) {
	query :=
		`SELECT (SELECT count(*) FROM users),
		        (SELECT CASE WHEN is_called THEN last_value + 1 ELSE last_value END FROM user_id_seq)`

	var st models.Stats
	if err := r.db.QueryRowContext(ctx, query).Scan(&st.TotalUsers, &st.NextID); err != nil {
		return models.Stats{}, fmt.Errorf("%w: db error: %v", common.ErrStoreIO, err)
	}
	return st, nil
}
