package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/kb-search/internal/core/user"
)

// UserRepository はユーザーの永続化を PostgreSQL 上で行う。
type UserRepository struct {
	pool *pgxpool.Pool
}

var _ user.Repository = (*UserRepository)(nil)

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, email, encrypted_qiita_token, created_at, updated_at`

// Create は新規ユーザーを作成する。username/email の一意制約違反はエラーとなる。
func (r *UserRepository) Create(ctx context.Context, username, email, encryptedToken string) (*user.User, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (username, email, encrypted_qiita_token)
VALUES ($1, $2, $3)
RETURNING `+userColumns,
		username, email, encryptedToken,
	)

	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("user %s already exists: %w", username, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// FindByID はIDでユーザーを検索する。見つからない場合は None を返す。
func (r *UserRepository) FindByID(ctx context.Context, id int64) (mo.Option[*user.User], error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return findOne(row)
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合は None を返す。
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (mo.Option[*user.User], error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return findOne(row)
}

// UpdateToken は暗号化済みトークンを更新する。対象ユーザーが存在しない場合はエラー。
func (r *UserRepository) UpdateToken(ctx context.Context, id int64, encryptedToken string) (*user.User, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE users
SET encrypted_qiita_token = $2, updated_at = CURRENT_TIMESTAMP
WHERE id = $1
RETURNING `+userColumns,
		id, encryptedToken,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d not found", id)
		}
		return nil, fmt.Errorf("failed to update token: %w", err)
	}
	return u, nil
}

func findOne(row pgx.Row) (mo.Option[*user.User], error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*user.User](), nil
		}
		return mo.None[*user.User](), fmt.Errorf("failed to find user: %w", err)
	}
	return mo.Some(u), nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.EncryptedQiitaToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
