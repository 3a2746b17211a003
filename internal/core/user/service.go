package user

import (
	"context"
	"fmt"

	"github.com/samber/mo"
)

// Repository はユーザーのデータアクセスを提供するインターフェース
type Repository interface {
	// Create は新規ユーザーを作成する（username/emailの重複はエラー）
	Create(ctx context.Context, username, email, encryptedToken string) (*User, error)

	// FindByID はIDでユーザーを検索する。見つからない場合は None
	FindByID(ctx context.Context, id int64) (mo.Option[*User], error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合は None
	FindByUsername(ctx context.Context, username string) (mo.Option[*User], error)

	// UpdateToken は暗号化済みトークンを更新する。対象が存在しない場合はエラー
	UpdateToken(ctx context.Context, id int64, encryptedToken string) (*User, error)
}

// Encryptor はトークンの暗号化・復号化を提供するインターフェース
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Service はユーザー管理とトークン解決のビジネスロジックを提供する
type Service struct {
	repo      Repository
	encryptor Encryptor
}

// NewService は新しい Service を作成する
func NewService(repo Repository, encryptor Encryptor) *Service {
	return &Service{
		repo:      repo,
		encryptor: encryptor,
	}
}

// Create はQiitaトークンを暗号化して新規ユーザーを作成する
func (s *Service) Create(ctx context.Context, params CreateParams) (*User, error) {
	if params.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if params.QiitaToken == "" {
		return nil, fmt.Errorf("qiita token is required")
	}

	encryptedToken, err := s.encryptor.Encrypt(params.QiitaToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt token: %w", err)
	}

	created, err := s.repo.Create(ctx, params.Username, params.Email, encryptedToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

// FindByUsername はユーザー名でユーザーを検索する
func (s *Service) FindByUsername(ctx context.Context, username string) (mo.Option[*User], error) {
	return s.repo.FindByUsername(ctx, username)
}

// UpdateToken は新しいQiitaトークンを暗号化して保存する
func (s *Service) UpdateToken(ctx context.Context, userID int64, newToken string) (*User, error) {
	if newToken == "" {
		return nil, fmt.Errorf("qiita token is required")
	}

	encryptedToken, err := s.encryptor.Encrypt(newToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt token: %w", err)
	}

	updated, err := s.repo.UpdateToken(ctx, userID, encryptedToken)
	if err != nil {
		return nil, fmt.Errorf("failed to update token: %w", err)
	}

	return updated, nil
}

// DecryptedToken はユーザーの復号化済みQiitaトークンを返す
// ユーザーが存在しない場合は None を返す
// permission.TokenResolver の実装
func (s *Service) DecryptedToken(ctx context.Context, userID int64) (mo.Option[string], error) {
	found, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return mo.None[string](), fmt.Errorf("failed to find user: %w", err)
	}

	u, ok := found.Get()
	if !ok {
		return mo.None[string](), nil
	}

	token, err := s.encryptor.Decrypt(u.EncryptedQiitaToken)
	if err != nil {
		return mo.None[string](), fmt.Errorf("failed to decrypt token: %w", err)
	}

	return mo.Some(token), nil
}
