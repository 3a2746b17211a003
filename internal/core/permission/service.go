package permission

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/mo"

	"github.com/jinford/kb-search/internal/core/search"
)

// ErrUserNotFound はユーザーまたはトークンが見つからない場合のエラー
// このエラーだけはリクエスト全体の失敗として呼び出し側に伝播する
var ErrUserNotFound = errors.New("user not found or token not available")

// TokenResolver はユーザーの復号化済み外部サービストークンを解決する
type TokenResolver interface {
	// DecryptedToken はユーザーが存在しない場合 None を返す
	DecryptedToken(ctx context.Context, userID int64) (mo.Option[string], error)
}

// AccessChecker は取得元サービスへのバッチ権限チェックを提供する
type AccessChecker interface {
	// CheckBatchAccess はアクセス可能なドキュメントIDの集合を返す
	CheckBatchAccess(ctx context.Context, documentIDs []string) (map[string]struct{}, error)
}

// CheckerFactory はユーザーのトークンにスコープされた AccessChecker を作成する
type CheckerFactory interface {
	ForToken(token string) AccessChecker
}

// Service は検索結果の権限フィルタリングを提供する
//
// 権限の正解データは取得元サービス側の最新状態（チーム所属や記事の
// 公開範囲はこのシステムのコピーと独立に変わりうる）であり、キャッシュや
// 静的な権限テーブルは使わず毎回ライブで照会する
type Service struct {
	resolver TokenResolver
	factory  CheckerFactory
	logger   *slog.Logger
}

// Option は Service のオプション設定
type Option func(*Service)

// WithLogger はロガーを上書きする
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(resolver TokenResolver, factory CheckerFactory, opts ...Option) *Service {
	s := &Service{
		resolver: resolver,
		factory:  factory,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FilterByPermissions はユーザーの権限に基づいて検索結果をフィルタリングする
// 元の並び順とスコアを含む全フィールドを保持する
//
// エラーの扱いは非対称:
//   - ユーザー不在は ErrUserNotFound として必ず返す（「ユーザーが無効」と
//     「アクセス可能なドキュメントがない」を区別するため）
//   - 権限チェック自体の失敗はすべて空リストに倒す（deny-by-default）
func (s *Service) FilterByPermissions(ctx context.Context, userID int64, results []*search.ScoredSearchResult) ([]*search.ScoredSearchResult, error) {
	token, err := s.resolver.DecryptedToken(ctx, userID)
	if err != nil {
		// トークン解決のインフラ障害。可視性が不明なものは隠す
		s.logger.Error("permission filtering failed: token resolution error",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()))
		return []*search.ScoredSearchResult{}, nil
	}

	tokenValue, ok := token.Get()
	if !ok {
		return nil, ErrUserNotFound
	}

	// 検索結果が空の場合は外部呼び出しなしで即返す
	if len(results) == 0 {
		return []*search.ScoredSearchResult{}, nil
	}

	checker := s.factory.ForToken(tokenValue)

	documentIDs := make([]string, 0, len(results))
	for _, r := range results {
		documentIDs = append(documentIDs, r.ID)
	}

	accessibleIDs, err := checker.CheckBatchAccess(ctx, documentIDs)
	if err != nil {
		s.logger.Error("permission filtering failed: batch access check error",
			slog.Int64("userID", userID),
			slog.Int("documents", len(documentIDs)),
			slog.String("error", err.Error()))
		return []*search.ScoredSearchResult{}, nil
	}

	filtered := make([]*search.ScoredSearchResult, 0, len(results))
	for _, r := range results {
		if _, ok := accessibleIDs[r.ID]; ok {
			filtered = append(filtered, r)
		}
	}

	return filtered, nil
}
