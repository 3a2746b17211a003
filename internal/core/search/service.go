package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jinford/kb-search/internal/core/document"
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	// semanticWeight / keywordWeight はハイブリッドマージの固定重み
	// 両方の検索にヒットしたドキュメントは重み付きスコアの合算になる
	semanticWeight = 0.6
	keywordWeight  = 0.4

	// semanticLimit はセマンティック検索の取得上限
	semanticLimit = 50
	// keywordLimit はキーワード検索の取得上限
	keywordLimit = 100
)

// Service は検索のビジネスロジックを提供する
type Service struct {
	repo     Repository
	embedder Embedder
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
func NewService(repo Repository, embedder Embedder, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SemanticSearch はpgvectorのコサイン類似度によるセマンティック検索を実行する
//
// エラーを返さない点が意図的な設計: Embedding生成やストア照会が失敗した
// 場合は空リストに縮退する。セマンティック側の障害が検索リクエスト全体を
// 落とすことはない（キーワード検索へのフォールバックは呼び出し側が担う）
func (s *Service) SemanticSearch(ctx context.Context, query string) []*ScoredSearchResult {
	if strings.TrimSpace(query) == "" {
		return []*ScoredSearchResult{}
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("semantic search degraded: embedding generation failed",
			slog.String("error", err.Error()))
		return []*ScoredSearchResult{}
	}

	results, err := s.repo.SearchByVector(ctx, queryVector, semanticLimit)
	if err != nil {
		s.logger.Warn("semantic search degraded: vector query failed",
			slog.String("error", err.Error()))
		return []*ScoredSearchResult{}
	}

	return results
}

// KeywordSearch はpg_trgmのトライグラム類似度によるキーワード検索を実行する
// キーワード検索には縮退先がないため、ストアのエラーはそのまま返す
func (s *Service) KeywordSearch(ctx context.Context, query string) ([]*ScoredSearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []*ScoredSearchResult{}, nil
	}

	results, err := s.repo.SearchByKeyword(ctx, query, keywordLimit)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	return results, nil
}

// HybridSearch はセマンティック検索とキーワード検索を並行実行してマージする
//
// マージはドキュメントID単位: semantic×0.6 + keyword×0.4 を合算する。
// 両方にヒットしたドキュメントは両方の寄与を受け取る（独立した2つの
// 関連度シグナルの一致を単独ヒットより強い指標として扱う）
func (s *Service) HybridSearch(ctx context.Context, query string) ([]*ScoredSearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []*ScoredSearchResult{}, nil
	}

	// セマンティック検索とキーワード検索を並行実行
	// 片方の失敗がもう片方を中断しないよう、それぞれ独立させる
	type keywordResult struct {
		results []*ScoredSearchResult
		err     error
	}

	semanticCh := make(chan []*ScoredSearchResult, 1)
	keywordCh := make(chan keywordResult, 1)

	go func() {
		semanticCh <- s.SemanticSearch(ctx, query)
	}()

	go func() {
		results, err := s.KeywordSearch(ctx, query)
		keywordCh <- keywordResult{results: results, err: err}
	}()

	semanticResults := <-semanticCh
	keywordRes := <-keywordCh

	if keywordRes.err != nil {
		return nil, keywordRes.err
	}

	return mergeResults(semanticResults, keywordRes.results), nil
}

// SearchDocuments はスコアなしのキーワード検索を実行する（後方互換API）
func (s *Service) SearchDocuments(ctx context.Context, query string) ([]*document.SearchResult, error) {
	scored, err := s.KeywordSearch(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]*document.SearchResult, 0, len(scored))
	for _, r := range scored {
		results = append(results, r.Unscored())
	}
	return results, nil
}

// mergeResults は2つの結果リストをID単位で重み付きマージし、スコア降順に並べる
// 同スコアはID昇順で安定化する
func mergeResults(semantic, keyword []*ScoredSearchResult) []*ScoredSearchResult {
	merged := make(map[string]*ScoredSearchResult, len(semantic)+len(keyword))

	for _, r := range semantic {
		entry := *r
		entry.Score = r.Score * semanticWeight
		merged[r.ID] = &entry
	}

	for _, r := range keyword {
		if existing, ok := merged[r.ID]; ok {
			existing.Score += r.Score * keywordWeight
			continue
		}
		entry := *r
		entry.Score = r.Score * keywordWeight
		merged[r.ID] = &entry
	}

	results := make([]*ScoredSearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results
}
