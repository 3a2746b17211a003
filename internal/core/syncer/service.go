package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/kb-search/internal/core/document"
)

// Fetcher は取得元の全記事を取得するインターフェース
type Fetcher interface {
	FetchAllArticles(ctx context.Context) ([]Article, error)
}

// Embedder はテキストのEmbedding生成インターフェース
// リトライ・ペーシングはアダプタ側の責務
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store はドキュメントのバッチ永続化インターフェース
type Store interface {
	// UpsertBatch は全件を単一トランザクションでupsertする
	// 一部でも失敗した場合は全件ロールバックし、Success=false の結果を返す
	UpsertBatch(ctx context.Context, docs []*document.Document) document.BatchUpsertResult
}

// Service は1同期サイクルの取り込み処理を提供する
type Service struct {
	fetcher  Fetcher
	embedder Embedder
	store    Store
	source   document.Source
	logger   *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithServiceLogger はロガーを上書きする
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(fetcher Fetcher, embedder Embedder, store Store, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher:  fetcher,
		embedder: embedder,
		store:    store,
		source:   document.SourceQiitaTeam,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run は1同期サイクルを実行する
//
// Embedding生成は記事ごとに独立して試行し、失敗した記事はベクトルなしで
// 続行する（1記事の失敗がサイクルを止めない）。対して永続化は全記事を
// 1トランザクションで書き込み、失敗時はサイクル全体をロールバックする。
// 部分的な書き込みはEmbedding欠落より有害と判断した非対称設計
func (s *Service) Run(ctx context.Context) (*SyncJobResult, error) {
	startedAt := time.Now()

	articles, err := s.fetcher.FetchAllArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch articles: %w", err)
	}

	s.logger.Info("fetched articles", slog.Int("count", len(articles)))

	var errs []string
	docs := make([]*document.Document, 0, len(articles))
	for _, article := range articles {
		doc := s.toDocument(article)

		// レート制限を尊重するため、Embedding生成は逐次実行する
		vector, err := s.embedder.Embed(ctx, embeddingText(article))
		if err != nil {
			s.logger.Warn("embedding generation failed, syncing without vector",
				slog.String("articleID", article.ID),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Sprintf("embedding failed for %s: %v", article.ID, err))
		} else {
			doc.Embedding = mo.Some(vector)
		}

		docs = append(docs, doc)
	}

	// 全件を単一トランザクションで永続化（all-or-nothing）
	batchResult := s.store.UpsertBatch(ctx, docs)
	if batchResult.Error != "" {
		errs = append(errs, batchResult.Error)
	}

	completedAt := time.Now()
	result := &SyncJobResult{
		ID:          uuid.New(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Success:     batchResult.Success,
		SyncedCount: batchResult.InsertedCount,
		FailedCount: batchResult.FailedCount,
		Errors:      errs,
		Duration:    completedAt.Sub(startedAt),
	}

	s.logger.Info("sync cycle finished",
		slog.Bool("success", result.Success),
		slog.Int("synced", result.SyncedCount),
		slog.Int("failed", result.FailedCount),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", result.Duration))

	return result, nil
}

func (s *Service) toDocument(article Article) *document.Document {
	author := article.AuthorName
	if author == "" {
		author = article.AuthorID
	}
	return &document.Document{
		ID:        article.ID,
		Title:     article.Title,
		Body:      article.Body,
		URL:       article.URL,
		Author:    author,
		Source:    s.source,
		CreatedAt: article.CreatedAt,
		UpdatedAt: article.UpdatedAt,
		Embedding: mo.None[[]float32](),
	}
}

// embeddingText はEmbedding対象のテキストを組み立てる
func embeddingText(article Article) string {
	return article.Title + "\n\n" + article.Body
}
