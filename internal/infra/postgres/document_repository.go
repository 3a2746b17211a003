package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/kb-search/internal/core/document"
	"github.com/jinford/kb-search/internal/core/search"
	"github.com/jinford/kb-search/internal/core/syncer"
)

var (
	_ search.Repository = (*DocumentRepository)(nil)
	_ syncer.Store      = (*DocumentRepository)(nil)
)

// DocumentRepository はドキュメントの永続化と検索を PostgreSQL 上で行う。
// ベクトル検索は pgvector のコサイン距離、キーワード検索は pg_trgm の
// similarity に依存する。
type DocumentRepository struct {
	pool *pgxpool.Pool
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

const upsertDocumentQuery = `
INSERT INTO documents (id, title, body, url, author, source, created_at, updated_at, embedding, synced_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
ON CONFLICT (id) DO UPDATE SET
	title      = EXCLUDED.title,
	body       = EXCLUDED.body,
	url        = EXCLUDED.url,
	author     = EXCLUDED.author,
	source     = EXCLUDED.source,
	updated_at = EXCLUDED.updated_at,
	embedding  = EXCLUDED.embedding,
	synced_at  = CURRENT_TIMESTAMP
`

// UpsertOne はドキュメントを 1 件挿入または更新する。
// 既存行の created_at は保持される。
func (r *DocumentRepository) UpsertOne(ctx context.Context, doc *document.Document) error {
	_, err := r.pool.Exec(ctx, upsertDocumentQuery, upsertArgs(doc)...)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// UpsertBatch は複数ドキュメントを単一トランザクションで挿入または更新する。
// 1 件でも失敗した場合は全件ロールバックし、Success=false の結果を返す。
// エラーは結果構造体に文字列として畳み込み、Go のエラーとしては返さない。
func (r *DocumentRepository) UpsertBatch(ctx context.Context, docs []*document.Document) document.BatchUpsertResult {
	if len(docs) == 0 {
		return document.BatchUpsertResult{Success: true}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return document.BatchUpsertResult{
			FailedCount: len(docs),
			Error:       fmt.Sprintf("failed to begin transaction: %v", err),
		}
	}
	defer tx.Rollback(ctx)

	for _, doc := range docs {
		if _, err := tx.Exec(ctx, upsertDocumentQuery, upsertArgs(doc)...); err != nil {
			return document.BatchUpsertResult{
				FailedCount: len(docs),
				Error:       fmt.Sprintf("failed to upsert document %s: %v", doc.ID, err),
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return document.BatchUpsertResult{
			FailedCount: len(docs),
			Error:       fmt.Sprintf("failed to commit transaction: %v", err),
		}
	}

	return document.BatchUpsertResult{
		Success:       true,
		InsertedCount: len(docs),
	}
}

func upsertArgs(doc *document.Document) []any {
	var embedding any
	if vec, ok := doc.Embedding.Get(); ok {
		embedding = pgvector.NewVector(vec)
	}
	return []any{
		doc.ID,
		doc.Title,
		doc.Body,
		doc.URL,
		doc.Author,
		string(doc.Source),
		doc.CreatedAt,
		doc.UpdatedAt,
		embedding,
	}
}

const searchByVectorQuery = `
SELECT id, title, url, author, updated_at, source,
       1 - (embedding <=> $1) AS score
FROM documents
WHERE embedding IS NOT NULL
ORDER BY embedding <=> $1
LIMIT $2
`

// SearchByVector はクエリベクトルとのコサイン類似度が高い順に検索する。
// embedding を持たない行は対象外。
func (r *DocumentRepository) SearchByVector(ctx context.Context, vec []float32, limit int) ([]*search.ScoredSearchResult, error) {
	rows, err := r.pool.Query(ctx, searchByVectorQuery, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer rows.Close()

	return scanScoredResults(rows)
}

const searchByKeywordQuery = `
SELECT id, title, url, author, updated_at, source,
       similarity(title, $1) + similarity(body, $1) AS score
FROM documents
WHERE title ILIKE '%' || $1 || '%' OR body ILIKE '%' || $1 || '%'
ORDER BY score DESC, updated_at DESC
LIMIT $2
`

// SearchByKeyword はタイトルおよび本文の trigram 類似度で検索する。
// ILIKE による部分一致を前提条件とし、スコアは両カラムの similarity の和。
func (r *DocumentRepository) SearchByKeyword(ctx context.Context, query string, limit int) ([]*search.ScoredSearchResult, error) {
	rows, err := r.pool.Query(ctx, searchByKeywordQuery, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute keyword search: %w", err)
	}
	defer rows.Close()

	return scanScoredResults(rows)
}

func scanScoredResults(rows pgx.Rows) ([]*search.ScoredSearchResult, error) {
	results := make([]*search.ScoredSearchResult, 0)
	for rows.Next() {
		var (
			res    search.ScoredSearchResult
			source string
		)
		if err := rows.Scan(&res.ID, &res.Title, &res.URL, &res.Author, &res.UpdatedAt, &source, &res.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		res.Source = document.Source(source)
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}
	return results, nil
}

// Stats はドキュメント総数と最終同期時刻を返す。
// ドキュメントが 0 件のとき LastUpdated は None となる。
func (r *DocumentRepository) Stats(ctx context.Context) (document.Stats, error) {
	var (
		total       int
		lastUpdated *time.Time
	)
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), MAX(synced_at) FROM documents`).Scan(&total, &lastUpdated)
	if err != nil {
		return document.Stats{}, fmt.Errorf("failed to fetch document stats: %w", err)
	}

	stats := document.Stats{TotalDocuments: total}
	if lastUpdated != nil {
		stats.LastUpdated = mo.Some(*lastUpdated)
	}
	return stats, nil
}
