package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-search/internal/core/document"
)

const testSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	body       TEXT NOT NULL,
	url        TEXT NOT NULL,
	author     TEXT NOT NULL,
	source     TEXT NOT NULL CHECK (source IN ('qiita_team', 'google_drive', 'onedrive')),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	embedding  vector(768),
	synced_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS users (
	id                    BIGSERIAL PRIMARY KEY,
	username              TEXT NOT NULL UNIQUE,
	email                 TEXT NOT NULL UNIQUE,
	encrypted_qiita_token TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// setupTestPool は TEST_DATABASE_URL が指すデータベースに接続し、
// スキーマ適用とテーブルのクリーンアップを行う。
// 環境変数が未設定の場合はテストをスキップする。
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `TRUNCATE documents; TRUNCATE users RESTART IDENTITY`)
	require.NoError(t, err)

	return pool
}

func testVector(seed float32) []float32 {
	vec := make([]float32, document.EmbeddingDimension)
	vec[0] = seed
	vec[1] = 1
	return vec
}

func testDocument(id, title, body string, embedding []float32) *document.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := &document.Document{
		ID:        id,
		Title:     title,
		Body:      body,
		URL:       "https://example.qiita.com/items/" + id,
		Author:    "yamada",
		Source:    document.SourceQiitaTeam,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if embedding != nil {
		doc.Embedding = mo.Some(embedding)
	}
	return doc
}

func TestDocumentRepository_UpsertOne(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewDocumentRepository(pool)
	ctx := context.Background()

	doc := testDocument("doc-1", "Goのエラーハンドリング", "errors.Is と errors.As の使い分け", testVector(0.5))
	require.NoError(t, repo.UpsertOne(ctx, doc))

	var createdAt time.Time
	require.NoError(t, pool.QueryRow(ctx, `SELECT created_at FROM documents WHERE id = 'doc-1'`).Scan(&createdAt))

	// 再upsertでタイトルは更新され、created_at は保持される
	doc.Title = "Goのエラーハンドリング 改訂版"
	require.NoError(t, repo.UpsertOne(ctx, doc))

	var (
		title   string
		created time.Time
	)
	require.NoError(t, pool.QueryRow(ctx, `SELECT title, created_at FROM documents WHERE id = 'doc-1'`).Scan(&title, &created))
	assert.Equal(t, "Goのエラーハンドリング 改訂版", title)
	assert.True(t, created.Equal(createdAt))
}

func TestDocumentRepository_UpsertBatch_RollsBackOnFailure(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewDocumentRepository(pool)
	ctx := context.Background()

	valid := testDocument("batch-1", "正常なドキュメント", "本文", testVector(0.1))
	invalid := testDocument("batch-2", "不正なドキュメント", "本文", nil)
	invalid.Source = document.Source("unknown_source")

	result := repo.UpsertBatch(ctx, []*document.Document{valid, invalid})
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.InsertedCount)
	assert.Equal(t, 2, result.FailedCount)
	assert.Contains(t, result.Error, "batch-2")

	// 1件目も含めて永続化されていないこと
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestDocumentRepository_UpsertBatch_Success(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewDocumentRepository(pool)
	ctx := context.Background()

	docs := []*document.Document{
		testDocument("batch-1", "一件目", "本文A", testVector(0.1)),
		testDocument("batch-2", "二件目", "本文B", nil),
	}

	result := repo.UpsertBatch(ctx, docs)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.InsertedCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Empty(t, result.Error)
}

func TestDocumentRepository_SearchByVector(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewDocumentRepository(pool)
	ctx := context.Background()

	near := testVector(10)
	far := testVector(-10)
	result := repo.UpsertBatch(ctx, []*document.Document{
		testDocument("vec-near", "近いドキュメント", "本文", near),
		testDocument("vec-far", "遠いドキュメント", "本文", far),
		testDocument("vec-none", "ベクトルなし", "本文", nil),
	})
	require.True(t, result.Success)

	results, err := repo.SearchByVector(ctx, near, 10)
	require.NoError(t, err)

	// embedding を持たない行は対象外
	require.Len(t, results, 2)
	assert.Equal(t, "vec-near", results[0].ID)
	assert.Equal(t, "vec-far", results[1].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestDocumentRepository_SearchByKeyword(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewDocumentRepository(pool)
	ctx := context.Background()

	result := repo.UpsertBatch(ctx, []*document.Document{
		testDocument("kw-1", "postgres tuning guide", "postgres index tips", nil),
		testDocument("kw-2", "weekly report", "nothing relevant here", nil),
		testDocument("kw-3", "postgres basics", "introduction", nil),
	})
	require.True(t, result.Success)

	results, err := repo.SearchByKeyword(ctx, "postgres", 10)
	require.NoError(t, err)

	require.Len(t, results, 2)
	ids := []string{results[0].ID, results[1].ID}
	assert.Contains(t, ids, "kw-1")
	assert.Contains(t, ids, "kw-3")
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestDocumentRepository_Stats(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewDocumentRepository(pool)
	ctx := context.Background()

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalDocuments)
	assert.True(t, stats.LastUpdated.IsAbsent())

	require.NoError(t, repo.UpsertOne(ctx, testDocument("stats-1", "ドキュメント", "本文", nil)))

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.True(t, stats.LastUpdated.IsPresent())
}

func TestUserRepository_CRUD(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	created, err := repo.Create(ctx, "yamada", "yamada@example.com", "encrypted-token")
	require.NoError(t, err)
	assert.Equal(t, "yamada", created.Username)
	assert.Equal(t, "encrypted-token", created.EncryptedQiitaToken)

	// username 重複はエラー
	_, err = repo.Create(ctx, "yamada", "other@example.com", "another-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found.IsPresent())
	assert.Equal(t, created.ID, found.MustGet().ID)

	byName, err := repo.FindByUsername(ctx, "yamada")
	require.NoError(t, err)
	require.True(t, byName.IsPresent())

	missing, err := repo.FindByID(ctx, 9999)
	require.NoError(t, err)
	assert.True(t, missing.IsAbsent())

	updated, err := repo.UpdateToken(ctx, created.ID, "rotated-token")
	require.NoError(t, err)
	assert.Equal(t, "rotated-token", updated.EncryptedQiitaToken)

	_, err = repo.UpdateToken(ctx, 9999, "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
