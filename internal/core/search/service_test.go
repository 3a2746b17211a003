package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-search/internal/core/document"
)

type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

type stubRepo struct {
	vectorResults  []*ScoredSearchResult
	vectorErr      error
	keywordResults []*ScoredSearchResult
	keywordErr     error
	vectorCalls    int
	keywordCalls   int
	lastVectorLim  int
	lastKeywordLim int
}

func (r *stubRepo) SearchByVector(ctx context.Context, queryVector []float32, limit int) ([]*ScoredSearchResult, error) {
	r.vectorCalls++
	r.lastVectorLim = limit
	return r.vectorResults, r.vectorErr
}

func (r *stubRepo) SearchByKeyword(ctx context.Context, query string, limit int) ([]*ScoredSearchResult, error) {
	r.keywordCalls++
	r.lastKeywordLim = limit
	return r.keywordResults, r.keywordErr
}

func newTestService(repo *stubRepo, embedder *stubEmbedder) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, embedder, WithLogger(logger))
}

func scored(id string, score float64) *ScoredSearchResult {
	return &ScoredSearchResult{
		ID:        id,
		Title:     "title-" + id,
		URL:       "https://example.com/" + id,
		Author:    "author",
		UpdatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Source:    document.SourceQiitaTeam,
		Score:     score,
	}
}

func TestEmptyQueryShortCircuitsAllModes(t *testing.T) {
	for _, query := range []string{"", "   ", "\t\n"} {
		repo := &stubRepo{}
		embedder := &stubEmbedder{vector: []float32{1, 2, 3}}
		svc := newTestService(repo, embedder)
		ctx := context.Background()

		assert.Empty(t, svc.SemanticSearch(ctx, query))

		keyword, err := svc.KeywordSearch(ctx, query)
		require.NoError(t, err)
		assert.Empty(t, keyword)

		hybrid, err := svc.HybridSearch(ctx, query)
		require.NoError(t, err)
		assert.Empty(t, hybrid)

		unscored, err := svc.SearchDocuments(ctx, query)
		require.NoError(t, err)
		assert.Empty(t, unscored)

		// 外部依存は一切呼ばれない
		assert.Zero(t, embedder.calls, "query=%q", query)
		assert.Zero(t, repo.vectorCalls, "query=%q", query)
		assert.Zero(t, repo.keywordCalls, "query=%q", query)
	}
}

func TestSemanticSearch_UsesLimitAndScore(t *testing.T) {
	repo := &stubRepo{vectorResults: []*ScoredSearchResult{scored("a", 0.9)}}
	embedder := &stubEmbedder{vector: []float32{0.1, 0.2}}
	svc := newTestService(repo, embedder)

	results := svc.SemanticSearch(context.Background(), "golang")
	require.Len(t, results, 1)
	assert.Equal(t, 50, repo.lastVectorLim)
	assert.Equal(t, 1, embedder.calls)
}

func TestSemanticSearch_EmbedderFailureFallsBackToEmpty(t *testing.T) {
	repo := &stubRepo{vectorResults: []*ScoredSearchResult{scored("a", 0.9)}}
	embedder := &stubEmbedder{err: errors.New("embedding API timeout")}
	svc := newTestService(repo, embedder)

	results := svc.SemanticSearch(context.Background(), "golang")
	assert.Empty(t, results)
	assert.Zero(t, repo.vectorCalls)
}

func TestSemanticSearch_StoreFailureFallsBackToEmpty(t *testing.T) {
	repo := &stubRepo{vectorErr: errors.New("connection refused")}
	embedder := &stubEmbedder{vector: []float32{0.1}}
	svc := newTestService(repo, embedder)

	results := svc.SemanticSearch(context.Background(), "golang")
	assert.Empty(t, results)
}

func TestKeywordSearch_PropagatesStoreError(t *testing.T) {
	storeErr := errors.New("relation does not exist")
	repo := &stubRepo{keywordErr: storeErr}
	svc := newTestService(repo, &stubEmbedder{vector: []float32{1}})

	_, err := svc.KeywordSearch(context.Background(), "golang")
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 100, repo.lastKeywordLim)
}

func TestHybridSearch_MergesWeightedScores(t *testing.T) {
	repo := &stubRepo{
		vectorResults: []*ScoredSearchResult{
			scored("both", 0.8),
			scored("sem-only", 0.5),
		},
		keywordResults: []*ScoredSearchResult{
			scored("both", 0.9),
			scored("kw-only", 0.3),
		},
	}
	svc := newTestService(repo, &stubEmbedder{vector: []float32{1}})

	results, err := svc.HybridSearch(context.Background(), "golang")
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := make(map[string]float64, len(results))
	for _, r := range results {
		byID[r.ID] = r.Score
	}

	// 両方ヒット: 0.8*0.6 + 0.9*0.4、片方のみ: そのスコア×重み
	assert.InDelta(t, 0.8*0.6+0.9*0.4, byID["both"], 1e-9)
	assert.InDelta(t, 0.5*0.6, byID["sem-only"], 1e-9)
	assert.InDelta(t, 0.3*0.4, byID["kw-only"], 1e-9)

	// スコア降順
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestHybridSearch_TieBreaksByID(t *testing.T) {
	repo := &stubRepo{
		keywordResults: []*ScoredSearchResult{
			scored("zzz", 0.5),
			scored("aaa", 0.5),
		},
	}
	svc := newTestService(repo, &stubEmbedder{vector: []float32{1}})

	results, err := svc.HybridSearch(context.Background(), "golang")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "aaa", results[0].ID)
	assert.Equal(t, "zzz", results[1].ID)
}

func TestHybridSearch_SemanticFailureDegradesToKeywordOnly(t *testing.T) {
	repo := &stubRepo{
		keywordResults: []*ScoredSearchResult{
			scored("a", 0.9),
			scored("b", 0.4),
		},
	}
	svc := newTestService(repo, &stubEmbedder{err: errors.New("quota exceeded")})

	hybrid, err := svc.HybridSearch(context.Background(), "golang")
	require.NoError(t, err)

	keyword, err := svc.KeywordSearch(context.Background(), "golang")
	require.NoError(t, err)

	// キーワード検索と同じ集合、スコアはキーワード重みのみ
	require.Len(t, hybrid, len(keyword))
	for i, r := range hybrid {
		assert.Equal(t, keyword[i].ID, r.ID)
		assert.InDelta(t, keyword[i].Score*0.4, r.Score, 1e-9)
	}
}

func TestHybridSearch_KeywordFailureAborts(t *testing.T) {
	storeErr := errors.New("statement timeout")
	repo := &stubRepo{
		vectorResults: []*ScoredSearchResult{scored("a", 0.9)},
		keywordErr:    storeErr,
	}
	svc := newTestService(repo, &stubEmbedder{vector: []float32{1}})

	_, err := svc.HybridSearch(context.Background(), "golang")
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
}

func TestSearchDocuments_StripsScore(t *testing.T) {
	repo := &stubRepo{
		keywordResults: []*ScoredSearchResult{scored("a", 0.7)},
	}
	svc := newTestService(repo, &stubEmbedder{vector: []float32{1}})

	results, err := svc.SearchDocuments(context.Background(), "golang")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "title-a", results[0].Title)
	assert.Equal(t, document.SourceQiitaTeam, results[0].Source)
}
