package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"github.com/jinford/kb-search/internal/core/document"
	"github.com/jinford/kb-search/internal/core/search"
	"github.com/jinford/kb-search/internal/core/syncer"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"

	// MaxRetries は一時的エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
// Embedding APIのレート制限を尊重するため、リクエスト間をペーシングする
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	limiter   *rate.Limiter
}

type embedderOptions struct {
	model     string
	dimension int
	rps       float64
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithRequestsPerSecond はリクエストペーシングを上書きする
func WithRequestsPerSecond(rps float64) EmbedderOption {
	return func(o *embedderOptions) {
		o.rps = rps
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) *Embedder {
	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: document.EmbeddingDimension,
		rps:       0.25, // デフォルトは4秒に1リクエスト
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Embedder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:     options.model,
		dimension: options.dimension,
		limiter:   rate.NewLimiter(rate.Limit(options.rps), 1),
	}
}

// Embed は単一テキストの Embedding を生成する
// 一時的エラーはExponential Backoffでリトライする
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is empty")
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		// ペーシング: リクエスト間隔をレートリミッタで制御する
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vector, err := e.embedOnce(ctx, text)
		if err != nil {
			lastErr = err
			if isRetryable(err) {
				continue
			}
			return nil, err
		}

		return vector, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func (e *Embedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}

	data := resp.Data[0]
	vector := make([]float32, len(data.Embedding))
	for i, v := range data.Embedding {
		vector[i] = float32(v)
	}

	return vector, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// isRetryable はレート制限・サーバエラーなど一時的エラーかどうかを判定する
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	// APIエラー以外（ネットワークエラー等）はリトライ対象とする
	return true
}

// インターフェース実装の確認
var (
	_ search.Embedder = (*Embedder)(nil)
	_ syncer.Embedder = (*Embedder)(nil)
)
