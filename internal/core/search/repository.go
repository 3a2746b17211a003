package search

import "context"

// Repository は検索関連の全データアクセスを統合するインターフェース
type Repository interface {
	// SearchByVector はクエリベクトルとのコサイン距離昇順で検索する
	// Embeddingを持つドキュメントのみが対象。スコアは 1 - 距離
	SearchByVector(ctx context.Context, queryVector []float32, limit int) ([]*ScoredSearchResult, error)

	// SearchByKeyword はトライグラム類似度（title + body の合算）降順で検索する
	// title または body がクエリを部分文字列として含むドキュメントのみが対象
	SearchByKeyword(ctx context.Context, query string, limit int) ([]*ScoredSearchResult, error)
}
