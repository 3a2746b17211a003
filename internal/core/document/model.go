package document

import (
	"time"

	"github.com/samber/mo"
)

// Source はドキュメントの取得元を表す
type Source string

const (
	SourceQiitaTeam   Source = "qiita_team"
	SourceGoogleDrive Source = "google_drive"
	SourceOneDrive    Source = "onedrive"
)

// EmbeddingDimension は保存するベクトルの次元数
const EmbeddingDimension = 768

// Document は永続化される検索対象のコンテンツ単位を表す
// IDは取得元が割り当てるグローバルに一意な文字列識別子
type Document struct {
	ID        string
	Title     string
	Body      string
	URL       string
	Author    string
	Source    Source
	CreatedAt time.Time
	UpdatedAt time.Time
	// Embedding は取り込み時に生成に成功した場合のみ保持される
	Embedding mo.Option[[]float32]
	// SyncedAt はupsertのたびにサーバ側で更新される
	SyncedAt time.Time
}

// SearchResult はスコアを持たない検索結果（後方互換API用）
type SearchResult struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Author    string    `json:"author"`
	UpdatedAt time.Time `json:"updatedAt"`
	Source    Source    `json:"source"`
}

// BatchUpsertResult はバッチupsertの結果を表す
// 一部でも失敗した場合は全件ロールバックされる
type BatchUpsertResult struct {
	Success       bool   `json:"success"`
	InsertedCount int    `json:"insertedCount"`
	FailedCount   int    `json:"failedCount"`
	Error         string `json:"error,omitempty"`
}

// Stats はドキュメントストアの統計情報を表す
// LastUpdated はドキュメントが0件の場合のみ None になる
type Stats struct {
	TotalDocuments int
	LastUpdated    mo.Option[time.Time]
}
