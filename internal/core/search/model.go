package search

import (
	"time"

	"github.com/jinford/kb-search/internal/core/document"
)

// ScoredSearchResult はスコア付きの検索結果を表す
// 検索リクエストのライフタイム内でのみ存在し、永続化されない
type ScoredSearchResult struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	URL       string          `json:"url"`
	Author    string          `json:"author"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Source    document.Source `json:"source"`
	Score     float64         `json:"score"`
}

// Unscored はスコアを除いた後方互換の検索結果に変換する
func (r *ScoredSearchResult) Unscored() *document.SearchResult {
	return &document.SearchResult{
		ID:        r.ID,
		Title:     r.Title,
		URL:       r.URL,
		Author:    r.Author,
		UpdatedAt: r.UpdatedAt,
		Source:    r.Source,
	}
}

// Mode は検索モードを表す
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
)

// ValidMode はmodeパラメータが有効かどうかを判定する
func ValidMode(m string) bool {
	switch Mode(m) {
	case ModeHybrid, ModeKeyword, ModeSemantic:
		return true
	}
	return false
}
