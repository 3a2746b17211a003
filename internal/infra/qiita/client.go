package qiita

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jinford/kb-search/internal/core/permission"
	"github.com/jinford/kb-search/internal/core/syncer"
)

const (
	// DefaultBaseURL はQiita API v2のエンドポイント
	DefaultBaseURL = "https://qiita.com/api/v2"

	// DefaultPerPage は記事取得のページサイズ（Qiita APIの上限）
	DefaultPerPage = 100

	// accessCheckConcurrency はバッチ権限チェックの並列数上限
	accessCheckConcurrency = 8

	defaultTimeout = 30 * time.Second
)

// Article はQiita APIが返す記事を表す
type Article struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
}

// Client はQiita Team APIのクライアント
// 記事取得と記事単位のアクセス権限チェックを提供する
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption は Client のオプション設定
type ClientOption func(*Client)

// WithBaseURL はエンドポイントを上書きする（テスト用）
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient はHTTPクライアントを上書きする
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClientLogger はロガーを上書きする
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient はトークンにスコープされた新しい Client を作成する
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchArticles は指定ページの記事一覧を取得する
func (c *Client) FetchArticles(ctx context.Context, page, perPage int) ([]Article, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	url := fmt.Sprintf("%s/items?page=%d&per_page=%d", c.baseURL, page, perPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qiita API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qiita API error: %s", resp.Status)
	}

	var articles []Article
	if err := json.NewDecoder(resp.Body).Decode(&articles); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return articles, nil
}

// FetchAllArticles は全ページの記事を取得する
// syncer.Fetcher の実装
func (c *Client) FetchAllArticles(ctx context.Context) ([]syncer.Article, error) {
	var all []syncer.Article
	for page := 1; ; page++ {
		articles, err := c.FetchArticles(ctx, page, DefaultPerPage)
		if err != nil {
			return nil, err
		}

		for _, a := range articles {
			all = append(all, syncer.Article{
				ID:         a.ID,
				Title:      a.Title,
				Body:       a.Body,
				URL:        a.URL,
				AuthorID:   a.User.ID,
				AuthorName: a.User.Name,
				CreatedAt:  a.CreatedAt,
				UpdatedAt:  a.UpdatedAt,
			})
		}

		if len(articles) < DefaultPerPage {
			break
		}
	}
	return all, nil
}

// CheckArticleAccess は単一記事のアクセス権限をチェックする
// 200はアクセス可、404は権限なし（または記事が存在しない）、
// その他のエラーはすべて安全側（アクセス拒否）に倒す
func (c *Client) CheckArticleAccess(ctx context.Context, articleID string) bool {
	url := fmt.Sprintf("%s/items/%s", c.baseURL, articleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error("access check request build failed",
			slog.String("articleID", articleID),
			slog.String("error", err.Error()))
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("access check request failed",
			slog.String("articleID", articleID),
			slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true
	case resp.StatusCode == http.StatusNotFound:
		return false
	default:
		c.logger.Error("access check returned unexpected status",
			slog.String("articleID", articleID),
			slog.String("status", resp.Status))
		return false
	}
}

// CheckBatchAccess は複数記事のアクセス権限を並列チェックし、
// アクセス可能な記事IDの集合を返す
// permission.AccessChecker の実装
func (c *Client) CheckBatchAccess(ctx context.Context, articleIDs []string) (map[string]struct{}, error) {
	accessible := make(map[string]struct{}, len(articleIDs))
	if len(articleIDs) == 0 {
		return accessible, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(accessCheckConcurrency)

	for _, id := range articleIDs {
		g.Go(func() error {
			if c.CheckArticleAccess(gctx, id) {
				mu.Lock()
				accessible[id] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return accessible, nil
}

// ClientFactory はユーザーのトークンにスコープされたクライアントを作成する
// permission.CheckerFactory の実装
type ClientFactory struct {
	opts []ClientOption
}

// NewClientFactory は新しい ClientFactory を作成する
func NewClientFactory(opts ...ClientOption) *ClientFactory {
	return &ClientFactory{opts: opts}
}

// ForToken はトークンにスコープされた AccessChecker を返す
func (f *ClientFactory) ForToken(token string) permission.AccessChecker {
	return NewClient(token, f.opts...)
}

// インターフェース実装の確認
var (
	_ syncer.Fetcher            = (*Client)(nil)
	_ permission.AccessChecker  = (*Client)(nil)
	_ permission.CheckerFactory = (*ClientFactory)(nil)
)
