package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jinford/kb-search/internal/core/document"
	"github.com/jinford/kb-search/internal/core/permission"
	"github.com/jinford/kb-search/internal/core/search"
	"github.com/jinford/kb-search/internal/core/syncer"
)

// SearchService は検索のユースケースを提供する
type SearchService interface {
	SemanticSearch(ctx context.Context, query string) []*search.ScoredSearchResult
	KeywordSearch(ctx context.Context, query string) ([]*search.ScoredSearchResult, error)
	HybridSearch(ctx context.Context, query string) ([]*search.ScoredSearchResult, error)
}

// PermissionFilter は検索結果の権限フィルタリングを提供する
type PermissionFilter interface {
	FilterByPermissions(ctx context.Context, userID int64, results []*search.ScoredSearchResult) ([]*search.ScoredSearchResult, error)
}

// StatsProvider はドキュメントの統計情報を提供する
type StatsProvider interface {
	Stats(ctx context.Context) (document.Stats, error)
}

// SchedulerControl は同期スケジューラの参照と操作を提供する
type SchedulerControl interface {
	Status() syncer.SchedulerStatus
	IsJobRunning() bool
	RunNow(ctx context.Context) *syncer.SyncJobResult
}

// Server は検索APIのHTTPサーバーを構成する
type Server struct {
	searchSvc SearchService
	perm      PermissionFilter
	stats     StatsProvider
	scheduler SchedulerControl
	apiToken  string
	logger    *slog.Logger
}

// Option は Server のオプション設定
type Option func(*Server)

// WithLogger はロガーを上書きする
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer は新しい Server を作成する
func NewServer(searchSvc SearchService, perm PermissionFilter, stats StatsProvider, scheduler SchedulerControl, apiToken string, opts ...Option) *Server {
	s := &Server{
		searchSvc: searchSvc,
		perm:      perm,
		stats:     stats,
		scheduler: scheduler,
		apiToken:  apiToken,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router はルーティングを登録したGinエンジンを返す
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)

	api := r.Group("/api", s.authMiddleware())
	api.GET("/search", s.handleSearch)
	api.GET("/stats", s.handleStats)
	api.GET("/scheduler/status", s.handleSchedulerStatus)
	api.POST("/scheduler/run", s.handleSchedulerRun)

	return r
}

// authMiddleware はBearerトークンによる認証を行う
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "

		header := c.GetHeader("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token := header[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Next()
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type searchResponse struct {
	Query   string                       `json:"query"`
	Mode    string                       `json:"mode"`
	Results []*search.ScoredSearchResult `json:"results"`
}

// handleSearch は権限フィルタリング済みの検索結果を返す
//
// GET /api/search?q=<query>&mode=<hybrid|keyword|semantic>
// リクエストユーザーは X-User-ID ヘッダで指定する
func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	mode := c.DefaultQuery("mode", string(search.ModeHybrid))
	if !search.ValidMode(mode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode: " + mode})
		return
	}

	userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "valid X-User-ID header is required"})
		return
	}

	ctx := c.Request.Context()

	var results []*search.ScoredSearchResult
	switch search.Mode(mode) {
	case search.ModeSemantic:
		results = s.searchSvc.SemanticSearch(ctx, query)
	case search.ModeKeyword:
		results, err = s.searchSvc.KeywordSearch(ctx, query)
	default:
		results, err = s.searchSvc.HybridSearch(ctx, query)
	}
	if err != nil {
		s.logger.Error("search failed",
			slog.String("mode", mode),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	filtered, err := s.perm.FilterByPermissions(ctx, userID, results)
	if err != nil {
		if errors.Is(err, permission.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		s.logger.Error("permission filtering failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, searchResponse{
		Query:   query,
		Mode:    mode,
		Results: filtered,
	})
}

type statsResponse struct {
	TotalDocuments int        `json:"totalDocuments"`
	LastUpdated    *time.Time `json:"lastUpdated"`
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.stats.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to fetch stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats"})
		return
	}

	resp := statsResponse{TotalDocuments: stats.TotalDocuments}
	if last, ok := stats.LastUpdated.Get(); ok {
		resp.LastUpdated = &last
	}
	c.JSON(http.StatusOK, resp)
}

type schedulerStatusResponse struct {
	State         syncer.State      `json:"state"`
	JobRunning    bool              `json:"jobRunning"`
	LastRunAt     *time.Time        `json:"lastRunAt"`
	LastRunResult *syncer.RunResult `json:"lastRunResult"`
	NextRunAt     *time.Time        `json:"nextRunAt"`
	RunCount      int               `json:"runCount"`
	ErrorCount    int               `json:"errorCount"`
}

func (s *Server) handleSchedulerStatus(c *gin.Context) {
	status := s.scheduler.Status()

	resp := schedulerStatusResponse{
		State:      status.State,
		JobRunning: s.scheduler.IsJobRunning(),
		RunCount:   status.RunCount,
		ErrorCount: status.ErrorCount,
	}
	if v, ok := status.LastRunAt.Get(); ok {
		resp.LastRunAt = &v
	}
	if v, ok := status.LastRunResult.Get(); ok {
		resp.LastRunResult = &v
	}
	if v, ok := status.NextRunAt.Get(); ok {
		resp.NextRunAt = &v
	}
	c.JSON(http.StatusOK, resp)
}

// handleSchedulerRun は同期ジョブの即時実行をトリガーする
// ジョブはバックグラウンドで実行され、レスポンスは完了を待たない
func (s *Server) handleSchedulerRun(c *gin.Context) {
	if s.scheduler.IsJobRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "sync job already running"})
		return
	}

	state := s.scheduler.Status().State
	if state != syncer.StateRunning && state != syncer.StateStopping {
		c.JSON(http.StatusConflict, gin.H{"error": "scheduler is not running"})
		return
	}

	// リクエストのライフタイムに縛られないようバックグラウンドで実行する
	go func() {
		if result := s.scheduler.RunNow(context.Background()); result == nil {
			s.logger.Info("manual sync trigger skipped")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
