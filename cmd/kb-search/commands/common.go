package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/kb-search/internal/core/permission"
	"github.com/jinford/kb-search/internal/core/search"
	"github.com/jinford/kb-search/internal/core/syncer"
	"github.com/jinford/kb-search/internal/core/user"
	"github.com/jinford/kb-search/internal/infra/openai"
	"github.com/jinford/kb-search/internal/infra/postgres"
	"github.com/jinford/kb-search/internal/infra/qiita"
	"github.com/jinford/kb-search/internal/platform/crypto"
	"github.com/jinford/kb-search/internal/platform/logger"
	"github.com/jinford/kb-search/pkg/config"
	"github.com/jinford/kb-search/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config   *config.Config
	Database *db.DB
	Logger   *slog.Logger
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.DefaultConfig())

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	return &AppContext{
		Config:   cfg,
		Database: database,
		Logger:   appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Database != nil {
		ac.Database.Close()
	}
}

// newEmbedder はOpenAI Embeddingクライアントを作成する
func (ac *AppContext) newEmbedder() *openai.Embedder {
	return openai.NewEmbedder(
		ac.Config.OpenAI.APIKey,
		openai.WithEmbeddingModel(ac.Config.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(ac.Config.OpenAI.EmbeddingDimension),
		openai.WithRequestsPerSecond(ac.Config.OpenAI.RequestsPerSecond),
	)
}

// newSyncService はQiita Teamからの記事同期サービスを組み立てる
func (ac *AppContext) newSyncService() *syncer.Service {
	fetcher := qiita.NewClient(
		ac.Config.Qiita.Token,
		qiita.WithBaseURL(ac.Config.Qiita.BaseURL),
		qiita.WithClientLogger(ac.Logger),
	)
	store := postgres.NewDocumentRepository(ac.Database.Pool)

	return syncer.NewService(fetcher, ac.newEmbedder(), store,
		syncer.WithServiceLogger(ac.Logger))
}

// newScheduler は同期サービスをcronスケジュールに載せたスケジューラを作成する
func (ac *AppContext) newScheduler() (*syncer.Scheduler, error) {
	syncSvc := ac.newSyncService()

	return syncer.NewScheduler(
		syncer.SchedulerConfig{
			CronExpression: ac.Config.Scheduler.CronExpression,
			Timezone:       ac.Config.Scheduler.Timezone,
			SyncTimeout:    time.Duration(ac.Config.Scheduler.SyncTimeoutSec) * time.Second,
		},
		syncSvc.Run,
		syncer.WithSchedulerLogger(ac.Logger),
	)
}

// newSearchService は検索サービスを組み立てる
func (ac *AppContext) newSearchService() *search.Service {
	repo := postgres.NewDocumentRepository(ac.Database.Pool)
	return search.NewService(repo, ac.newEmbedder(), search.WithLogger(ac.Logger))
}

// newUserService はトークン暗号化つきのユーザーサービスを組み立てる
func (ac *AppContext) newUserService() (*user.Service, error) {
	encryptor, err := crypto.NewEncryptor(ac.Config.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("暗号化キーの初期化に失敗: %w", err)
	}
	repo := postgres.NewUserRepository(ac.Database.Pool)
	return user.NewService(repo, encryptor), nil
}

// newPermissionService は検索結果の権限フィルタを組み立てる
func (ac *AppContext) newPermissionService() (*permission.Service, error) {
	userSvc, err := ac.newUserService()
	if err != nil {
		return nil, err
	}
	factory := qiita.NewClientFactory(
		qiita.WithBaseURL(ac.Config.Qiita.BaseURL),
		qiita.WithClientLogger(ac.Logger),
	)
	return permission.NewService(userSvc, factory, permission.WithLogger(ac.Logger)), nil
}
