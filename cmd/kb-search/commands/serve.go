package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-search/internal/core/syncer"
	"github.com/jinford/kb-search/internal/infra/postgres"
	"github.com/jinford/kb-search/internal/web"
)

const (
	serverShutdownTimeout = 10 * time.Second
	syncStopTimeout       = 30 * time.Second
)

// ServeAction は検索APIサーバーと同期スケジューラを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if appCtx.Config.APIToken == "" {
		return fmt.Errorf("KBSEARCH_API_TOKEN が設定されていません")
	}

	scheduler, err := appCtx.newScheduler()
	if err != nil {
		return fmt.Errorf("スケジューラの初期化に失敗: %w", err)
	}

	permSvc, err := appCtx.newPermissionService()
	if err != nil {
		return err
	}

	server := web.NewServer(
		appCtx.newSearchService(),
		permSvc,
		postgres.NewDocumentRepository(appCtx.Database.Pool),
		scheduler,
		appCtx.Config.APIToken,
		web.WithLogger(appCtx.Logger),
	)

	scheduler.OnJobComplete(func(result *syncer.SyncJobResult) {
		appCtx.Logger.Info("sync job finished",
			slog.Bool("success", result.Success),
			slog.Int("synced", result.SyncedCount),
			slog.Int("failed", result.FailedCount))
	})
	scheduler.Start()

	httpServer := &http.Server{
		Addr:    appCtx.Config.Server.Addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		appCtx.Logger.Info("starting http server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		appCtx.Logger.Info("shutdown signal received")
	case err := <-errCh:
		scheduler.Stop()
		return fmt.Errorf("httpサーバーの起動に失敗: %w", err)
	}

	// 実行中の同期ジョブの完了を待ってから停止する
	scheduler.GracefulStop(context.Background(), syncStopTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpサーバーの停止に失敗: %w", err)
	}

	return nil
}
