package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-search/internal/core/syncer"
)

// SyncRunAction は同期を1回だけ実行するコマンドのアクション
func SyncRunAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Logger.Info("starting one-shot sync")

	result, err := appCtx.newSyncService().Run(ctx)
	if err != nil {
		return fmt.Errorf("同期の実行に失敗: %w", err)
	}

	if err := printJSON(result); err != nil {
		return err
	}

	if !result.Success {
		return fmt.Errorf("同期に失敗: %d件のドキュメントを取り込めませんでした", result.FailedCount)
	}
	return nil
}

// SyncDaemonAction はcronスケジュールに従って同期を常駐実行するコマンドのアクション
func SyncDaemonAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	scheduler, err := appCtx.newScheduler()
	if err != nil {
		return fmt.Errorf("スケジューラの初期化に失敗: %w", err)
	}

	scheduler.OnJobComplete(func(result *syncer.SyncJobResult) {
		appCtx.Logger.Info("sync job finished",
			slog.Bool("success", result.Success),
			slog.Int("synced", result.SyncedCount),
			slog.Int("failed", result.FailedCount))
	})

	scheduler.Start()
	if next, ok := scheduler.Status().NextRunAt.Get(); ok {
		appCtx.Logger.Info("sync scheduler started",
			slog.String("schedule", appCtx.Config.Scheduler.CronExpression),
			slog.Time("nextRunAt", next))
	}

	<-ctx.Done()
	appCtx.Logger.Info("shutdown signal received")

	// 実行中のジョブの完了を待ってから停止する
	scheduler.GracefulStop(context.Background(), syncStopTimeout)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("結果の出力に失敗: %w", err)
	}
	return nil
}
