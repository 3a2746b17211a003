package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-search/cmd/kb-search/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatalf("エラー: %v", err)
	}
}

// newApp はコマンドツリーを構築する
func newApp() *cli.Command {
	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	return &cli.Command{
		Name:  "kb-search",
		Usage: "Qiita Team記事の同期と権限フィルタつきハイブリッド検索API",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "検索APIサーバーと同期スケジューラを起動",
				Flags:  []cli.Flag{envFlag},
				Action: commands.ServeAction,
			},
			{
				Name:  "sync",
				Usage: "記事同期コマンド",
				Commands: []*cli.Command{
					{
						Name:   "run",
						Usage:  "同期を1回だけ実行",
						Flags:  []cli.Flag{envFlag},
						Action: commands.SyncRunAction,
					},
					{
						Name:   "daemon",
						Usage:  "cronスケジュールに従って同期を常駐実行",
						Flags:  []cli.Flag{envFlag},
						Action: commands.SyncDaemonAction,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "同期済みドキュメントの統計を表示",
				Flags:  []cli.Flag{envFlag},
				Action: commands.StatsAction,
			},
			{
				Name:  "user",
				Usage: "ユーザー管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "新規ユーザーを登録",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "username",
								Usage:    "ユーザー名",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "email",
								Usage: "メールアドレス",
							},
							&cli.StringFlag{
								Name:     "qiita-token",
								Usage:    "Qiita Teamアクセストークン（暗号化して保存）",
								Required: true,
							},
						},
						Action: commands.UserCreateAction,
					},
					{
						Name:  "update-token",
						Usage: "Qiita Teamトークンを更新",
						Flags: []cli.Flag{
							envFlag,
							&cli.Int64Flag{
								Name:     "id",
								Usage:    "ユーザーID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "qiita-token",
								Usage:    "新しいQiita Teamアクセストークン",
								Required: true,
							},
						},
						Action: commands.UserUpdateTokenAction,
					},
				},
			},
		},
	}
}
