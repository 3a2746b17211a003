package commands

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-search/internal/infra/postgres"
)

// StatsAction は同期済みドキュメントの統計を表示するコマンドのアクション
func StatsAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	stats, err := postgres.NewDocumentRepository(appCtx.Database.Pool).Stats(ctx)
	if err != nil {
		return err
	}

	out := struct {
		TotalDocuments int        `json:"totalDocuments"`
		LastUpdated    *time.Time `json:"lastUpdated"`
	}{
		TotalDocuments: stats.TotalDocuments,
	}
	if last, ok := stats.LastUpdated.Get(); ok {
		out.LastUpdated = &last
	}

	return printJSON(out)
}
