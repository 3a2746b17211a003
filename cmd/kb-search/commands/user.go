package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-search/internal/core/user"
)

// UserCreateAction は新規ユーザーを登録するコマンドのアクション
// Qiita Teamトークンは暗号化して保存される
func UserCreateAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	userSvc, err := appCtx.newUserService()
	if err != nil {
		return err
	}

	created, err := userSvc.Create(ctx, user.CreateParams{
		Username:   cmd.String("username"),
		Email:      cmd.String("email"),
		QiitaToken: cmd.String("qiita-token"),
	})
	if err != nil {
		return fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}

	fmt.Printf("ユーザーを作成しました: id=%d username=%s\n", created.ID, created.Username)
	return nil
}

// UserUpdateTokenAction はユーザーのQiita Teamトークンを更新するコマンドのアクション
func UserUpdateTokenAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	userSvc, err := appCtx.newUserService()
	if err != nil {
		return err
	}

	updated, err := userSvc.UpdateToken(ctx, cmd.Int64("id"), cmd.String("qiita-token"))
	if err != nil {
		return fmt.Errorf("トークンの更新に失敗: %w", err)
	}

	fmt.Printf("トークンを更新しました: id=%d username=%s\n", updated.ID, updated.Username)
	return nil
}
