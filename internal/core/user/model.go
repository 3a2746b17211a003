package user

import "time"

// User はログインユーザーを表す
// QiitaトークンはAES-256-GCMで暗号化された状態で保持する
type User struct {
	ID                  int64
	Username            string
	Email               string
	EncryptedQiitaToken string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CreateParams はユーザー作成パラメータ
type CreateParams struct {
	Username   string
	Email      string
	QiitaToken string
}
