package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// API認証（検索APIのサービストークン）
	APIToken string

	// トークン暗号化キー（32バイト = 64文字のHEX）
	EncryptionKey string

	// OpenAI設定（Embeddings用）
	OpenAI OpenAIConfig

	// Qiita Team設定
	Qiita QiitaConfig

	// 同期スケジューラ設定
	Scheduler SchedulerConfig

	// HTTPサーバ設定
	Server ServerConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定（Embeddings用）
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	// RequestsPerSecond はEmbedding APIへのリクエストペーシング
	RequestsPerSecond float64
}

// QiitaConfig はQiita Team API設定
type QiitaConfig struct {
	BaseURL string
	// Token は同期ワーカーが使用するチームトークン
	// （検索時の権限チェックはユーザーごとのトークンを使用する）
	Token string
}

// SchedulerConfig は同期スケジューラ設定
type SchedulerConfig struct {
	CronExpression string
	Timezone       string
	SyncTimeoutSec int
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Addr string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "kbsearch"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "kbsearch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		APIToken:      getEnv("KBSEARCH_API_TOKEN", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 768),
			RequestsPerSecond:  getEnvAsFloat("OPENAI_EMBEDDING_RPS", 0.25), // デフォルトは4秒に1リクエスト
		},
		Qiita: QiitaConfig{
			BaseURL: getEnv("QIITA_BASE_URL", "https://qiita.com/api/v2"),
			Token:   getEnv("QIITA_TEAM_TOKEN", ""),
		},
		Scheduler: SchedulerConfig{
			CronExpression: getEnv("SYNC_CRON_SCHEDULE", "0 2 * * *"), // デフォルト: 毎日午前2時
			Timezone:       getEnv("TZ", "Asia/Tokyo"),
			SyncTimeoutSec: getEnvAsInt("SYNC_TIMEOUT_SEC", 300),
		},
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
