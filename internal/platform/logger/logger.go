package logger

import (
	"io"
	"log/slog"
	"os"
)

// Format はログの出力形式
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config はロガーの設定
type Config struct {
	Level  slog.Level
	Format Format
	// Output は出力先。省略時はstdout
	Output io.Writer
}

// DefaultConfig は本番向けのデフォルト設定（INFO以上をJSONでstdoutへ）
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: FormatJSON,
	}
}

// New は設定に従ってロガーを作成し、slogのデフォルトロガーとして登録する
func New(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	l := slog.New(handler)
	slog.SetDefault(l)

	return l
}
