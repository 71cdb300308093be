// Package logging は slog ベースのロガー初期化を提供します。
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup はレベル文字列から *slog.Logger を作成し、デフォルトロガーとして登録します。
// 認識できないレベルは info として扱います。
func Setup(level string) *slog.Logger {
	logger := New(os.Stderr, level)
	slog.SetDefault(logger)
	return logger
}

// New は出力先を指定してロガーを作成します。
func New(w io.Writer, level string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

// Discard はテスト用に出力を捨てるロガーを返します。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
