// Package logging 构建 IMBotChat 使用的 zerolog 日志记录器。
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level  string `env:"LOG_LEVEL" yaml:"level"`   // debug, info, warn, error
	Format string `env:"LOG_FORMAT" yaml:"format"` // json or console
}

// New creates a new logger writing to out (stdout when nil).
func New(cfg Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "imbotchat").
		Logger()
}
