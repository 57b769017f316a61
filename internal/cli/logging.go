package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// buildLogger constructs the zerolog.Logger shared by every component the
// CLI wires up. When cfg.LogFile is set, output rotates through
// lumberjack the same way firestige-Otus's internal/log package backs
// its file appender.
func buildLogger(cfg *appConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
