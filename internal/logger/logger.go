// Package logger is the structured logger shared by every subhub component.
package logger

import (
	"io"
	"os"

	"github.com/John-Robertt/subhub/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger takes a message plus alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Err(err error, msg string, fields ...any)
}

type ZeroLogger struct {
	logger zerolog.Logger
}

// New builds a logger from the log section of the config. No writers means
// a no-op logger.
func New(cfg config.Log) *ZeroLogger {
	writers := make([]io.Writer, 0, len(cfg.Writer))
	for _, w := range cfg.Writer {
		switch w {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
		case "file":
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    10,
				MaxAge:     30,
				MaxBackups: 3,
				LocalTime:  true,
			})
		}
	}
	if len(writers) == 0 {
		return Nop()
	}
	return NewWithWriter(io.MultiWriter(writers...), cfg.Level)
}

// NewWithWriter writes JSON lines to w.
func NewWithWriter(w io.Writer, level string) *ZeroLogger {
	l := zerolog.New(w).
		With().
		Timestamp().
		Logger().
		Level(parseLevel(level))
	return &ZeroLogger{logger: l}
}

func Nop() *ZeroLogger { return &ZeroLogger{logger: zerolog.Nop()} }

func parseLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *ZeroLogger) Debug(msg string, fields ...any) {
	z.logger.Debug().Fields(fields).Msg(msg)
}

func (z *ZeroLogger) Info(msg string, fields ...any) {
	z.logger.Info().Fields(fields).Msg(msg)
}

func (z *ZeroLogger) Warn(msg string, fields ...any) {
	z.logger.Warn().Fields(fields).Msg(msg)
}

func (z *ZeroLogger) Error(msg string, fields ...any) {
	z.logger.Error().Fields(fields).Msg(msg)
}

func (z *ZeroLogger) Err(err error, msg string, fields ...any) {
	z.logger.Err(err).Fields(fields).Msg(msg)
}
