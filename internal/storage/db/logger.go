package db

import (
	"context"
	"errors"
	"time"

	"github.com/John-Robertt/subhub/internal/logger"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

const slowThreshold = time.Second

// Logger forwards gorm logging into the project logger.
type Logger struct {
	log      logger.Logger
	LogLevel glog.LogLevel
}

func NewLogger(l logger.Logger) *Logger {
	return &Logger{log: l, LogLevel: glog.Warn}
}

func (l *Logger) LogMode(level glog.LogLevel) glog.Interface {
	n := *l
	n.LogLevel = level
	return &n
}

func (l *Logger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Info {
		l.log.Info(msg, "data", data)
	}
}

func (l *Logger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Warn {
		l.log.Warn(msg, "data", data)
	}
}

func (l *Logger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Error {
		l.log.Error(msg, "data", data)
	}
}

// Trace logs failed and slow statements, and every statement at Info.
// Record-not-found is an expected outcome of lookups and is not an error.
func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= glog.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []any{
		"sql", sql,
		"rows", rows,
		"ms", float64(elapsed.Nanoseconds()) / 1e6,
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= glog.Error:
		l.log.Err(err, "sql failed", fields...)
	case elapsed > slowThreshold && l.LogLevel >= glog.Warn:
		l.log.Warn("slow sql", fields...)
	case l.LogLevel == glog.Info:
		l.log.Debug("sql", fields...)
	}
}
