package storage

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm/logger"
)

// hclogAdapter adapts hclog.Logger to gorm's logger.Interface, letting the
// storage layer's SQL tracing flow through the same structured logger as
// the rest of the node.
type hclogAdapter struct {
	logger hclog.Logger
	level  logger.LogLevel
}

// newGormLogger wraps log for use as a gorm.Config.Logger.
func newGormLogger(log hclog.Logger) logger.Interface {
	return &hclogAdapter{logger: log, level: logger.Warn}
}

func (g *hclogAdapter) LogMode(level logger.LogLevel) logger.Interface {
	return &hclogAdapter{logger: g.logger, level: level}
}

func (g *hclogAdapter) Info(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Info && g.logger != nil {
		g.logger.Info(msg, data...)
	}
}

func (g *hclogAdapter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Warn && g.logger != nil {
		g.logger.Warn(msg, data...)
	}
}

func (g *hclogAdapter) Error(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Error && g.logger != nil {
		g.logger.Error(msg, data...)
	}
}

func (g *hclogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent || g.logger == nil {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	switch {
	case err != nil && g.level >= logger.Error:
		g.logger.Error("storage query failed", "error", err, "elapsed", elapsed, "rows", rows, "sql", sql)
	case elapsed > 200*time.Millisecond && g.level >= logger.Warn:
		g.logger.Warn("slow storage query", "elapsed", elapsed, "rows", rows, "sql", sql)
	case g.level >= logger.Info:
		g.logger.Debug("storage query", "elapsed", elapsed, "rows", rows, "sql", sql)
	}
}
