package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// zerologger routes GORM's logging through the global zerolog logger
type zerologger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
}

func NewLogger(slowThreshold time.Duration) logger.Interface {
	return &zerologger{level: logger.Warn, slowThreshold: slowThreshold}
}

func (l *zerologger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *zerologger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		log.Info().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *zerologger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		log.Warn().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *zerologger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		log.Error().Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *zerologger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	var event *zerolog.Event

	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound) && !IsRetryable(err):
		event = log.Error().Err(err)
	case err != nil && l.level >= logger.Warn && IsRetryable(err):
		event = log.Debug().Err(err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		event = log.Warn().Dur("threshold", l.slowThreshold)
	case l.level >= logger.Info:
		event = log.Trace()
	default:
		return
	}

	sql, rows := fc()
	event.
		Dur("duration", elapsed).
		Int64("rows", rows).
		Str("sql", sql).
		Msg("SQL")
}
