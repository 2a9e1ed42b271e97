package jsongraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

var pkgLogger atomic.Pointer[slog.Logger]

// SetLogger replaces the logger used outside of any Codec, for example when
// type metadata reports a conflict. nil restores the default.
func SetLogger(l *slog.Logger) {
	pkgLogger.Store(l)
}

func packageLogger() *slog.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return slog.Default().With("component", "jsongraph")
}

// logOperation logs a finished operation, as a warning when it was slow
func (c *Codec) logOperation(ctx context.Context, operation string, size int, duration time.Duration) {
	if c.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.Int("bytes", size),
		slog.Int64("duration_ms", duration.Milliseconds()),
		slog.String("codec_id", c.id()),
	}

	if duration > SlowOperationThreshold {
		attrs = append(attrs, slog.Int64("threshold_ms", SlowOperationThreshold.Milliseconds()))
		c.logger.LogAttrs(ctx, slog.LevelWarn, "Slow conversion detected", attrs...)
		return
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "Conversion completed", attrs...)
}

// logError logs a failed operation
func (c *Codec) logError(ctx context.Context, operation string, err error) {
	kind := errorType(err)
	c.metrics.RecordError(kind)
	if c.logger == nil {
		return
	}

	c.logger.LogAttrs(ctx, slog.LevelError, "Conversion failed",
		slog.String("operation", operation),
		slog.String("error", truncateString(err.Error(), MaxLoggedErrorLength)),
		slog.String("error_type", kind),
		slog.String("codec_id", c.id()),
	)
}

func (c *Codec) id() string {
	return fmt.Sprintf("codec_%p", c)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
