package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

const (
	moduleKey  = "module"
	traceIDKey = "trace_id"
)

// LogFilePermissions is the mode used when creating log files.
const LogFilePermissions = 0o600

// NewSlogLogger returns a standalone Logger writing text to w. A nil writer
// means stdout and a nil location means local time. It has no module
// routing and is what tests and early startup code use.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = os.Stdout
	}
	if tz == nil {
		tz = time.Local
	}
	lvl := parseSlogLevel(level)
	return &moduleLogger{
		logger:   slog.New(newTextHandler(w, lvl, tz)),
		level:    lvl,
		fallback: lvl,
		timezone: tz,
	}
}

// newTextHandler builds the console handler: RFC3339 timestamps in tz and
// a TRACE label for the custom level.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: timeReplacer(tz),
	})
}

func timeReplacer(tz *time.Location) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if t, ok := a.Value.Any().(time.Time); ok && tz != nil {
				return slog.String(slog.TimeKey, t.In(tz).Format(time.RFC3339))
			}
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= traceLevelValue {
				return slog.String(slog.LevelKey, "TRACE")
			}
		}
		return a
	}
}

func parseSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
