package canbus

import (
	"context"
	"log/slog"
)

// LogOption is a bitmask selecting which operations a logged bus records.
type LogOption uint8

const (
	LogNone LogOption = 0
	LogRead LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// NewLoggedBus wraps inner and logs the selected operations at level.
// Errors are always logged at slog.LevelError. A non-nil filter restricts
// frame logging to matching frames.
func NewLoggedBus(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption, filter FrameFilter) Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggedBus{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
		filter: filter,
	}
}

type loggedBus struct {
	inner  Bus
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
	filter FrameFilter
}

func (l *loggedBus) wants(f Frame) bool {
	return l.filter == nil || l.filter(f)
}

func frameAttrs(f Frame) []any {
	return []any{
		slog.String("id", f.idString()),
		slog.Bool("extended", f.Extended),
		slog.Bool("rtr", f.RTR),
		slog.Int("len", int(f.Len)),
		slog.String("frame", f.String()),
	}
}

// Send logs the frame and the result when write logging is enabled.
func (l *loggedBus) Send(ctx context.Context, frame Frame) error {
	logIt := l.opts&LogWrite != 0 && l.wants(frame)
	if logIt {
		l.logger.Log(ctx, l.level, "canbus send", frameAttrs(frame)...)
	}
	err := l.inner.Send(ctx, frame)
	if err != nil && l.opts&LogWrite != 0 {
		l.logger.Log(ctx, slog.LevelError, "canbus send error",
			slog.String("id", frame.idString()),
			slog.Any("error", err),
		)
	}
	return err
}

// Receive logs the received frame or error when read logging is enabled.
func (l *loggedBus) Receive(ctx context.Context) (Frame, error) {
	f, err := l.inner.Receive(ctx)
	if l.opts&LogRead == 0 {
		return f, err
	}
	switch {
	case err != nil:
		l.logger.Log(ctx, slog.LevelError, "canbus receive error", slog.Any("error", err))
	case l.wants(f):
		l.logger.Log(ctx, l.level, "canbus receive", frameAttrs(f)...)
	}
	return f, err
}

// Close forwards to the inner Bus without logging.
func (l *loggedBus) Close() error {
	return l.inner.Close()
}
