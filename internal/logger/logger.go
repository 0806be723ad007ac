package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/kardianos/service"
	slogmulti "github.com/samber/slog-multi"
)

// Setup builds the process logger. Records go to logFile as text and, when svc
// is non-nil (sandbox running under the service manager), to the system log too.
func Setup(svc service.Logger, logFile io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{slog.NewTextHandler(logFile, opts)}
	if svc != nil {
		handlers = append(handlers, &ServiceHandler{svc: svc, level: level})
	}

	logger := slog.New(slogmulti.Fanout(handlers...))
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ServiceHandler adapts slog.Handler to service.Logger.
// It formats the record (message + attributes) into a single line for the
// system log, which stamps time and level on its own.
type ServiceHandler struct {
	svc   service.Logger
	level slog.Level
	ops   []handlerOp
}

// handlerOp is one WithGroup or WithAttrs call, replayed in order so that
// attributes bound before a group stay outside it.
type handlerOp struct {
	group string
	attrs []slog.Attr
}

// Enabled reports whether level reaches the configured minimum.
func (h *ServiceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats the record and writes it to the service logger.
func (h *ServiceHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.svc == nil {
		return nil
	}

	var buf bytes.Buffer
	var handler slog.Handler = slog.NewTextHandler(&buf, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey) {
				return slog.Attr{}
			}
			return a
		},
	})
	for _, op := range h.ops {
		if op.group != "" {
			handler = handler.WithGroup(op.group)
		} else {
			handler = handler.WithAttrs(op.attrs)
		}
	}
	if err := handler.Handle(ctx, r); err != nil {
		return err
	}

	msg := strings.TrimSpace(buf.String())
	switch {
	case r.Level >= slog.LevelError:
		return h.svc.Error(msg)
	case r.Level >= slog.LevelWarn:
		return h.svc.Warning(msg)
	default:
		return h.svc.Info(msg)
	}
}

// WithAttrs returns a new ServiceHandler with the given attributes appended.
func (h *ServiceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(handlerOp{attrs: attrs})
}

// WithGroup returns a new ServiceHandler with the given group appended.
func (h *ServiceHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(handlerOp{group: name})
}

func (h *ServiceHandler) with(op handlerOp) *ServiceHandler {
	ops := make([]handlerOp, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &ServiceHandler{svc: h.svc, level: h.level, ops: append(ops, op)}
}
