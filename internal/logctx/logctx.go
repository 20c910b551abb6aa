package logctx

import (
	"context"
	"log/slog"
)

// Handler adds the run and resource recorded on the context to every record.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(runDataKey{}).(*RunData); ok {
		r.AddAttrs(slog.Group("run",
			slog.String("id", rd.RunID),
			slog.String("addr", rd.Addr),
		))
	}

	if rd, ok := ctx.Value(resourceDataKey{}).(*ResourceData); ok {
		r.AddAttrs(slog.Group("resource",
			slog.String("outpoint", rd.OutPoint),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type runDataKey struct{}

type RunData struct {
	RunID string
	Addr  string
}

func WithRunData(ctx context.Context, data *RunData) context.Context {
	return context.WithValue(ctx, runDataKey{}, data)
}

type resourceDataKey struct{}

type ResourceData struct {
	OutPoint string
}

func WithResourceData(ctx context.Context, data *ResourceData) context.Context {
	return context.WithValue(ctx, resourceDataKey{}, data)
}
