package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"votesecret/internal/telegram"
)

// Alerter receives records at or above the alert level.
type Alerter interface {
	Notify(level slog.Level, msg string)
}

// TelegramHandler passes every record to the wrapped handler and forwards
// records at or above minLevel to the alerter as MarkdownV2.
type TelegramHandler struct {
	handler  slog.Handler
	alerter  Alerter
	minLevel slog.Level
	attrs    []slog.Attr
	group    string
}

func NewTelegramHandler(handler slog.Handler, alerter Alerter, minLevel slog.Level) *TelegramHandler {
	return &TelegramHandler{
		handler:  handler,
		alerter:  alerter,
		minLevel: minLevel,
	}
}

func (h *TelegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *TelegramHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.handler.Handle(ctx, record); err != nil {
		return err
	}
	if record.Level < h.minLevel || h.alerter == nil {
		return nil
	}

	var sb strings.Builder
	if h.group != "" {
		sb.WriteString(fmt.Sprintf("*%s* `%s.%s`", record.Level.String(), h.group, record.Message))
	} else {
		sb.WriteString(fmt.Sprintf("*%s* `%s`", record.Level.String(), record.Message))
	}
	write := func(attr slog.Attr) {
		if attr.Key == "error" {
			sb.WriteString(fmt.Sprintf("\n%s: ```error %v ```", attr.Key, attr.Value))
			return
		}
		sb.WriteString(telegram.Sanitize(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value)))
	}
	for _, attr := range h.attrs {
		write(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		write(attr)
		return true
	})

	h.alerter.Notify(record.Level, sb.String())
	return nil
}

func (h *TelegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(combined, h.attrs)
	copy(combined[len(h.attrs):], attrs)

	return &TelegramHandler{
		handler:  h.handler.WithAttrs(attrs),
		alerter:  h.alerter,
		minLevel: h.minLevel,
		attrs:    combined,
		group:    h.group,
	}
}

func (h *TelegramHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &TelegramHandler{
		handler:  h.handler.WithGroup(name),
		alerter:  h.alerter,
		minLevel: h.minLevel,
		attrs:    h.attrs,
		group:    group,
	}
}
