package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"votesecret/lib/sl"
)

type capture struct {
	levels   []slog.Level
	messages []string
}

func (c *capture) Notify(level slog.Level, msg string) {
	c.levels = append(c.levels, level)
	c.messages = append(c.messages, msg)
}

func TestTelegramHandler(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	alerts := &capture{}
	log := slog.New(NewTelegramHandler(base, alerts, slog.LevelError)).With(sl.Module("core"))

	log.Debug("poll closed by timer")
	log.Info("meeting purged after report")
	log.Error("purge meeting", sl.Err(errors.New("write conflict")), slog.String("meeting_id", "m-1"))

	if !strings.Contains(buf.String(), "poll closed by timer") {
		t.Error("debug record must reach the base handler")
	}
	if len(alerts.messages) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts.messages))
	}
	msg := alerts.messages[0]
	for _, want := range []string{"*ERROR*", "`purge meeting`", "```error write conflict ```", "meeting\\_id: m\\-1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("alert %q does not contain %q", msg, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
