package telegram

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"meeting_id: a-b.c", "meeting\\_id: a\\-b\\.c"},
		{"(x)!", "\\(x\\)\\!"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitMessage(t *testing.T) {
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	parts := splitMessage(text, 10)
	if len(parts) != 2 || parts[0] != "aaaaaa\n" || parts[1] != "bbbbbb" {
		t.Errorf("parts = %q", parts)
	}
	if parts = splitMessage("short", 10); len(parts) != 1 {
		t.Errorf("parts = %q", parts)
	}
	if parts = splitMessage(strings.Repeat("c", 25), 10); len(parts) != 3 {
		t.Errorf("parts = %q", parts)
	}
}

type outbox struct {
	mu       sync.Mutex
	sent     []string
	failures int
}

func (o *outbox) deliver(text string, markdown bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if markdown && o.failures > 0 {
		o.failures--
		return errors.New("can't parse entities")
	}
	o.sent = append(o.sent, text)
	return nil
}

func (o *outbox) messages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.sent...)
}

func testSender(interval time.Duration, box *outbox) *Sender {
	s := newSender(42, interval, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.deliver = box.deliver
	return s
}

func TestSenderImmediate(t *testing.T) {
	box := &outbox{failures: 1}
	s := testSender(0, box)
	s.Start()
	s.Notify(slog.LevelError, "first")
	s.Notify(slog.LevelError, "second")
	s.Stop()

	got := box.messages()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("sent = %q", got)
	}
}

func TestSenderDigest(t *testing.T) {
	box := &outbox{}
	s := testSender(time.Hour, box)
	s.Start()
	s.Notify(slog.LevelError, "purge failed")
	s.Notify(slog.LevelWarn, "slow subscriber")
	if len(box.messages()) != 0 {
		t.Fatal("digest sent before flush")
	}
	s.Stop()

	got := box.messages()
	if len(got) != 1 {
		t.Fatalf("sent %d messages, want one digest", len(got))
	}
	if !strings.Contains(got[0], "2 messages") || !strings.Contains(got[0], "purge failed") {
		t.Errorf("digest = %q", got[0])
	}
}
