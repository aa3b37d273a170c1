package telegram

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const maxMessageLen = 4096

// Sanitize escapes MarkdownV2 reserved characters.
func Sanitize(input string) string {
	const reserved = "\\_{}#+-.!|()[]=*~`>"
	var sb strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reserved, char) {
			sb.WriteRune('\\')
		}
		sb.WriteRune(char)
	}
	return sb.String()
}

// splitMessage cuts text into parts Telegram accepts, preferring line breaks.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		cutAt := maxLen
		if nl := strings.LastIndex(text[:maxLen], "\n"); nl > 0 {
			cutAt = nl + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

type entry struct {
	message string
	level   slog.Level
	at      time.Time
}

func formatDigest(entries []entry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Digest* \\(%d messages\\)\n\n", len(entries)))
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("`%s` %s\n%s\n\n", e.at.Format("15:04"), e.level.String(), e.message))
	}
	return sb.String()
}
