// Package codes generates the short codes people type to enter a meeting.
//
// Meeting codes are plain uppercase alphanumerics. Scrutator access codes carry
// a fixed two-letter prefix and a different total length, so a single code
// field can route to the right join flow.
package codes

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// ambiguous glyphs (0/O, 1/I) are left out of the alphabet
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultMeetingLength   = 8
	DefaultScrutatorStem   = 6
	DefaultScrutatorPrefix = "SC"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindMeeting
	KindScrutator
)

type Generator struct {
	MeetingLength   int
	ScrutatorPrefix string
}

func NewGenerator(meetingLength int, scrutatorPrefix string) Generator {
	if meetingLength <= 0 {
		meetingLength = DefaultMeetingLength
	}
	if scrutatorPrefix == "" {
		scrutatorPrefix = DefaultScrutatorPrefix
	}
	return Generator{
		MeetingLength:   meetingLength,
		ScrutatorPrefix: strings.ToUpper(scrutatorPrefix),
	}
}

// Meeting returns a fresh meeting code that never starts with the scrutator prefix.
func (g Generator) Meeting() (string, error) {
	for {
		code, err := random(g.MeetingLength)
		if err != nil {
			return "", err
		}
		if !strings.HasPrefix(code, g.ScrutatorPrefix) {
			return code, nil
		}
	}
}

// Scrutator returns a fresh scrutator access code.
func (g Generator) Scrutator() (string, error) {
	stem, err := random(DefaultScrutatorStem)
	if err != nil {
		return "", err
	}
	return g.ScrutatorPrefix + stem, nil
}

// Classify tells which join flow a typed code belongs to.
func (g Generator) Classify(code string) Kind {
	code = Normalize(code)
	switch {
	case len(code) == len(g.ScrutatorPrefix)+DefaultScrutatorStem && strings.HasPrefix(code, g.ScrutatorPrefix):
		return KindScrutator
	case len(code) == g.MeetingLength && !strings.HasPrefix(code, g.ScrutatorPrefix):
		return KindMeeting
	default:
		return KindUnknown
	}
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func random(n int) (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		sb.WriteByte(alphabet[idx.Int64()])
	}
	return sb.String(), nil
}
