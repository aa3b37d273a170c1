package codes

import (
	"strings"
	"testing"
)

func TestMeetingCode(t *testing.T) {
	g := NewGenerator(8, "SC")
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := g.Meeting()
		if err != nil {
			t.Fatalf("Meeting() error: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		if strings.HasPrefix(code, "SC") {
			t.Fatalf("meeting code %q uses scrutator prefix", code)
		}
		if code != strings.ToUpper(code) {
			t.Fatalf("code %q is not uppercase", code)
		}
		if g.Classify(code) != KindMeeting {
			t.Fatalf("code %q not classified as meeting", code)
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Errorf("too many collisions: %d unique of 200", len(seen))
	}
}

func TestScrutatorCode(t *testing.T) {
	g := NewGenerator(8, "sc")
	code, err := g.Scrutator()
	if err != nil {
		t.Fatalf("Scrutator() error: %v", err)
	}
	if !strings.HasPrefix(code, "SC") || len(code) != 8 {
		t.Fatalf("unexpected scrutator code %q", code)
	}
	if g.Classify(strings.ToLower(code)) != KindScrutator {
		t.Errorf("code %q not classified as scrutator", code)
	}
}

func TestClassify(t *testing.T) {
	g := NewGenerator(8, "SC")
	tests := []struct {
		code string
		want Kind
	}{
		{"ABCD2345", KindMeeting},
		{" abcd2345 ", KindMeeting},
		{"SCABC234", KindScrutator},
		{"ABC", KindUnknown},
		{"SCABC2345", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		if got := g.Classify(tt.code); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
