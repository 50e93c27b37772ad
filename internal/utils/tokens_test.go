package utils_test

import (
	"strings"
	"testing"

	"github.com/KaramelBytes/edalens/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"short", "hi", 1},
		{"words", "hello world", 2},
		{"long", strings.Repeat("a", 4000), 1000},
		{"runes", strings.Repeat("ñ", 8), 2},
	}
	for _, c := range cases {
		if got := utils.CountTokens(c.in); got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, got, c.want)
		}
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	text := strings.Repeat("abcd ", 1000)
	trunc := utils.TruncateToTokenLimit(text, 300)
	if n := utils.CountTokens(trunc); n > 300 || n == 0 {
		t.Fatalf("tokens=%d, want 1..300", n)
	}
	if utils.TruncateToTokenLimit(text, 0) != "" {
		t.Fatalf("zero limit should drop everything")
	}
	if utils.TruncateToTokenLimit("short", 10) != "short" {
		t.Fatalf("text under the limit must be unchanged")
	}
}

func TestTruncateKeepsWholeLines(t *testing.T) {
	text := strings.Repeat("| a | b |\n", 50)
	trunc := utils.TruncateToTokenLimit(text, 20)
	if !strings.HasSuffix(trunc, "|") {
		t.Fatalf("cut mid-row: %q", trunc[len(trunc)-10:])
	}
	if len(trunc) != 79 {
		t.Fatalf("cut length = %d, want 79", len(trunc))
	}
}

func TestTokenBreakdown(t *testing.T) {
	got := utils.TokenBreakdown(map[string]string{"a": "", "b": strings.Repeat("x", 40)})
	if got["a"] != 0 || got["b"] != 10 {
		t.Fatalf("breakdown = %v", got)
	}
}
