package adapter

import (
	"strings"
	"testing"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		in        string
		limit     int
		mode      string
		wantParts int
		check     func(t *testing.T, parts []string)
	}{
		{name: "short", in: "hello", limit: 10, wantParts: 1},
		{name: "hard split", in: strings.Repeat("a", 25), limit: 10, wantParts: 3},
		{
			name: "prefers newline", in: "aaaaaa\nbbbbbbbbb", limit: 10, wantParts: 2,
			check: func(t *testing.T, parts []string) {
				if parts[0] != "aaaaaa" || parts[1] != "bbbbbbbbb" {
					t.Fatalf("parts = %q", parts)
				}
			},
		},
		{
			name: "html tag kept whole", in: "abcdefg <b>x</b>", limit: 10, mode: "HTML", wantParts: 2,
			check: func(t *testing.T, parts []string) {
				if !strings.HasPrefix(parts[1], "<b>") {
					t.Fatalf("parts = %q", parts)
				}
			},
		},
		{name: "runes not bytes", in: strings.Repeat("é", 10), limit: 10, wantParts: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parts := splitTelegramText(tc.in, tc.limit, tc.mode)
			if len(parts) != tc.wantParts {
				t.Fatalf("got %d parts %q, want %d", len(parts), parts, tc.wantParts)
			}
			for _, p := range parts {
				if n := len([]rune(p)); n > tc.limit {
					t.Fatalf("part %q has %d runes", p, n)
				}
			}
			if tc.check != nil {
				tc.check(t, parts)
			}
		})
	}
}
