package agent

import (
	"strings"
	"testing"
)

func TestTruncateMiddleShortContentUntouched(t *testing.T) {
	content := "short observation"
	if got := TruncateMiddle(content, 100); got != content {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateMiddleKeepsHeadAndTail(t *testing.T) {
	content := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	got := TruncateMiddle(content, 50) // 200 chars kept

	if len(got) >= len(content) {
		t.Fatalf("no shrink: %d -> %d", len(content), len(got))
	}
	if !strings.HasPrefix(got, "aaaa") {
		t.Fatalf("head missing: %q", got[:20])
	}
	if !strings.HasSuffix(got, "zzzz") {
		t.Fatalf("tail missing: %q", got[len(got)-20:])
	}
	if !strings.Contains(got, "characters elided") {
		t.Fatalf("elision marker missing: %q", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("empty = %d", got)
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Fatalf("4 chars = %d tokens", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Fatalf("5 chars = %d tokens, want rounding up", got)
	}
}
