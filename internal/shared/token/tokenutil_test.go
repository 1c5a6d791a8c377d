package tokenutil

import (
	"strings"
	"testing"
)

func TestCountTokensEmpty(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", got)
	}
}

func TestCountTokensNonEmpty(t *testing.T) {
	if got := CountTokens("hello world, this is a token counting test"); got <= 0 {
		t.Errorf("CountTokens = %d, want > 0", got)
	}
}

func TestEstimateFast(t *testing.T) {
	if got := EstimateFast("   "); got != 0 {
		t.Errorf("EstimateFast(blank) = %d, want 0", got)
	}
	if got := EstimateFast("hi"); got != 1 {
		t.Errorf("EstimateFast(\"hi\") = %d, want 1", got)
	}
	long := strings.Repeat("word ", 100)
	if got := EstimateFast(long); got < 100 {
		t.Errorf("EstimateFast(long) = %d, want >= 100", got)
	}
}

func TestTruncateToTokens(t *testing.T) {
	short := "tiny"
	if got := TruncateToTokens(short, 100); got != short {
		t.Errorf("short text should pass through, got %q", got)
	}
	long := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	truncated := TruncateToTokens(long, 10)
	if len(truncated) >= len(long) {
		t.Error("expected truncation to shorten text")
	}
	if !strings.HasSuffix(truncated, "...") {
		t.Errorf("expected ellipsis suffix, got %q", truncated[len(truncated)-10:])
	}
}
