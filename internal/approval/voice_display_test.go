package approval

import (
	"strings"
	"testing"
)

func TestFormatForSpeechSuppressesDebugNoise(t *testing.T) {
	if _, ok := FormatForSpeech("debug", "debug: cache miss for key abc"); ok {
		t.Fatal("expected debug: prefixed message to be suppressed")
	}
	if _, ok := FormatForSpeech("info", "[internal] refreshing token"); ok {
		t.Fatal("expected [internal] prefixed message to be suppressed")
	}
	if _, ok := FormatForSpeech("debug", "hi"); ok {
		t.Fatal("expected sub-3-char message to be suppressed")
	}
}

func TestFormatForSpeechKeepsDebugWithErrorKeyword(t *testing.T) {
	out, ok := FormatForSpeech("debug", "error: connection refused")
	if !ok {
		t.Fatal("expected error-keyword debug message to survive")
	}
	if out != "error: connection refused" {
		t.Fatalf("expected message spoken unchanged with no level prefix, got %q", out)
	}
}

func TestFormatForSpeechStripsArrowsAndPrefixesLevel(t *testing.T) {
	out, ok := FormatForSpeech("warning", "step 1 => step 2 -> done")
	if !ok {
		t.Fatal("expected message to survive")
	}
	if !strings.HasPrefix(out, "Note: ") {
		t.Fatalf("expected Note: prefix, got %q", out)
	}
	if strings.ContainsAny(out, "=>|") || strings.Contains(out, "->") {
		t.Fatalf("expected arrows stripped, got %q", out)
	}
}

func TestFormatForSpeechTruncatesAtSentenceBoundary(t *testing.T) {
	long := strings.Repeat("this is a sentence. ", 20)
	out, ok := FormatForSpeech("info", long)
	if !ok {
		t.Fatal("expected long message to survive truncation")
	}
	if len(out) > spokenTruncateLimit {
		t.Fatalf("expected output capped at %d chars, got %d", spokenTruncateLimit, len(out))
	}
	if !strings.HasSuffix(out, ".") {
		t.Fatalf("expected truncation to end on a sentence boundary, got %q", out)
	}
}
