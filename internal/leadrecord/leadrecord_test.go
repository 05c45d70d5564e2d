package leadrecord

import (
	"strings"
	"testing"
)

func TestSeenSetDedupByIDOrSignature(t *testing.T) {
	seen := NewSeenSet()
	sig := Signature("Industrial valve", "India", "1 hour ago")
	if seen.SeenAndMark("lead-1", sig) {
		t.Fatal("first observation should not be seen")
	}
	if !seen.SeenAndMark("lead-1", "different-sig") {
		t.Fatal("duplicate lead_id should be detected")
	}
	if !seen.SeenAndMark("lead-2", sig) {
		t.Fatal("duplicate signature should be detected even with a new lead_id")
	}
}

func TestTruncateText(t *testing.T) {
	short := "hello"
	if TruncateText(short) != short {
		t.Fatal("short text should be unchanged")
	}
	long := strings.Repeat("a", 3000)
	truncated := TruncateText(long)
	if len(truncated) != 2*1024 {
		t.Fatalf("expected truncation to 2KiB, got %d", len(truncated))
	}
}

func TestSignatureDeterministic(t *testing.T) {
	a := Signature("Title", "Country", "1 hour ago")
	b := Signature("title", "country", "1 Hour Ago")
	if a != b {
		t.Fatal("signature should be case/whitespace insensitive")
	}
}
