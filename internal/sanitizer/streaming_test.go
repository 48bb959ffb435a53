package sanitizer

import "testing"

func TestStreamingStripsCompleteSequence(t *testing.T) {
	s := NewStreaming()
	got := s.Process([]byte("A\x1b[31mhi\x1b[0mB"))
	if got != "AhiB" {
		t.Fatalf("got %q, want %q", got, "AhiB")
	}
}

func TestStreamingCoalescesAcrossChunks(t *testing.T) {
	s := NewStreaming()
	var out string
	out += s.Process([]byte("A"))
	out += s.Process([]byte("\x1b[31"))
	out += s.Process([]byte("mhi"))
	out += s.Process([]byte("\x1b[0m"))
	out += s.Process([]byte("B"))

	if out != "AhiB" {
		t.Fatalf("got %q, want %q", out, "AhiB")
	}
}

func TestStreamingNewEscapeDiscardsStaleAccumulator(t *testing.T) {
	s := NewStreaming()
	// A malformed sequence (no terminator) followed by a fresh ESC: the
	// stale accumulator must be dropped, not leaked into output.
	got := s.Process([]byte("\x1b[1;2\x1b[0mhi"))
	if got != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
}

func TestStreamingPassthroughPlainText(t *testing.T) {
	s := NewStreaming()
	got := s.Process([]byte("hello world"))
	if got != "hello world" {
		t.Fatalf("got %q, want passthrough", got)
	}
}
