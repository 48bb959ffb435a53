package inject

import (
	"bytes"
	"testing"
)

func TestMasterWriterSequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewMasterWriter(buf.Write)

	if err := w.Inject("hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := buf.Bytes()
	want := append([]byte{0x15}, append([]byte("hello"), 0x0d)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDetectTmuxRequiresPaneEnvVar(t *testing.T) {
	t.Setenv("TMUX_PANE", "")
	if _, ok := DetectTmux(); ok {
		t.Fatalf("expected DetectTmux to report false without TMUX_PANE set")
	}
}

func TestSelectFallsBackToMasterWriter(t *testing.T) {
	t.Setenv("TMUX_PANE", "")
	var buf bytes.Buffer
	w := Select(buf.Write)
	if _, ok := w.(*masterWriter); !ok {
		t.Fatalf("expected master writer when not in tmux, got %T", w)
	}
}
