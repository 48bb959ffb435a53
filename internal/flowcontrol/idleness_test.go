package flowcontrol

import (
	"testing"
	"time"
)

func TestTuningForMatchesSubstringCaseInsensitive(t *testing.T) {
	tuning := TuningFor("My-Claude-Instance")
	if tuning.LongSilence != 3*time.Second {
		t.Fatalf("expected claude-class tuning, got %+v", tuning)
	}

	tuning = TuningFor("codex-2")
	if tuning.LongSilence != 2*time.Second || tuning.MinSilence != 200*time.Millisecond {
		t.Fatalf("expected codex-class tuning, got %+v", tuning)
	}

	tuning = TuningFor("orchestrator")
	if tuning != DefaultTuning {
		t.Fatalf("expected default tuning for unmatched name, got %+v", tuning)
	}
}

func TestIsIdleFalseWithinMinSilence(t *testing.T) {
	c := NewController("generic")
	c.OnOutput([]byte("working"))
	if c.IsIdle() {
		t.Fatalf("expected not idle immediately after output")
	}
}

func TestIsIdleTrueAfterLongSilence(t *testing.T) {
	c := &Controller{tuning: Tuning{MinSilence: 10 * time.Millisecond, LongSilence: 30 * time.Millisecond}}
	c.OnOutput([]byte("working"))
	time.Sleep(40 * time.Millisecond)
	if !c.IsIdle() {
		t.Fatalf("expected idle after long silence elapsed")
	}
}

func TestIsIdlePromptTailWithinWindow(t *testing.T) {
	c := &Controller{tuning: Tuning{MinSilence: 10 * time.Millisecond, LongSilence: 2 * time.Second}}
	c.OnOutput([]byte("some-dir> "))
	time.Sleep(15 * time.Millisecond)
	if !c.IsIdle() {
		t.Fatalf("expected idle: tail matches prompt pattern within min/long window")
	}
}

func TestIsIdleFalseWithoutPromptTailWithinWindow(t *testing.T) {
	c := &Controller{tuning: Tuning{MinSilence: 10 * time.Millisecond, LongSilence: 2 * time.Second}}
	c.OnOutput([]byte("still working"))
	time.Sleep(15 * time.Millisecond)
	if c.IsIdle() {
		t.Fatalf("expected not idle: no prompt pattern and silence below long threshold")
	}
}

func TestIsIdlePressToContinue(t *testing.T) {
	c := &Controller{tuning: Tuning{MinSilence: 5 * time.Millisecond, LongSilence: 2 * time.Second}}
	c.OnOutput([]byte("Press any key to continue"))
	time.Sleep(10 * time.Millisecond)
	if !c.IsIdle() {
		t.Fatalf("expected idle on 'Press ... to continue' tail")
	}
}
