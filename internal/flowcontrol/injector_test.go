package flowcontrol

import (
	"testing"
	"time"
)

type recordingWriter struct {
	messages []string
}

func (w *recordingWriter) Inject(message string) error {
	w.messages = append(w.messages, message)
	return nil
}

func alwaysIdleController() *Controller {
	return &Controller{tuning: Tuning{MinSilence: 0, LongSilence: 0}}
}

func neverIdleController() *Controller {
	return &Controller{tuning: Tuning{MinSilence: time.Hour, LongSilence: 2 * time.Hour}, lastTS: time.Now()}
}

func TestInjectorUrgentBypassesIdleness(t *testing.T) {
	w := &recordingWriter{}
	inj := NewInjector(w, neverIdleController(), "self", false, 50*time.Millisecond, nil)

	start := time.Now()
	inj.Deliver(Message{Sender: "o", Content: "!restart", Timestamp: time.Now()})
	if time.Since(start) > 20*time.Millisecond {
		t.Fatalf("expected urgent message to bypass the idle wait loop")
	}

	if len(w.messages) != 1 || w.messages[0] != "[From o]: restart" {
		t.Fatalf("got %+v", w.messages)
	}
}

func TestInjectorWaitsForIdleThenInjects(t *testing.T) {
	w := &recordingWriter{}
	inj := NewInjector(w, alwaysIdleController(), "self", false, 200*time.Millisecond, nil)
	inj.Deliver(Message{Sender: "o", Content: "hello", Timestamp: time.Now()})
	if len(w.messages) != 1 || w.messages[0] != "[From o]: hello" {
		t.Fatalf("got %+v", w.messages)
	}
}

func TestInjectorInjectsAnywayOnTimeout(t *testing.T) {
	w := &recordingWriter{}
	inj := NewInjector(w, neverIdleController(), "self", false, 60*time.Millisecond, nil)
	inj.Deliver(Message{Sender: "o", Content: "hello", Timestamp: time.Now()})
	if len(w.messages) != 1 {
		t.Fatalf("expected message injected anyway after timeout, got %+v", w.messages)
	}
}

func TestInjectorPauseQueuesAndResumeFlushesInOrder(t *testing.T) {
	w := &recordingWriter{}
	inj := NewInjector(w, alwaysIdleController(), "self", false, 50*time.Millisecond, nil)

	inj.Deliver(Message{Sender: "human", Content: "/pause", Timestamp: time.Now()})
	inj.Deliver(Message{Sender: "a", Content: "first", Timestamp: time.Now()})
	inj.Deliver(Message{Sender: "b", Content: "second", Timestamp: time.Now()})
	if len(w.messages) != 0 {
		t.Fatalf("expected no injections while paused, got %+v", w.messages)
	}

	inj.Deliver(Message{Sender: "human", Content: "/resume", Timestamp: time.Now()})
	if len(w.messages) != 2 || w.messages[0] != "[From a]: first" || w.messages[1] != "[From b]: second" {
		t.Fatalf("expected backlog flushed in order, got %+v", w.messages)
	}
}

func TestInjectorShareToggleDoesNotInject(t *testing.T) {
	w := &recordingWriter{}
	var enabled *bool
	inj := NewInjector(w, alwaysIdleController(), "self", false, 50*time.Millisecond, func(e bool) {
		enabled = &e
	})

	inj.Deliver(Message{Sender: "human", Content: "/share", Timestamp: time.Now()})
	if enabled == nil || !*enabled {
		t.Fatalf("expected share toggle callback invoked with true")
	}
	if len(w.messages) != 0 {
		t.Fatalf("expected /share to not be injected, got %+v", w.messages)
	}
}
