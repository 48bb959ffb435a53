package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestListenerWSURLMapsSchemeAndAddsToken(t *testing.T) {
	client := NewClient("http://example.com:8765", "secret")
	l := NewListener(client, "agent", make(chan struct{}), func(InboxMessage) {})

	got := l.wsURL()
	if !strings.HasPrefix(got, "ws://example.com:8765/ws") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "token=secret") {
		t.Fatalf("expected token query param, got %q", got)
	}
}

func TestListenerWSURLHandlesTLSScheme(t *testing.T) {
	client := NewClient("https://example.com", "tok")
	l := NewListener(client, "agent", make(chan struct{}), func(InboxMessage) {})

	got := l.wsURL()
	if !strings.HasPrefix(got, "wss://example.com/ws") {
		t.Fatalf("got %q", got)
	}
}

func TestPollUntilRetryDeliversMatchingMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]InboxMessage{
			{From: "a", To: "agent", Content: "for-me"},
			{From: "b", To: "broadcast", Content: "for-everyone"},
			{From: "c", To: "someone-else", Content: "not-for-me"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok")
	var delivered []string
	done := make(chan struct{})
	l := NewListener(client, "agent", done, func(msg InboxMessage) {
		delivered = append(delivered, msg.Content)
	})

	// pollUntilRetry runs until wsRetryCadence elapses; exercise one pass
	// by closing done shortly after the first poll can complete.
	go func() {
		time.Sleep(PollInterval + 50*time.Millisecond)
		close(done)
	}()
	l.pollUntilRetry()

	if len(delivered) < 2 {
		t.Fatalf("expected at least the two matching messages delivered, got %+v", delivered)
	}
	for _, content := range delivered {
		if content == "not-for-me" {
			t.Fatalf("delivered a message not addressed to this agent: %+v", delivered)
		}
	}
}

func TestBackoffAndRetrySequenceThenResetOnSuccess(t *testing.T) {
	// done is pre-closed so backoffAndRetry's select returns immediately
	// via the done branch instead of actually sleeping out the backoff -
	// this exercises the wait-doubling/cap/attempt-count bookkeeping
	// (spec.md §8 "Backoff monotonicity", scenario 6) without the test
	// taking the real 1+2+4+8+10=25s wall-clock time.
	done := make(chan struct{})
	close(done)
	l := &Listener{done: done, wait: initialReconnectWait}

	wantDelays := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second,
	}
	wantContinue := []bool{true, true, true, true, false}

	for i, wantDelay := range wantDelays {
		usedDelay := l.wait
		continueRetry := l.backoffAndRetry()
		if usedDelay != wantDelay {
			t.Fatalf("failure %d used backoff %v, want %v", i+1, usedDelay, wantDelay)
		}
		if continueRetry != wantContinue[i] {
			t.Fatalf("failure %d: continueRetry = %v, want %v", i+1, continueRetry, wantContinue[i])
		}
	}
	if l.wait != maxReconnectWait {
		t.Fatalf("expected wait capped at %v, got %v", maxReconnectWait, l.wait)
	}

	l.resetBackoff()
	if l.attempts != 0 || l.wait != initialReconnectWait {
		t.Fatalf("expected reset state after a successful connect, got attempts=%d wait=%v", l.attempts, l.wait)
	}
}
