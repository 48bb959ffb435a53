package gateway

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// PollInterval is the HTTP polling cadence used while the push connection
// is unavailable (spec.md §4.4: "GET /inbox/<agentId> every 100 ms").
const PollInterval = 100 * time.Millisecond

const (
	maxReconnectAttempts = 5
	initialReconnectWait = 1 * time.Second
	maxReconnectWait     = 10 * time.Second
	wsRetryCadence       = 5 * time.Second
)

// Listener delivers inbound inbox messages to the sidecar for injection,
// alternating between a WebSocket push connection and HTTP polling
// fallback, per spec.md §4.4.
type Listener struct {
	client  *Client
	agentID string
	dialer  *websocket.Dialer

	deliver func(InboxMessage)
	done    <-chan struct{}
	stopped chan struct{}

	// attempts/wait track consecutive connect failures across dial calls
	// (spec.md §8 "Backoff monotonicity"): each failed dial or dropped
	// connection grows wait, capped at maxReconnectWait; any successful
	// connect resets both.
	attempts int
	wait     time.Duration
}

// NewListener returns a listener that calls deliver for every inbox
// message addressed to agentID or "broadcast". done signals shutdown.
func NewListener(client *Client, agentID string, done <-chan struct{}, deliver func(InboxMessage)) *Listener {
	return &Listener{
		client:  client,
		agentID: agentID,
		dialer:  websocket.DefaultDialer,
		deliver: deliver,
		done:    done,
		stopped: make(chan struct{}),
		wait:    initialReconnectWait,
	}
}

// Stopped is closed once Run has returned, i.e. once the transport thread
// has actually exited rather than merely been asked to. Callers join the
// transport thread by selecting on this channel (spec.md §4.1 "Teardown
// ordering", §5 "Cancellation": bounded 2s join).
func (l *Listener) Stopped() <-chan struct{} {
	return l.stopped
}

// Run drives the listener until done is closed. It is meant to run in its
// own goroutine for the lifetime of the sidecar.
func (l *Listener) Run() {
	defer close(l.stopped)

	for {
		select {
		case <-l.done:
			fmt.Fprintln(os.Stderr, "Gateway listener thread exiting")
			return
		default:
		}

		conn, err := l.dial()
		if err != nil {
			fmt.Fprintf(os.Stderr, "[CSP] WebSocket connection failed: %v\n", err)
			if l.backoffAndRetry() {
				continue
			}
			if l.pollUntilRetry() {
				continue
			}
			return
		}

		l.resetBackoff()
		if shuttingDown := l.listen(conn); shuttingDown {
			return
		}
		if !l.backoffAndRetry() {
			if l.pollUntilRetry() {
				continue
			}
			return
		}
	}
}

// backoffAndRetry records one connect failure, sleeps the current backoff
// (waking early if shutdown is requested), doubles it (capped), and
// reports whether the attempt budget remains - false once
// maxReconnectAttempts consecutive failures have accumulated, signalling
// the caller to switch to polling fallback instead of redialing.
func (l *Listener) backoffAndRetry() bool {
	l.attempts++
	select {
	case <-time.After(l.wait):
	case <-l.done:
	}
	l.wait *= 2
	if l.wait > maxReconnectWait {
		l.wait = maxReconnectWait
	}
	return l.attempts < maxReconnectAttempts
}

// resetBackoff restores backoff state after a successful connect.
func (l *Listener) resetBackoff() {
	l.attempts = 0
	l.wait = initialReconnectWait
}

func (l *Listener) wsURL() string {
	wsURL := strings.Replace(l.client.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws"

	if l.client.authToken == "" {
		return wsURL
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return wsURL
	}
	q := u.Query()
	q.Set("token", l.client.authToken)
	u.RawQuery = q.Encode()
	return u.String()
}

func (l *Listener) dial() (*websocket.Conn, error) {
	target := l.wsURL()
	fmt.Fprintf(os.Stderr, "[CSP] Attempting WebSocket connection to %s\n", target)
	conn, _, err := l.dialer.Dial(target, nil)
	return conn, err
}

// listen runs the read loop for one WebSocket connection until it closes
// or shutdown is requested. conn.ReadMessage blocks until a frame or a
// connection error arrives, so a watcher goroutine closes conn as soon as
// done fires to unblock the read rather than waiting for it to time out
// on its own. The caller (Run) is responsible for backoff once listen
// returns normally (connection dropped, not shutdown).
func (l *Listener) listen(conn *websocket.Conn) (shuttingDown bool) {
	fmt.Fprintf(os.Stderr, "[CSP] WebSocket connected for agent %s\n", l.agentID)
	defer conn.Close()

	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-l.done:
			conn.Close()
		case <-watcherDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
				return true
			default:
			}
			fmt.Fprintf(os.Stderr, "[CSP] WebSocket disconnected, will retry\n")
			return false
		}

		var msg InboxMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Fprintf(os.Stderr, "[CSP] Invalid WebSocket message: %v\n", err)
			continue
		}
		if msg.To == l.agentID || msg.To == "broadcast" {
			l.deliver(msg)
		}
	}
}

// pollUntilRetry polls the HTTP inbox endpoint until it is time to retry
// the WebSocket connection. Returns false if done fired meanwhile.
func (l *Listener) pollUntilRetry() bool {
	fmt.Fprintf(os.Stderr, "[CSP] Using HTTP polling fallback for agent %s\n", l.agentID)
	deadline := time.Now().Add(wsRetryCadence)

	for time.Now().Before(deadline) {
		select {
		case <-l.done:
			return false
		default:
		}

		messages, err := l.client.PollInbox(l.agentID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[CSP] %v\n", err)
			time.Sleep(1 * time.Second)
			continue
		}
		for _, msg := range messages {
			if msg.To == l.agentID || msg.To == "broadcast" || msg.To == "" {
				l.deliver(msg)
			}
		}
		time.Sleep(PollInterval)
	}
	return true
}
