// Package sanitizer strips ANSI/control sequences from agent PTY output
// while tolerating sequences split across arbitrary read boundaries.
package sanitizer

// escState is the streaming sanitizer's state, per the two-state machine
// in the data model: normal text, or mid escape-sequence accumulation.
type escState int

const (
	stateNormal escState = iota
	stateInEscape
)

// Streaming is a stateful byte-level ANSI stripper. It consumes arbitrary
// chunks and emits pure text; a control sequence spanning a chunk boundary
// is coalesced across Process calls via the accumulator. Malformed
// sequences (no final byte ever arrives) degrade to dropped bytes rather
// than leaking the escape character into the output.
type Streaming struct {
	state escState
	accum []byte
}

// NewStreaming returns a sanitizer ready to process the first chunk.
func NewStreaming() *Streaming {
	return &Streaming{state: stateNormal}
}

// Process strips complete escape sequences from data and returns the
// remaining plain text. Sequences still open at the end of data are held
// in the accumulator until a terminator byte (or a fresh ESC, which
// discards the stale accumulator) arrives in a later call.
func (s *Streaming) Process(data []byte) string {
	out := make([]byte, 0, len(data))

	for _, b := range data {
		switch s.state {
		case stateNormal:
			if b == 0x1b { // ESC
				s.state = stateInEscape
				s.accum = []byte{b}
				continue
			}
			out = append(out, b)

		case stateInEscape:
			s.accum = append(s.accum, b)
			if len(s.accum) == 2 && b == '[' {
				// CSI introducer right after ESC, not a final byte.
				continue
			}
			if isTerminator(b) {
				// Complete sequence observed: discard it entirely.
				s.state = stateNormal
				s.accum = nil
				continue
			}
			if b == 0x1b {
				// A new escape started before the old one terminated -
				// the previous sequence was malformed. Drop it and
				// start tracking the new one (fail closed, never leak
				// the stale ESC bytes into output).
				s.accum = []byte{b}
			}
		}
	}

	return string(out)
}

// isTerminator reports whether b is a valid final byte for a CSI-style
// control sequence introducer (the 0x40-0x7e range used by the teacher's
// own stripANSI and by the original Python StreamCleaner).
func isTerminator(b byte) bool {
	return b >= 0x40 && b <= 0x7e
}
