package sanitizer

import (
	"regexp"
	"strings"
	"time"
)

const (
	// HardMaxBuffer forces a flush regardless of other triggers.
	HardMaxBuffer = 8192
	// SoftThreshold triggers a flush once the buffer grows past it.
	SoftThreshold = 512
	// FlushInterval is the maximum time between flushes absent other triggers.
	FlushInterval = 200 * time.Millisecond
	// minCleanLength below this many characters, a batch is considered noise.
	minCleanLength = 10
	// minAlnumRatio below this ratio of alphanumeric characters, a batch is
	// considered redraw noise rather than meaningful text.
	minAlnumRatio = 0.3
)

// Stage-two cleanup regexes, ported from the original sidecar's
// _sanitize_stream (including the deliberately conservative
// semicolon-gated orphaned-parameter pattern; see DESIGN.md open question a).
var (
	reCSI            = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	reOSC            = regexp.MustCompile("\x1b\\][^\x07\x1b]*(?:\x07|\x1b\\\\)?")
	// The original Python pattern adds lookaround assertions
	// ((?<![a-zA-Z\x1b]) ... (?![a-zA-Z])) that Go's RE2 engine cannot
	// express; the semicolon requirement below is the load-bearing part
	// of the conservatism (see DESIGN.md open question a) and is kept.
	reOrphanedParams = regexp.MustCompile(`\d*;\d*[A-HJKSTfmsu]`)
	reDECPrivate     = regexp.MustCompile(`\?\d+[hl]`)
	reLoneEscape     = regexp.MustCompile("\x1b")
	reC0Controls     = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	reSpaces         = regexp.MustCompile(`[ \t]+`)
	reBlankLines     = regexp.MustCompile(`\n{3,}`)
)

// Clean applies the regex-based stage-two cleanup to text that has already
// passed through the streaming stage-one sanitizer.
func Clean(text string) string {
	text = reCSI.ReplaceAllString(text, "")
	text = reOSC.ReplaceAllString(text, "")
	text = reOrphanedParams.ReplaceAllString(text, "")
	text = reDECPrivate.ReplaceAllString(text, "")
	text = reLoneEscape.ReplaceAllString(text, "")
	text = reC0Controls.ReplaceAllString(text, "")
	text = reSpaces.ReplaceAllString(text, " ")
	text = reBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// PassesQualityGate reports whether cleaned text is worth sending upstream:
// long enough, and not dominated by redraw noise.
func PassesQualityGate(cleaned string) bool {
	if len(strings.TrimSpace(cleaned)) < minCleanLength {
		return false
	}
	alnum := 0
	total := 0
	for _, r := range cleaned {
		total++
		if isAlnum(r) {
			alnum++
		}
	}
	if total == 0 || alnum == 0 {
		return false
	}
	return float64(alnum)/float64(total) >= minAlnumRatio
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Buffer accumulates cleaned text since the last flush and decides when to
// flush per the size/time/boundary policy in spec.md §4.2.
type Buffer struct {
	text      strings.Builder
	lastFlush time.Time
}

// NewBuffer returns an empty output buffer.
func NewBuffer() *Buffer {
	return &Buffer{lastFlush: time.Now()}
}

// Append adds cleaned text to the buffer and reports whether a semantic
// boundary (newline, or sentence end) was just seen.
func (b *Buffer) Append(cleanChunk string) (boundary bool) {
	b.text.WriteString(cleanChunk)
	return strings.Contains(cleanChunk, "\n") || strings.Contains(cleanChunk, ". ")
}

// Len returns the number of buffered characters.
func (b *Buffer) Len() int {
	return b.text.Len()
}

// ShouldFlush decides whether to flush now given the boundary flag just
// observed on the latest append.
func (b *Buffer) ShouldFlush(boundary bool) bool {
	if b.text.Len() >= HardMaxBuffer {
		return true
	}
	if boundary {
		return true
	}
	if b.text.Len() >= SoftThreshold {
		return true
	}
	return time.Since(b.lastFlush) >= FlushInterval
}

// Flush drains and resets the buffer, returning whatever had accumulated.
func (b *Buffer) Flush() string {
	text := b.text.String()
	b.text.Reset()
	b.lastFlush = time.Now()
	return text
}
