// Package player implements the playback controller: the stream session
// state machine, the absolute-time model, the subtitle cue store, and the
// language negotiator that together drive one media element against the
// streaming server.
package player

import "math"

// Timeline reconciles stream-relative time with absolute movie time. Every
// stream the server hands out starts at second zero of the HTTP response even
// when it represents the middle of the movie, so absolute time is always
// the session's resolved start plus the element's own clock. Keeping both
// values in one type makes the offset impossible to update without resetting
// the elapsed clock alongside it.
type Timeline struct {
	start   float64
	elapsed float64
}

// Reset begins a new session at the given resolved start offset. The elapsed
// clock drops to zero, so Absolute() equals start until the element reports
// its first time update.
func (t *Timeline) Reset(start float64) {
	t.start = start
	t.elapsed = 0
}

// SetElapsed records the element's current session-relative clock.
func (t *Timeline) SetElapsed(elapsed float64) {
	if elapsed < 0 || math.IsNaN(elapsed) {
		elapsed = 0
	}
	t.elapsed = elapsed
}

// Start returns the session's resolved start offset.
func (t *Timeline) Start() float64 { return t.start }

// Absolute returns the current position in movie time.
func (t *Timeline) Absolute() float64 { return t.start + t.elapsed }

// Progress returns playback position as a fraction of the total duration,
// clamped to [0, 1]. An unknown duration yields 0, never NaN.
func (t *Timeline) Progress(duration float64) float64 {
	return t.fraction(t.Absolute(), duration)
}

// Buffered returns how far ahead the element has buffered as a fraction of
// the total duration. bufferedEnd is session-relative, like the elapsed
// clock.
func (t *Timeline) Buffered(bufferedEnd, duration float64) float64 {
	if bufferedEnd < 0 || math.IsNaN(bufferedEnd) {
		bufferedEnd = 0
	}
	return t.fraction(t.start+bufferedEnd, duration)
}

func (t *Timeline) fraction(absolute, duration float64) float64 {
	if duration <= 0 || math.IsNaN(duration) {
		return 0
	}
	f := absolute / duration
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
