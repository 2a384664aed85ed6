package player

import "testing"

func TestTimelineAbsoluteEqualsStartAfterReset(t *testing.T) {
	var tl Timeline
	tl.SetElapsed(42.5)

	tl.Reset(1800)

	if got := tl.Absolute(); got != 1800 {
		t.Errorf("Absolute() = %v, want 1800 right after reset", got)
	}
	tl.SetElapsed(12.25)
	if got := tl.Absolute(); got != 1812.25 {
		t.Errorf("Absolute() = %v, want 1812.25", got)
	}
}

func TestTimelineProgressUnknownDuration(t *testing.T) {
	var tl Timeline
	tl.Reset(300)
	tl.SetElapsed(10)

	if got := tl.Progress(0); got != 0 {
		t.Errorf("Progress(0) = %v, want 0", got)
	}
	if got := tl.Buffered(5, 0); got != 0 {
		t.Errorf("Buffered with zero duration = %v, want 0", got)
	}
}

func TestTimelineProgressClamped(t *testing.T) {
	var tl Timeline
	tl.Reset(95)
	tl.SetElapsed(20)

	if got := tl.Progress(100); got != 1 {
		t.Errorf("Progress = %v, want clamp to 1", got)
	}
}

func TestTimelineBufferedRelativeToStart(t *testing.T) {
	var tl Timeline
	tl.Reset(100)

	if got := tl.Buffered(50, 200); got != 0.75 {
		t.Errorf("Buffered = %v, want 0.75", got)
	}
	if got := tl.Buffered(-3, 200); got != 0.5 {
		t.Errorf("Buffered with negative end = %v, want 0.5", got)
	}
}

func TestTimelineRejectsNegativeElapsed(t *testing.T) {
	var tl Timeline
	tl.Reset(10)
	tl.SetElapsed(-5)

	if got := tl.Absolute(); got != 10 {
		t.Errorf("Absolute() = %v, want 10", got)
	}
}
