package player

// Element is the single persistent media surface the session manager drives.
// One element lives for the whole controller lifetime; reloads swap its
// source, never the element itself. The concrete implementation is the
// websocket bridge to the playback shell; tests use an in-process fake.
//
// All time values the element reports are session-relative: its clock starts
// at zero for every source it loads, regardless of where in the movie the
// stream actually begins.
type Element interface {
	// Load swaps the element's source URL. The element's clock resets to
	// zero and the element reports ready-to-play when enough data has
	// buffered.
	Load(url string)
	Play()
	Pause()
	// Detach stops playback and releases the current source so no fetch
	// keeps running after teardown.
	Detach()

	Playing() bool
	Ended() bool
	// CurrentTime is the element's session-relative clock in seconds.
	CurrentTime() float64
	// BufferedEnd is the session-relative end of the buffered range.
	BufferedEnd() float64

	SetVolume(v float64)
	SetMuted(muted bool)
	Volume() float64
	Muted() bool
}

// ElementEvents is implemented by the session manager; the element's owner
// feeds playback events into it.
type ElementEvents interface {
	// HandleCanPlay fires when the element has buffered enough to start.
	HandleCanPlay()
	// HandleTimeUpdate carries the element's session-relative clock.
	HandleTimeUpdate(elapsed float64)
	// HandleStalled fires when the element ran out of buffered data.
	HandleStalled()
	// HandleEnded fires when playback reached the end of the stream.
	HandleEnded()
}
