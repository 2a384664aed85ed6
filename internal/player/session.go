package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"streamplayer/internal/domain"
	"streamplayer/internal/metrics"
)

// StreamSource is the slice of the media server client the session manager
// needs: deterministic URL construction and the keyframe probe.
type StreamSource interface {
	StreamURL(filename string, s domain.StreamSession) string
	KeyframeTime(ctx context.Context, filename string, start float64) (float64, error)
}

// ReloadRequest carries the parameters a reload may change. Nil fields keep
// the current session's value.
type ReloadRequest struct {
	Time       *float64
	Resolution *domain.Resolution
	AudioTrack *int
}

// Session owns the stream lifecycle for one loaded file: it builds the
// stream URL from (resolution, audio track, start), probes the server for a
// seekable keyframe in pass-through mode, and swaps the element's source
// while keeping absolute time consistent.
//
// States: Idle -> Loading -> Ready -> (Reloading) -> Ready -> ... with
// Disposed terminal. Every user-triggered change funnels through Reload.
type Session struct {
	source  StreamSource
	element Element
	logger  *slog.Logger

	mu       sync.Mutex
	filename string
	duration float64
	state    domain.SessionState
	current  domain.StreamSession
	timeline Timeline
	// token increments on every reload; a probe result carrying an older
	// token is discarded instead of overwriting newer state.
	token         uint64
	resumeOnReady bool
	stalled       bool
	ended         bool
}

func NewSession(source StreamSource, element Element, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		source:  source,
		element: element,
		logger:  logger,
		state:   domain.SessionIdle,
	}
}

// Open binds the session to a new file and loads the first stream.
func (s *Session) Open(ctx context.Context, filename string, duration float64, req ReloadRequest) error {
	s.mu.Lock()
	if s.state == domain.SessionDisposed {
		s.mu.Unlock()
		return domain.ErrDisposed
	}
	s.filename = filename
	s.duration = duration
	s.current = domain.StreamSession{Resolution: domain.ResolutionOriginal}
	s.timeline.Reset(0)
	s.ended = false
	s.stalled = false
	s.setStateLocked(domain.SessionIdle)
	s.mu.Unlock()

	return s.Reload(ctx, req)
}

// Reload is the single entry point for every stream change: seek, resolution
// switch, audio switch, resume-on-load, end-of-stream restart. It resolves
// the start offset (probing the keyframe index in pass-through mode), commits
// the new session, and only then swaps the element's source, so any time
// read during the swap already sees the new offset.
func (s *Session) Reload(ctx context.Context, req ReloadRequest) error {
	s.mu.Lock()
	if s.state == domain.SessionDisposed {
		s.mu.Unlock()
		return domain.ErrDisposed
	}

	wasPlaying := s.element.Playing()

	target := s.current.RequestedStart
	if req.Time != nil {
		target = *req.Time
	} else if s.state == domain.SessionReady || s.state == domain.SessionReloading {
		target = s.timeline.Absolute()
	}
	if target < 0 {
		target = 0
	}

	resolution := s.current.Resolution
	if req.Resolution != nil && req.Resolution.Valid() {
		resolution = *req.Resolution
	}
	audioTrack := s.current.AudioTrack
	if req.AudioTrack != nil {
		audioTrack = *req.AudioTrack
	}

	s.token++
	token := s.token
	filename := s.filename

	trigger := "seek"
	switch {
	case req.Resolution != nil && *req.Resolution != s.current.Resolution:
		trigger = "resolution"
	case req.AudioTrack != nil && *req.AudioTrack != s.current.AudioTrack:
		trigger = "audio"
	case s.state == domain.SessionIdle:
		trigger = "open"
	}
	metrics.ReloadsTotal.WithLabelValues(trigger).Inc()

	if s.state == domain.SessionIdle {
		s.setStateLocked(domain.SessionLoading)
	} else {
		s.setStateLocked(domain.SessionReloading)
	}
	s.mu.Unlock()

	// Keyframe alignment only matters in pass-through mode; transcoded
	// streams seek to arbitrary timestamps. The probe happens outside the
	// lock so a newer reload can supersede it.
	resolved := target
	if resolution.PassThrough() && target > 0 {
		probeStart := time.Now()
		actual, err := s.source.KeyframeTime(ctx, filename, target)
		metrics.KeyframeProbeDuration.Observe(time.Since(probeStart).Seconds())
		if err != nil {
			metrics.KeyframeProbesTotal.WithLabelValues("fallback").Inc()
			s.logger.Warn("keyframe probe failed, using requested time",
				slog.String("filename", filename),
				slog.Float64("target", target),
				slog.String("error", err.Error()))
		} else {
			metrics.KeyframeProbesTotal.WithLabelValues("ok").Inc()
			resolved = actual
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != token {
		// A newer reload superseded this one while the probe was in
		// flight; its state is already committed and must win.
		metrics.KeyframeProbesTotal.WithLabelValues("stale").Inc()
		return nil
	}
	if s.state == domain.SessionDisposed {
		return domain.ErrDisposed
	}

	s.current = domain.StreamSession{
		Resolution:     resolution,
		AudioTrack:     audioTrack,
		RequestedStart: target,
		ResolvedStart:  resolved,
		Token:          token,
	}
	// Offset committed before the source swap. The element's clock restarts
	// at zero against the new stream, so absolute time is consistent from
	// this point on.
	s.timeline.Reset(resolved)
	s.ended = false
	s.stalled = false
	s.resumeOnReady = wasPlaying
	s.element.Load(s.source.StreamURL(filename, s.current))
	return nil
}

// HandleCanPlay implements ElementEvents.
func (s *Session) HandleCanPlay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionLoading && s.state != domain.SessionReloading {
		s.stalled = false
		return
	}
	s.stalled = false
	s.setStateLocked(domain.SessionReady)
	if s.resumeOnReady {
		s.resumeOnReady = false
		s.element.Play()
	}
}

// HandleTimeUpdate implements ElementEvents.
func (s *Session) HandleTimeUpdate(elapsed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionDisposed {
		return
	}
	s.timeline.SetElapsed(elapsed)
	s.stalled = false
}

// HandleStalled implements ElementEvents. A stall is transient buffering,
// not an error state; the session stays Ready and reports buffering until
// the element recovers.
func (s *Session) HandleStalled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionDisposed {
		return
	}
	s.stalled = true
}

// HandleEnded implements ElementEvents.
func (s *Session) HandleEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionDisposed {
		return
	}
	s.ended = true
}

// Dispose stops playback and detaches the element's source. The session
// accepts no further reloads; a probe still in flight commits nothing.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionDisposed {
		return
	}
	s.token++
	s.setStateLocked(domain.SessionDisposed)
	s.element.Detach()
}

// Absolute returns the current position in movie time.
func (s *Session) Absolute() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Absolute()
}

// Progress returns playback position as a fraction of total duration.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Progress(s.duration)
}

// Buffered returns the buffered fraction of total duration.
func (s *Session) Buffered() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Buffered(s.element.BufferedEnd(), s.duration)
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the committed stream session parameters.
func (s *Session) Current() domain.StreamSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Duration returns the loaded file's total duration in seconds.
func (s *Session) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// Filename returns the loaded file's identifier.
func (s *Session) Filename() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filename
}

// Stalled reports whether the element is waiting on buffered data.
func (s *Session) Stalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stalled
}

// Ended reports whether playback reached the end of the stream.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Session) setStateLocked(next domain.SessionState) {
	if next == s.state {
		return
	}
	metrics.SessionStateTransitionsTotal.WithLabelValues(s.state.String(), next.String()).Inc()
	s.state = next
}
