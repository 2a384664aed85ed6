package domain

// StreamSession describes the parameters of the currently loaded stream.
// Exactly one session is current at a time; a reload replaces it wholesale.
type StreamSession struct {
	Resolution     Resolution `json:"resolution"`
	AudioTrack     int        `json:"audio_track"`
	RequestedStart float64    `json:"requested_start"`
	// ResolvedStart is the server-confirmed seekable offset. It equals
	// RequestedStart unless pass-through mode snapped it back to the
	// nearest prior keyframe.
	ResolvedStart float64 `json:"resolved_start"`
	// Token increases monotonically with every reload. Late keyframe-probe
	// responses carrying a stale token are discarded.
	Token uint64 `json:"-"`
}

// SessionState is the lifecycle of the stream session manager.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionLoading
	SessionReady
	SessionReloading
	SessionDisposed
)

var sessionStateNames = [...]string{"idle", "loading", "ready", "reloading", "disposed"}

func (s SessionState) String() string {
	if int(s) < len(sessionStateNames) {
		return sessionStateNames[s]
	}
	return "unknown"
}

// PlayerSnapshot is the externally visible player state, broadcast to UI
// clients and returned by the state endpoint.
type PlayerSnapshot struct {
	Filename      string     `json:"filename"`
	State         string     `json:"state"`
	Playing       bool       `json:"playing"`
	AbsoluteTime  float64    `json:"absolute_time"`
	Duration      float64    `json:"duration"`
	Progress      float64    `json:"progress"`
	Buffered      float64    `json:"buffered"`
	Resolution    Resolution `json:"resolution"`
	AudioTrack    int        `json:"audio_track"`
	SubtitleTrack int        `json:"subtitle_track"` // -1 when off
	Volume        float64    `json:"volume"`
	Muted         bool       `json:"muted"`
	Fullscreen    bool       `json:"fullscreen"`
	ControlsShown bool       `json:"controls_shown"`
	Caption       string     `json:"caption,omitempty"`
}
