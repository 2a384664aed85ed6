package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"streamplayer/internal/metrics"
	"streamplayer/internal/player"
)

// shellCommand is a daemon-to-shell instruction. Generation is set on load
// commands; the shell echoes it on every event for that stream.
type shellCommand struct {
	Type       string  `json:"type"`
	URL        string  `json:"url,omitempty"`
	Volume     float64 `json:"volume,omitempty"`
	Muted      bool    `json:"muted,omitempty"`
	Generation uint64  `json:"generation,omitempty"`
}

// shellEvent is a shell-to-daemon playback notification.
type shellEvent struct {
	Type       string  `json:"type"`
	Time       float64 `json:"time,omitempty"`
	Buffered   float64 `json:"buffered,omitempty"`
	Generation uint64  `json:"generation,omitempty"`
}

// ShellElement implements player.Element over a websocket to the playback
// shell, the process that renders the actual video. The daemon keeps a
// mirror of the shell's playback state so controller reads never block on
// the socket, and replays the current source to a shell that reconnects.
type ShellElement struct {
	logger *slog.Logger

	// writeMu serializes socket writes; gorilla allows one writer at a
	// time.
	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	events  player.ElementEvents
	// gen increments on every source change; an event echoing an older
	// generation belongs to a replaced stream and is dropped.
	gen     uint64
	url     string
	playing bool
	ended   bool
	current float64
	bufEnd  float64
	volume  float64
	muted   bool
}

func NewShellElement(logger *slog.Logger) *ShellElement {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShellElement{logger: logger, volume: 1}
}

// SetEvents wires the session manager in as the playback event sink. Must be
// called before a shell connects.
func (e *ShellElement) SetEvents(events player.ElementEvents) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = events
}

func (e *ShellElement) Load(url string) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.url = url
	e.playing = false
	e.ended = false
	e.current = 0
	e.bufEnd = 0
	e.mu.Unlock()
	e.send(shellCommand{Type: "load", URL: url, Generation: gen})
}

func (e *ShellElement) Play() {
	e.mu.Lock()
	e.playing = true
	e.ended = false
	e.mu.Unlock()
	e.send(shellCommand{Type: "play"})
}

func (e *ShellElement) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	e.send(shellCommand{Type: "pause"})
}

func (e *ShellElement) Detach() {
	e.mu.Lock()
	e.gen++
	e.url = ""
	e.playing = false
	e.mu.Unlock()
	e.send(shellCommand{Type: "detach"})
}

func (e *ShellElement) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = v
	e.mu.Unlock()
	e.send(shellCommand{Type: "set_volume", Volume: v})
}

func (e *ShellElement) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
	e.send(shellCommand{Type: "set_muted", Muted: muted})
}

func (e *ShellElement) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *ShellElement) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *ShellElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *ShellElement) BufferedEnd() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bufEnd
}

func (e *ShellElement) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *ShellElement) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *ShellElement) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

// ServeShell upgrades the shell connection. Only one shell is active at a
// time; a new connection replaces the previous one and receives the current
// source so playback survives shell restarts.
func (e *ShellElement) ServeShell(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Error("shell upgrade failed", slog.String("error", err.Error()))
		return
	}

	e.mu.Lock()
	if e.conn != nil {
		_ = e.conn.Close()
	}
	e.conn = conn
	gen := e.gen
	url := e.url
	volume := e.volume
	muted := e.muted
	e.mu.Unlock()

	metrics.ShellConnected.Set(1)
	e.logger.Info("shell connected", slog.String("clientIP", clientIP(r)))

	// Re-sync a reconnecting shell with the current state.
	e.send(shellCommand{Type: "set_volume", Volume: volume})
	e.send(shellCommand{Type: "set_muted", Muted: muted})
	if url != "" {
		e.send(shellCommand{Type: "load", URL: url, Generation: gen})
	}

	e.readLoop(conn)

	e.mu.Lock()
	if e.conn == conn {
		e.conn = nil
		metrics.ShellConnected.Set(0)
	}
	e.mu.Unlock()
	_ = conn.Close()
	e.logger.Info("shell disconnected")
}

func (e *ShellElement) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var event shellEvent
		if err := json.Unmarshal(data, &event); err != nil {
			e.logger.Debug("shell event decode failed", slog.String("error", err.Error()))
			continue
		}
		e.handleEvent(event)
	}
}

func (e *ShellElement) handleEvent(event shellEvent) {
	e.mu.Lock()
	// An event from before the latest source swap must not touch the new
	// stream's state. The shell echoes the generation of the load command
	// it is currently playing.
	if event.Generation != e.gen {
		e.mu.Unlock()
		e.logger.Debug("dropping shell event from replaced stream",
			slog.String("type", event.Type),
			slog.Uint64("generation", event.Generation))
		return
	}
	events := e.events
	switch event.Type {
	case "canplay":
	case "timeupdate":
		e.current = event.Time
		if event.Buffered > 0 {
			e.bufEnd = event.Buffered
		}
	case "playing":
		e.playing = true
		e.ended = false
	case "paused":
		e.playing = false
	case "ended":
		e.playing = false
		e.ended = true
	case "stalled":
	default:
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if events == nil {
		return
	}
	switch event.Type {
	case "canplay":
		events.HandleCanPlay()
	case "timeupdate":
		events.HandleTimeUpdate(event.Time)
	case "stalled":
		events.HandleStalled()
	case "ended":
		events.HandleEnded()
	}
}

func (e *ShellElement) send(cmd shellCommand) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		e.logger.Debug("shell write failed", slog.String("error", err.Error()))
	}
}
