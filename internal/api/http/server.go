package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"streamplayer/internal/domain"
	"streamplayer/internal/mediaserver"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PlayerController is the playback surface the transport drives. The concrete
// implementation lives in internal/player.
type PlayerController interface {
	Load(ctx context.Context, filename, imdbID, preference string, startAt float64, resolution domain.Resolution) error
	TogglePlay(ctx context.Context) error
	SeekFraction(ctx context.Context, fraction float64) error
	SeekTo(ctx context.Context, seconds float64) error
	SetResolution(ctx context.Context, r domain.Resolution) error
	SetAudioTrack(ctx context.Context, index int) error
	SetSubtitle(index int)
	SubtitleTracks() []domain.SubtitleTrack
	SearchRemoteSubtitles(ctx context.Context, languages []string) ([]mediaserver.RemoteSubtitle, error)
	AddRemoteSubtitle(ctx context.Context, result mediaserver.RemoteSubtitle) (int, error)
	SetVolume(v float64)
	ToggleMute()
	ToggleFullscreen()
	HandleKey(ctx context.Context, key string, inTextInput bool)
	PointerMoved()
	Snapshot() domain.PlayerSnapshot
}

type SettingsController interface {
	Current() domain.PlayerSettings
	Update(fn func(*domain.PlayerSettings)) error
}

type WatchHistoryStore interface {
	ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error)
}

// ResumeProvider reports the saved playback position for a file, or 0 when
// there is nothing to resume.
type ResumeProvider interface {
	Resume(ctx context.Context, filename string) float64
}

type Server struct {
	player         PlayerController
	settings       SettingsController
	history        WatchHistoryStore
	resume         ResumeProvider
	shell          *ShellElement
	allowedOrigins []string
	snapshotEvery  time.Duration
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
	done           chan struct{}
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithSettings(ctrl SettingsController) ServerOption {
	return func(s *Server) {
		s.settings = ctrl
	}
}

func WithWatchHistory(store WatchHistoryStore) ServerOption {
	return func(s *Server) {
		s.history = store
	}
}

func WithResume(provider ResumeProvider) ServerOption {
	return func(s *Server) {
		s.resume = provider
	}
}

func WithShell(shell *ShellElement) ServerOption {
	return func(s *Server) {
		s.shell = shell
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithSnapshotInterval overrides how often the player snapshot is pushed to
// UI clients.
func WithSnapshotInterval(interval time.Duration) ServerOption {
	return func(s *Server) {
		s.snapshotEvery = interval
	}
}

func NewServer(player PlayerController, opts ...ServerOption) *Server {
	s := &Server{
		player:        player,
		snapshotEvery: 500 * time.Millisecond,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.settings == nil {
		s.settings = noopSettings{}
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()
	go s.snapshotLoop()

	mux := http.NewServeMux()
	mux.HandleFunc("/player/load", s.handlePlayerLoad)
	mux.HandleFunc("/player/command", s.handlePlayerCommand)
	mux.HandleFunc("/player/state", s.handlePlayerState)
	mux.HandleFunc("/player/subtitles", s.handleSubtitles)
	mux.HandleFunc("/player/subtitles/", s.handleSubtitles)
	mux.HandleFunc("/settings/player", s.handlePlayerSettings)
	mux.HandleFunc("/watch-history", s.handleWatchHistory)
	mux.HandleFunc("/internal/health/player", s.handlePlayerHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws/ui", s.handleUIWS)
	mux.HandleFunc("/ws/shell", s.handleShellWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "player-agent",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/internal/health/player" && !strings.HasPrefix(p, "/ws/")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleUIWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

func (s *Server) handleShellWS(w http.ResponseWriter, r *http.Request) {
	if s.shell == nil {
		http.Error(w, "shell not available", http.StatusServiceUnavailable)
		return
	}
	s.shell.ServeShell(w, r)
}

func (s *Server) shellConnected() bool {
	if s.shell == nil {
		return false
	}
	return s.shell.Connected()
}

// snapshotLoop pushes the player snapshot to UI clients on a fixed cadence.
// The snapshot is cheap to build, so pushing unconditionally beats tracking
// dirty state across the controller.
func (s *Server) snapshotLoop() {
	ticker := time.NewTicker(s.snapshotEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.wsHub.BroadcastSnapshot(s.player.Snapshot())
		}
	}
}

// Close stops the snapshot loop and disconnects all WebSocket clients.
func (s *Server) Close() {
	close(s.done)
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

// noopSettings keeps the handlers nil-safe when no settings manager is wired.
type noopSettings struct{}

func (noopSettings) Current() domain.PlayerSettings { return domain.DefaultPlayerSettings() }

func (noopSettings) Update(fn func(*domain.PlayerSettings)) error { return nil }
