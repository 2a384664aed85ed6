package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"streamplayer/internal/domain"
	"streamplayer/internal/mediaserver"
)

type fakePlayer struct {
	loadCalled     int
	loadFilename   string
	loadIMDBID     string
	loadPreference string
	loadStart      float64
	loadResolution domain.Resolution
	loadErr        error

	toggleCalled     int
	seekFraction     float64
	seekTime         float64
	setResolution    domain.Resolution
	setAudio         int
	setSubtitle      int
	volume           float64
	muteCalled       int
	fullscreenCalled int
	keys             []string
	pointerCalled    int

	tracks        []domain.SubtitleTrack
	searchResults []mediaserver.RemoteSubtitle
	searchErr     error
	searchCalled  int
	addIndex      int
	addErr        error
	added         []mediaserver.RemoteSubtitle

	snapshot domain.PlayerSnapshot
}

func (f *fakePlayer) Load(ctx context.Context, filename, imdbID, preference string, startAt float64, resolution domain.Resolution) error {
	f.loadCalled++
	f.loadFilename = filename
	f.loadIMDBID = imdbID
	f.loadPreference = preference
	f.loadStart = startAt
	f.loadResolution = resolution
	return f.loadErr
}

func (f *fakePlayer) TogglePlay(ctx context.Context) error {
	f.toggleCalled++
	return nil
}

func (f *fakePlayer) SeekFraction(ctx context.Context, fraction float64) error {
	f.seekFraction = fraction
	return nil
}

func (f *fakePlayer) SeekTo(ctx context.Context, seconds float64) error {
	f.seekTime = seconds
	return nil
}

func (f *fakePlayer) SetResolution(ctx context.Context, r domain.Resolution) error {
	f.setResolution = r
	return nil
}

func (f *fakePlayer) SetAudioTrack(ctx context.Context, index int) error {
	f.setAudio = index
	return nil
}

func (f *fakePlayer) SetSubtitle(index int) {
	f.setSubtitle = index
}

func (f *fakePlayer) SubtitleTracks() []domain.SubtitleTrack {
	return f.tracks
}

func (f *fakePlayer) SearchRemoteSubtitles(ctx context.Context, languages []string) ([]mediaserver.RemoteSubtitle, error) {
	f.searchCalled++
	return f.searchResults, f.searchErr
}

func (f *fakePlayer) AddRemoteSubtitle(ctx context.Context, result mediaserver.RemoteSubtitle) (int, error) {
	f.added = append(f.added, result)
	return f.addIndex, f.addErr
}

func (f *fakePlayer) SetVolume(v float64) { f.volume = v }

func (f *fakePlayer) ToggleMute() { f.muteCalled++ }

func (f *fakePlayer) ToggleFullscreen() { f.fullscreenCalled++ }

func (f *fakePlayer) HandleKey(ctx context.Context, key string, inTextInput bool) {
	f.keys = append(f.keys, key)
}

func (f *fakePlayer) PointerMoved() { f.pointerCalled++ }

func (f *fakePlayer) Snapshot() domain.PlayerSnapshot { return f.snapshot }

type fakeSettingsController struct {
	current   domain.PlayerSettings
	updateErr error
}

func (f *fakeSettingsController) Current() domain.PlayerSettings { return f.current }

func (f *fakeSettingsController) Update(fn func(*domain.PlayerSettings)) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	fn(&f.current)
	return nil
}

type fakeHistoryStore struct {
	positions []domain.WatchPosition
	err       error
	limit     int
}

func (f *fakeHistoryStore) ListRecent(ctx context.Context, limit int) ([]domain.WatchPosition, error) {
	f.limit = limit
	return f.positions, f.err
}

type fakeResumeProvider struct {
	position float64
	filename string
}

func (f *fakeResumeProvider) Resume(ctx context.Context, filename string) float64 {
	f.filename = filename
	return f.position
}

// newTestServer pushes the snapshot broadcast far out so the loop never
// reads the fake player while a test mutates it.
func newTestServer(player *fakePlayer, opts ...ServerOption) *Server {
	opts = append([]ServerOption{WithSnapshotInterval(time.Hour)}, opts...)
	return NewServer(player, opts...)
}

func postJSON(t *testing.T, server *Server, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func TestPlayerLoad(t *testing.T) {
	player := &fakePlayer{snapshot: domain.PlayerSnapshot{Filename: "movie.mkv", State: "loading"}}
	settings := &fakeSettingsController{current: domain.PlayerSettings{
		Volume:            1,
		PreferredLanguage: "fr",
		DefaultResolution: domain.Resolution720,
	}}
	server := newTestServer(player, WithSettings(settings))
	defer server.Close()

	w := postJSON(t, server, "/player/load", `{"filename":"movie.mkv","imdb_id":"tt0133093","start":42.5}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if player.loadCalled != 1 {
		t.Fatalf("load not called")
	}
	if player.loadFilename != "movie.mkv" || player.loadIMDBID != "tt0133093" {
		t.Fatalf("load args: %q %q", player.loadFilename, player.loadIMDBID)
	}
	if player.loadPreference != "fr" || player.loadResolution != domain.Resolution720 {
		t.Fatalf("settings not passed: %q %q", player.loadPreference, player.loadResolution)
	}
	if player.loadStart != 42.5 {
		t.Fatalf("start = %v", player.loadStart)
	}
	if settings.current.LastFilename != "movie.mkv" {
		t.Fatalf("last filename not persisted")
	}

	var snap domain.PlayerSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Filename != "movie.mkv" {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
}

func TestPlayerLoadResumesSavedPosition(t *testing.T) {
	player := &fakePlayer{}
	resume := &fakeResumeProvider{position: 900}
	server := newTestServer(player, WithResume(resume))
	defer server.Close()

	w := postJSON(t, server, "/player/load", `{"filename":"movie.mkv","resume":true}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resume.filename != "movie.mkv" {
		t.Fatalf("resume lookup filename = %q", resume.filename)
	}
	if player.loadStart != 900 {
		t.Fatalf("start = %v, want saved position", player.loadStart)
	}
}

func TestPlayerLoadExplicitStartWinsOverResume(t *testing.T) {
	player := &fakePlayer{}
	resume := &fakeResumeProvider{position: 900}
	server := newTestServer(player, WithResume(resume))
	defer server.Close()

	postJSON(t, server, "/player/load", `{"filename":"movie.mkv","resume":true,"start":10}`)

	if player.loadStart != 10 {
		t.Fatalf("start = %v, want explicit start", player.loadStart)
	}
}

func TestPlayerLoadRequiresFilename(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(player)
	defer server.Close()

	w := postJSON(t, server, "/player/load", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if player.loadCalled != 0 {
		t.Fatalf("load called for empty filename")
	}
}

func TestPlayerLoadNotFound(t *testing.T) {
	player := &fakePlayer{loadErr: domain.ErrNotFound}
	server := newTestServer(player)
	defer server.Close()

	w := postJSON(t, server, "/player/load", `{"filename":"missing.mkv"}`)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPlayerCommandDispatch(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(player)
	defer server.Close()

	commands := []string{
		`{"action":"play_pause"}`,
		`{"action":"seek_fraction","fraction":0.5}`,
		`{"action":"seek","time":120}`,
		`{"action":"resolution","resolution":"720"}`,
		`{"action":"audio","index":2}`,
		`{"action":"subtitle","index":1}`,
		`{"action":"volume","value":0.3}`,
		`{"action":"mute"}`,
		`{"action":"fullscreen"}`,
		`{"action":"key","key":"f"}`,
		`{"action":"pointer"}`,
	}
	for _, body := range commands {
		if w := postJSON(t, server, "/player/command", body); w.Code != http.StatusOK {
			t.Fatalf("command %s: status = %d", body, w.Code)
		}
	}

	if player.toggleCalled != 1 {
		t.Fatalf("play_pause not dispatched")
	}
	if player.seekFraction != 0.5 || player.seekTime != 120 {
		t.Fatalf("seek not dispatched: %v %v", player.seekFraction, player.seekTime)
	}
	if player.setResolution != domain.Resolution720 || player.setAudio != 2 || player.setSubtitle != 1 {
		t.Fatalf("track commands not dispatched")
	}
	if player.volume != 0.3 || player.muteCalled != 1 || player.fullscreenCalled != 1 {
		t.Fatalf("volume commands not dispatched")
	}
	if len(player.keys) != 1 || player.keys[0] != "f" {
		t.Fatalf("key not dispatched: %v", player.keys)
	}
	if player.pointerCalled != 1 {
		t.Fatalf("pointer not dispatched")
	}
}

func TestPlayerCommandUnknownAction(t *testing.T) {
	server := newTestServer(&fakePlayer{})
	defer server.Close()

	w := postJSON(t, server, "/player/command", `{"action":"explode"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPlayerCommandDisposedSession(t *testing.T) {
	player := &fakePlayer{}
	server := newTestServer(player)
	defer server.Close()

	player.loadErr = domain.ErrDisposed
	w := postJSON(t, server, "/player/load", `{"filename":"movie.mkv"}`)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPlayerState(t *testing.T) {
	player := &fakePlayer{snapshot: domain.PlayerSnapshot{
		Filename: "movie.mkv",
		State:    "ready",
		Progress: 0.25,
	}}
	server := newTestServer(player)
	defer server.Close()

	req := httptest.NewRequest(http.MethodGet, "/player/state", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var snap domain.PlayerSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != "ready" || snap.Progress != 0.25 {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
}

func TestSubtitleList(t *testing.T) {
	player := &fakePlayer{tracks: []domain.SubtitleTrack{
		{Label: "English", Language: "en", Source: domain.SubtitleSource{EmbeddedIndex: 0}},
		{Label: "French (web)", Language: "fr", Source: domain.SubtitleSource{EmbeddedIndex: -1, RemoteURL: "http://subs/fr"}},
	}}
	server := newTestServer(player)
	defer server.Close()

	req := httptest.NewRequest(http.MethodGet, "/player/subtitles", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var tracks []subtitleTrackResponse
	if err := json.NewDecoder(w.Body).Decode(&tracks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("len = %d", len(tracks))
	}
	if tracks[0].Remote || !tracks[1].Remote {
		t.Fatalf("remote flags wrong: %+v", tracks)
	}
	if tracks[1].Index != 1 {
		t.Fatalf("index = %d", tracks[1].Index)
	}
}

func TestSubtitleSearchDegradesToEmptyList(t *testing.T) {
	player := &fakePlayer{searchErr: errors.New("provider down")}
	server := newTestServer(player)
	defer server.Close()

	w := postJSON(t, server, "/player/subtitles/search", `{"languages":["fr"]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var results []mediaserver.RemoteSubtitle
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty list, got %d", len(results))
	}
}

func TestSubtitleAdd(t *testing.T) {
	player := &fakePlayer{addIndex: 3}
	server := newTestServer(player)
	defer server.Close()

	w := postJSON(t, server, "/player/subtitles/add", `{"url":"http://subs/fr","language":"fr","release":"WEB"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(player.added) != 1 || player.added[0].URL != "http://subs/fr" {
		t.Fatalf("add args: %+v", player.added)
	}
	var resp map[string]int
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["index"] != 3 {
		t.Fatalf("index = %d", resp["index"])
	}
}

func TestSubtitleAddDownloadFailure(t *testing.T) {
	player := &fakePlayer{addErr: errors.New("download failed")}
	server := newTestServer(player)
	defer server.Close()

	w := postJSON(t, server, "/player/subtitles/add", `{"url":"http://subs/fr"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPlayerSettingsPatch(t *testing.T) {
	settings := &fakeSettingsController{current: domain.DefaultPlayerSettings()}
	server := newTestServer(&fakePlayer{}, WithSettings(settings))
	defer server.Close()

	req := httptest.NewRequest(http.MethodPatch, "/settings/player",
		bytes.NewReader([]byte(`{"volume":0.5,"preferred_language":"fr"}`)))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if settings.current.Volume != 0.5 || settings.current.PreferredLanguage != "fr" {
		t.Fatalf("settings not updated: %+v", settings.current)
	}
	if settings.current.DefaultResolution != domain.ResolutionOriginal {
		t.Fatalf("untouched field changed: %+v", settings.current)
	}
}

func TestPlayerSettingsRejectsUnknownResolution(t *testing.T) {
	settings := &fakeSettingsController{current: domain.DefaultPlayerSettings()}
	server := newTestServer(&fakePlayer{}, WithSettings(settings))
	defer server.Close()

	req := httptest.NewRequest(http.MethodPatch, "/settings/player",
		bytes.NewReader([]byte(`{"default_resolution":"4k"}`)))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestWatchHistory(t *testing.T) {
	history := &fakeHistoryStore{positions: []domain.WatchPosition{
		{Filename: "a.mkv", Position: 120, Duration: 3600},
	}}
	server := newTestServer(&fakePlayer{}, WithWatchHistory(history))
	defer server.Close()

	req := httptest.NewRequest(http.MethodGet, "/watch-history?limit=5", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if history.limit != 5 {
		t.Fatalf("limit = %d", history.limit)
	}
	var positions []domain.WatchPosition
	if err := json.NewDecoder(w.Body).Decode(&positions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(positions) != 1 || positions[0].Filename != "a.mkv" {
		t.Fatalf("positions mismatch: %+v", positions)
	}
}

func TestWatchHistoryWithoutStore(t *testing.T) {
	server := newTestServer(&fakePlayer{})
	defer server.Close()

	req := httptest.NewRequest(http.MethodGet, "/watch-history", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestPlayerHealth(t *testing.T) {
	player := &fakePlayer{snapshot: domain.PlayerSnapshot{Filename: "movie.mkv", State: "ready"}}
	server := newTestServer(player)
	defer server.Close()

	req := httptest.NewRequest(http.MethodGet, "/internal/health/player", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var health playerHealth
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.State != "ready" {
		t.Fatalf("health mismatch: %+v", health)
	}
	if health.ShellConnected {
		t.Fatalf("shell reported connected without a shell")
	}
}

func TestCORSWhitelist(t *testing.T) {
	server := newTestServer(&fakePlayer{}, WithAllowedOrigins([]string{"http://allowed.local"}))
	defer server.Close()

	req := httptest.NewRequest(http.MethodGet, "/player/state", nil)
	req.Header.Set("Origin", "http://allowed.local")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://allowed.local" {
		t.Fatalf("allowed origin header = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/player/state", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got header %q", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := rateLimitMiddleware(1, 1, next)

	req := httptest.NewRequest(http.MethodGet, "/player/state", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}

	// Health bypasses the limiter even when exhausted.
	req = httptest.NewRequest(http.MethodGet, "/internal/health/player", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}
