package apihttp

import (
	"log/slog"
	"net/http"
	"strconv"

	"streamplayer/internal/domain"
	"streamplayer/internal/mediaserver"
)

type loadRequest struct {
	Filename string  `json:"filename"`
	IMDBID   string  `json:"imdb_id"`
	Start    float64 `json:"start"`
	Resume   bool    `json:"resume"`
}

type commandRequest struct {
	Action      string  `json:"action"`
	Fraction    float64 `json:"fraction,omitempty"`
	Time        float64 `json:"time,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Resolution  string  `json:"resolution,omitempty"`
	Index       int     `json:"index,omitempty"`
	Key         string  `json:"key,omitempty"`
	InTextInput bool    `json:"in_text_input,omitempty"`
}

type subtitleAddRequest struct {
	URL      string `json:"url"`
	Language string `json:"language"`
	Release  string `json:"release,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

type subtitleTrackResponse struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	Language string `json:"language"`
	Remote   bool   `json:"remote"`
}

func (s *Server) handlePlayerLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	var req loadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "filename is required")
		return
	}

	settings := s.settings.Current()
	startAt := req.Start
	if req.Resume && startAt == 0 && s.resume != nil {
		startAt = s.resume.Resume(r.Context(), req.Filename)
	}

	err := s.player.Load(r.Context(), req.Filename, req.IMDBID,
		settings.PreferredLanguage, startAt, settings.DefaultResolution)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.settings.Update(func(ps *domain.PlayerSettings) {
		ps.LastFilename = req.Filename
	}); err != nil {
		s.logger.Warn("persisting last filename failed", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, s.player.Snapshot())
}

func (s *Server) handlePlayerCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	var err error
	switch req.Action {
	case "play_pause":
		err = s.player.TogglePlay(r.Context())
	case "seek_fraction":
		err = s.player.SeekFraction(r.Context(), req.Fraction)
	case "seek":
		err = s.player.SeekTo(r.Context(), req.Time)
	case "resolution":
		err = s.player.SetResolution(r.Context(), domain.Resolution(req.Resolution))
	case "audio":
		err = s.player.SetAudioTrack(r.Context(), req.Index)
	case "subtitle":
		s.player.SetSubtitle(req.Index)
	case "volume":
		s.player.SetVolume(req.Value)
	case "mute":
		s.player.ToggleMute()
	case "fullscreen":
		s.player.ToggleFullscreen()
	case "key":
		s.player.HandleKey(r.Context(), req.Key, req.InTextInput)
	case "pointer":
		s.player.PointerMoved()
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown action")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.player.Snapshot())
}

func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	writeJSON(w, http.StatusOK, s.player.Snapshot())
}

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/player/subtitles":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
			return
		}
		tracks := s.player.SubtitleTracks()
		resp := make([]subtitleTrackResponse, 0, len(tracks))
		for i, track := range tracks {
			resp = append(resp, subtitleTrackResponse{
				Index:    i,
				Label:    track.Label,
				Language: track.Language,
				Remote:   track.Source.Remote(),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	case "/player/subtitles/search":
		s.handleSubtitleSearch(w, r)
	case "/player/subtitles/add":
		s.handleSubtitleAdd(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown endpoint")
	}
}

// handleSubtitleSearch queries the remote provider for the picker. Failures
// come back as an empty list so the UI shows "no subtitles found" instead of
// an error page.
func (s *Server) handleSubtitleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	var req struct {
		Languages []string `json:"languages,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	results, err := s.player.SearchRemoteSubtitles(r.Context(), req.Languages)
	if err != nil {
		s.logger.Warn("subtitle search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, []mediaserver.RemoteSubtitle{})
		return
	}
	if results == nil {
		results = []mediaserver.RemoteSubtitle{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleSubtitleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}
	var req subtitleAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}

	idx, err := s.player.AddRemoteSubtitle(r.Context(), mediaserver.RemoteSubtitle{
		URL:      req.URL,
		Language: req.Language,
		Release:  req.Release,
		FileName: req.FileName,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "download_failed", "subtitle download failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"index": idx})
}

type playerSettingsRequest struct {
	Volume            *float64 `json:"volume,omitempty"`
	Muted             *bool    `json:"muted,omitempty"`
	PreferredLanguage *string  `json:"preferred_language,omitempty"`
	DefaultResolution *string  `json:"default_resolution,omitempty"`
}

func (s *Server) handlePlayerSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.settings.Current())
	case http.MethodPatch:
		var req playerSettingsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
			return
		}
		if req.DefaultResolution != nil && !domain.Resolution(*req.DefaultResolution).Valid() {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown resolution")
			return
		}
		err := s.settings.Update(func(ps *domain.PlayerSettings) {
			if req.Volume != nil {
				ps.Volume = *req.Volume
			}
			if req.Muted != nil {
				ps.Muted = *req.Muted
			}
			if req.PreferredLanguage != nil {
				ps.PreferredLanguage = *req.PreferredLanguage
			}
			if req.DefaultResolution != nil {
				ps.DefaultResolution = domain.Resolution(*req.DefaultResolution)
			}
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "settings_error", "settings write failed")
			return
		}
		writeJSON(w, http.StatusOK, s.settings.Current())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET or PATCH required")
	}
}

func (s *Server) handleWatchHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	if s.history == nil {
		writeJSON(w, http.StatusOK, []domain.WatchPosition{})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	positions, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_error", "watch history read failed")
		return
	}
	if positions == nil {
		positions = []domain.WatchPosition{}
	}
	writeJSON(w, http.StatusOK, positions)
}

type playerHealth struct {
	Status         string `json:"status"`
	State          string `json:"state"`
	ShellConnected bool   `json:"shell_connected"`
	Filename       string `json:"filename,omitempty"`
}

func (s *Server) handlePlayerHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.player.Snapshot()
	writeJSON(w, http.StatusOK, playerHealth{
		Status:         "ok",
		State:          snap.State,
		ShellConnected: s.shellConnected(),
		Filename:       snap.Filename,
	})
}
