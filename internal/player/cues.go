package player

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"streamplayer/internal/domain"
	"streamplayer/internal/metrics"
)

// CueStore holds the parsed cue lists for every subtitle track of the loaded
// file, keyed by source identity. Payloads are fetched and parsed once per
// source; the cache lives until the loaded filename changes.
type CueStore struct {
	embedded EmbeddedFetcher
	remote   RemoteFetcher
	logger   *slog.Logger

	mu       sync.Mutex
	filename string
	tracks   []domain.SubtitleTrack
	cues     map[string][]domain.Cue
	active   int // index into tracks, -1 when subtitles are off

	// cursor exploits mostly-monotonic playback time so the per-frame
	// lookup is O(1); a backward seek rewinds it.
	cursor   int
	lastTime float64
}

// EmbeddedFetcher retrieves the caption payload of an embedded track.
type EmbeddedFetcher interface {
	EmbeddedSubtitle(ctx context.Context, filename string, track int) (string, error)
}

// RemoteFetcher retrieves the caption payload of a downloaded track.
type RemoteFetcher interface {
	Download(ctx context.Context, url string) (string, error)
}

func NewCueStore(embedded EmbeddedFetcher, remote RemoteFetcher, logger *slog.Logger) *CueStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CueStore{
		embedded: embedded,
		remote:   remote,
		logger:   logger,
		cues:     make(map[string][]domain.Cue),
		active:   -1,
	}
}

// ResetFile clears all tracks and cached cues for a new file.
func (s *CueStore) ResetFile(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filename = filename
	s.tracks = nil
	s.cues = make(map[string][]domain.Cue)
	s.active = -1
	s.cursor = 0
	s.lastTime = 0
}

// LoadTracks fetches and parses every track not already cached. A fetch or
// parse failure degrades that track to an empty cue list and never fails the
// call: a broken subtitle stream must not take playback down with it.
func (s *CueStore) LoadTracks(ctx context.Context, tracks []domain.SubtitleTrack) {
	s.mu.Lock()
	filename := s.filename
	pending := make([]domain.SubtitleTrack, 0, len(tracks))
	for _, track := range tracks {
		s.tracks = append(s.tracks, track)
		if _, ok := s.cues[track.Source.Key(filename)]; !ok {
			pending = append(pending, track)
		}
	}
	s.mu.Unlock()

	for _, track := range pending {
		cues := s.fetchAndParse(ctx, filename, track)
		s.mu.Lock()
		s.cues[track.Source.Key(filename)] = cues
		s.mu.Unlock()
	}
}

// AddRemote registers a downloaded track from an already-fetched payload and
// returns its picker index. Remote tracks append after embedded ones.
func (s *CueStore) AddRemote(track domain.SubtitleTrack, payload string) int {
	cues := ParseCues(payload)
	metrics.CuesParsedTotal.Add(float64(len(cues)))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
	s.cues[track.Source.Key(s.filename)] = cues
	return len(s.tracks) - 1
}

// Tracks returns the picker entries, embedded first, remote appended in
// discovery order.
func (s *CueStore) Tracks() []domain.SubtitleTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SubtitleTrack(nil), s.tracks...)
}

// SetActive selects a track by index, or turns subtitles off with -1.
func (s *CueStore) SetActive(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < -1 || index >= len(s.tracks) {
		index = -1
	}
	if index != s.active {
		s.active = index
		s.cursor = 0
		s.lastTime = 0
	}
}

// Active returns the selected track index, -1 when off.
func (s *CueStore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveText returns the newline-joined text of every cue on the active
// track whose [start, end) interval contains the given absolute time. It is
// called dozens of times per second, so the hot path only advances a cursor.
func (s *CueStore) ActiveText(atAbsolute float64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active < 0 || s.active >= len(s.tracks) {
		return ""
	}
	cues := s.cues[s.tracks[s.active].Source.Key(s.filename)]
	if len(cues) == 0 {
		return ""
	}

	// A backward jump invalidates the cursor. Rewind and let the advance
	// loop below find the first cue that has not ended yet; end times are
	// not sorted when cues overlap, so a binary search is not safe here.
	if atAbsolute < s.lastTime {
		s.cursor = 0
	}
	s.lastTime = atAbsolute

	for s.cursor < len(cues) && cues[s.cursor].End <= atAbsolute {
		s.cursor++
	}

	var parts []string
	for i := s.cursor; i < len(cues) && cues[i].Start <= atAbsolute; i++ {
		if cues[i].Contains(atAbsolute) {
			parts = append(parts, cues[i].Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (s *CueStore) fetchAndParse(ctx context.Context, filename string, track domain.SubtitleTrack) []domain.Cue {
	var (
		payload string
		err     error
		source  = "embedded"
	)
	if track.Source.Remote() {
		source = "remote"
		payload, err = s.remote.Download(ctx, track.Source.RemoteURL)
	} else {
		payload, err = s.embedded.EmbeddedSubtitle(ctx, filename, track.Source.EmbeddedIndex)
	}
	if err != nil {
		metrics.SubtitleFetchesTotal.WithLabelValues(source, "error").Inc()
		s.logger.Warn("subtitle fetch failed, track degraded to empty",
			slog.String("filename", filename),
			slog.String("label", track.Label),
			slog.String("error", err.Error()))
		return nil
	}
	metrics.SubtitleFetchesTotal.WithLabelValues(source, "ok").Inc()

	cues := ParseCues(payload)
	metrics.CuesParsedTotal.Add(float64(len(cues)))
	return cues
}

// ParseCues parses a caption payload into an ordered cue list. The format is
// block-separated: each block carries a `start --> end` timecode line
// followed by text lines. WEBVTT headers, cue identifiers, numeric SRT
// indices and cue settings are tolerated; blocks with no parseable timecode
// or no text are skipped, and a malformed block never aborts the rest.
func ParseCues(payload string) []domain.Cue {
	payload = strings.TrimPrefix(payload, "\uFEFF")
	lines := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")

	var cues []domain.Cue
	i := 0
	for i < len(lines) {
		// Skip blank lines between blocks.
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
		if i >= len(lines) {
			break
		}

		// Collect one block.
		blockStart := i
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			i++
		}
		block := lines[blockStart:i]

		cue, ok := parseBlock(block)
		if ok {
			cues = append(cues, cue)
		}
	}

	sort.SliceStable(cues, func(a, b int) bool { return cues[a].Start < cues[b].Start })
	return cues
}

func parseBlock(block []string) (domain.Cue, bool) {
	timecodeAt := -1
	var start, end float64
	for idx, line := range block {
		left, right, found := strings.Cut(line, "-->")
		if !found {
			continue
		}
		var err error
		start, err = parseTimecode(strings.TrimSpace(left))
		if err != nil {
			return domain.Cue{}, false
		}
		// Cue settings may follow the end timecode on the same line.
		endField := strings.Fields(strings.TrimSpace(right))
		if len(endField) == 0 {
			return domain.Cue{}, false
		}
		end, err = parseTimecode(endField[0])
		if err != nil {
			return domain.Cue{}, false
		}
		timecodeAt = idx
		break
	}
	if timecodeAt < 0 || end <= start {
		return domain.Cue{}, false
	}

	text := strings.TrimSpace(strings.Join(block[timecodeAt+1:], "\n"))
	if text == "" {
		return domain.Cue{}, false
	}
	return domain.Cue{Start: start, End: end, Text: text}, true
}

// parseTimecode accepts H:MM:SS.mmm or MM:SS.mmm with either `.` or `,` as
// the fractional separator.
func parseTimecode(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, strconv.ErrSyntax
	}

	var total float64
	for _, part := range parts {
		value, err := strconv.ParseFloat(part, 64)
		if err != nil || value < 0 {
			return 0, strconv.ErrSyntax
		}
		total = total*60 + value
	}
	return total, nil
}
