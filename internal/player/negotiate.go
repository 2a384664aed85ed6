package player

import (
	"context"
	"log/slog"
	"sync"

	"streamplayer/internal/domain"
	"streamplayer/internal/mediaserver"
)

// SubtitleFinder searches and downloads remote subtitle tracks.
type SubtitleFinder interface {
	Search(ctx context.Context, imdbID string, languages []string) ([]mediaserver.RemoteSubtitle, error)
	Download(ctx context.Context, url string) (string, error)
}

// Decision is the outcome of language negotiation. At most one of AudioTrack
// and Subtitle is set: a matching audio track wins outright and leaves
// subtitles alone.
type Decision struct {
	// AudioTrack is the index to switch to, nil when no audio track
	// matched the preference.
	AudioTrack *int
	// Subtitle is the track to activate, nil to leave subtitles off.
	Subtitle *domain.SubtitleTrack
	// SubtitlePayload carries the downloaded captions when Subtitle is a
	// remote track, so the caller can register it without refetching.
	SubtitlePayload string
}

// Negotiator picks the audio track or subtitle track that best matches the
// user's preferred language. It runs once per loaded file: repeated calls
// return the first decision unchanged, so asynchronously re-arriving
// metadata cannot re-trigger track switches or duplicate remote downloads.
type Negotiator struct {
	finder SubtitleFinder
	logger *slog.Logger

	mu       sync.Mutex
	done     bool
	decision Decision
}

func NewNegotiator(finder SubtitleFinder, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{finder: finder, logger: logger}
}

// Negotiate resolves the preference against the file's track lists:
// matching audio track first, then embedded subtitle, then a remote search
// (preference language, then English) when an IMDb id is known, then an
// embedded English subtitle, else subtitles stay off.
func (n *Negotiator) Negotiate(ctx context.Context, file domain.MediaFile, preference, imdbID string) Decision {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return n.decision
	}
	// The lock is held across resolve so a concurrent call blocks and then
	// returns the finished decision, never a zero value.
	n.decision = n.resolve(ctx, file, preference, imdbID)
	n.done = true
	return n.decision
}

func (n *Negotiator) resolve(ctx context.Context, file domain.MediaFile, preference, imdbID string) Decision {
	if preference == "" {
		return Decision{}
	}

	for _, track := range file.Audio {
		if langMatches(track.Language, preference) {
			index := track.Index
			n.logger.Info("language negotiation: audio track matches preference",
				slog.String("filename", file.Filename),
				slog.Int("track", index),
				slog.String("language", track.Language))
			return Decision{AudioTrack: &index}
		}
	}

	if track := embeddedSubtitleFor(file, preference); track != nil {
		return Decision{Subtitle: track}
	}

	if imdbID != "" {
		if decision, ok := n.searchRemote(ctx, file, preference, imdbID); ok {
			return decision
		}
	}

	if track := embeddedSubtitleFor(file, "en"); track != nil {
		return Decision{Subtitle: track}
	}

	return Decision{}
}

func (n *Negotiator) searchRemote(ctx context.Context, file domain.MediaFile, preference, imdbID string) (Decision, bool) {
	languages := []string{normalizeLang(preference)}
	if !langMatches(preference, "en") {
		languages = append(languages, "en")
	}

	results, err := n.finder.Search(ctx, imdbID, languages)
	if err != nil {
		n.logger.Warn("remote subtitle search failed",
			slog.String("filename", file.Filename),
			slog.String("error", err.Error()))
		return Decision{}, false
	}
	if len(results) == 0 {
		return Decision{}, false
	}

	chosen := pickResult(results, preference)
	payload, err := n.finder.Download(ctx, chosen.URL)
	if err != nil {
		n.logger.Warn("remote subtitle download failed",
			slog.String("filename", file.Filename),
			slog.String("url", chosen.URL),
			slog.String("error", err.Error()))
		return Decision{}, false
	}

	label := chosen.DisplayName()
	if label == "" {
		label = chosen.Language
	}
	return Decision{
		Subtitle: &domain.SubtitleTrack{
			Label:    label,
			Language: chosen.Language,
			Source:   domain.SubtitleSource{RemoteURL: chosen.URL},
		},
		SubtitlePayload: payload,
	}, true
}

// pickResult prefers a hit in the preference language, then English, then
// the provider's first result.
func pickResult(results []mediaserver.RemoteSubtitle, preference string) mediaserver.RemoteSubtitle {
	for _, r := range results {
		if langMatches(r.Language, preference) {
			return r
		}
	}
	for _, r := range results {
		if langMatches(r.Language, "en") {
			return r
		}
	}
	return results[0]
}

func embeddedSubtitleFor(file domain.MediaFile, lang string) *domain.SubtitleTrack {
	for _, track := range file.Subtitles {
		if langMatches(track.Language, lang) {
			label := track.Title
			if label == "" {
				label = track.Language
			}
			return &domain.SubtitleTrack{
				Label:    label,
				Language: track.Language,
				Source:   domain.SubtitleSource{EmbeddedIndex: track.Index},
			}
		}
	}
	return nil
}
