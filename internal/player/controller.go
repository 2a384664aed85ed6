package player

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"streamplayer/internal/domain"
	"streamplayer/internal/mediaserver"
	"streamplayer/internal/metrics"
)

// MetadataFetcher retrieves duration and track lists for a file.
type MetadataFetcher interface {
	Info(ctx context.Context, filename string) (domain.MediaFile, error)
}

// ReportFunc receives (floor(absoluteTime), totalDuration) so the host can
// persist watch progress.
type ReportFunc func(absoluteSeconds int, totalDuration float64)

// ControllerConfig tunes the controller's timers.
type ControllerConfig struct {
	// ReportInterval is how often the progress reporter fires while
	// playing.
	ReportInterval time.Duration
	// ControlsHideDelay is how long the controls stay up after the last
	// pointer movement while playing.
	ControlsHideDelay time.Duration
}

// Controller is the playback surface the API layer drives: transport
// controls, pickers, keyboard shortcuts, the controls auto-hide timer and
// the periodic progress reporter. It owns one Session, one CueStore and one
// Negotiator per loaded file.
type Controller struct {
	cfg     ControllerConfig
	meta    MetadataFetcher
	finder  SubtitleFinder
	session *Session
	cues    *CueStore
	element Element
	report  ReportFunc
	logger  *slog.Logger

	mu         sync.Mutex
	file       domain.MediaFile
	negotiator *Negotiator
	preference string
	imdbID     string
	fullscreen bool
	controlsUp bool
	hideTimer  *time.Timer
	closeOnce  sync.Once
	closed     chan struct{}
}

func NewController(
	cfg ControllerConfig,
	meta MetadataFetcher,
	finder SubtitleFinder,
	session *Session,
	cues *CueStore,
	element Element,
	report ReportFunc,
	logger *slog.Logger,
) *Controller {
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 15 * time.Second
	}
	if cfg.ControlsHideDelay <= 0 {
		cfg.ControlsHideDelay = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if report == nil {
		report = func(int, float64) {}
	}
	return &Controller{
		cfg:        cfg,
		meta:       meta,
		finder:     finder,
		session:    session,
		cues:       cues,
		element:    element,
		report:     report,
		logger:     logger,
		controlsUp: true,
		closed:     make(chan struct{}),
	}
}

// Load binds the controller to a file: fetches metadata, resets the cue
// cache, opens the first stream and runs language negotiation. A metadata
// failure degrades to a zero state (no duration, no tracks) instead of
// failing the load.
func (c *Controller) Load(ctx context.Context, filename, imdbID, preference string, startAt float64, resolution domain.Resolution) error {
	file, err := c.meta.Info(ctx, filename)
	if err != nil {
		c.logger.Warn("metadata fetch failed, loading with zero state",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		file = domain.MediaFile{Filename: filename}
	}

	c.mu.Lock()
	c.file = file
	c.imdbID = imdbID
	c.preference = preference
	c.negotiator = NewNegotiator(c.finder, c.logger)
	c.mu.Unlock()

	c.cues.ResetFile(filename)

	req := ReloadRequest{Time: &startAt}
	if resolution.Valid() {
		req.Resolution = &resolution
	}
	if err := c.session.Open(ctx, filename, file.Duration, req); err != nil {
		return err
	}

	tracks := make([]domain.SubtitleTrack, 0, len(file.Subtitles))
	for _, sub := range file.Subtitles {
		label := sub.Title
		if label == "" {
			label = sub.Language
		}
		tracks = append(tracks, domain.SubtitleTrack{
			Label:    label,
			Language: sub.Language,
			Source:   domain.SubtitleSource{EmbeddedIndex: sub.Index},
		})
	}
	c.cues.LoadTracks(ctx, tracks)

	c.negotiate(ctx)
	return nil
}

// negotiate runs the language negotiator and applies its decision. The
// negotiator itself guarantees the work happens once per file.
func (c *Controller) negotiate(ctx context.Context) {
	c.mu.Lock()
	negotiator := c.negotiator
	file := c.file
	preference := c.preference
	imdbID := c.imdbID
	c.mu.Unlock()
	if negotiator == nil {
		return
	}

	decision := negotiator.Negotiate(ctx, file, preference, imdbID)
	switch {
	case decision.AudioTrack != nil:
		if err := c.session.Reload(ctx, ReloadRequest{AudioTrack: decision.AudioTrack}); err != nil {
			c.logger.Warn("negotiated audio switch failed", slog.String("error", err.Error()))
		}
	case decision.Subtitle != nil && decision.Subtitle.Source.Remote():
		idx := c.cues.AddRemote(*decision.Subtitle, decision.SubtitlePayload)
		c.cues.SetActive(idx)
	case decision.Subtitle != nil:
		c.activateEmbedded(decision.Subtitle.Source.EmbeddedIndex)
	}
}

func (c *Controller) activateEmbedded(embeddedIndex int) {
	for i, track := range c.cues.Tracks() {
		if !track.Source.Remote() && track.Source.EmbeddedIndex == embeddedIndex {
			c.cues.SetActive(i)
			return
		}
	}
}

// TogglePlay flips play/pause. At end-of-stream it restarts from zero via a
// reload, since the exhausted stream cannot be rewound in place.
func (c *Controller) TogglePlay(ctx context.Context) error {
	if c.element.Ended() || c.session.Ended() {
		zero := 0.0
		if err := c.session.Reload(ctx, ReloadRequest{Time: &zero}); err != nil {
			return err
		}
		c.element.Play()
		return nil
	}
	if c.element.Playing() {
		c.element.Pause()
		c.showControls()
		return nil
	}
	c.element.Play()
	return nil
}

// SeekFraction converts a progress-bar click position to absolute seconds
// and reloads there. With an unknown duration there is nowhere to seek.
func (c *Controller) SeekFraction(ctx context.Context, fraction float64) error {
	duration := c.session.Duration()
	if duration <= 0 {
		return nil
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return c.SeekTo(ctx, fraction*duration)
}

// SeekTo reloads the stream at the given absolute time.
func (c *Controller) SeekTo(ctx context.Context, seconds float64) error {
	return c.session.Reload(ctx, ReloadRequest{Time: &seconds})
}

// SetResolution switches streaming mode, preserving position and playback.
func (c *Controller) SetResolution(ctx context.Context, r domain.Resolution) error {
	if !r.Valid() {
		return nil
	}
	return c.session.Reload(ctx, ReloadRequest{Resolution: &r})
}

// SetAudioTrack switches the audio track, preserving position and playback.
func (c *Controller) SetAudioTrack(ctx context.Context, index int) error {
	return c.session.Reload(ctx, ReloadRequest{AudioTrack: &index})
}

// SetSubtitle selects a subtitle track by picker index, -1 for off.
func (c *Controller) SetSubtitle(index int) {
	c.cues.SetActive(index)
}

// SubtitleTracks lists the picker entries.
func (c *Controller) SubtitleTracks() []domain.SubtitleTrack {
	return c.cues.Tracks()
}

// SearchRemoteSubtitles queries the provider for the picker. An error means
// the picker shows "no subtitles found"; it is never fatal.
func (c *Controller) SearchRemoteSubtitles(ctx context.Context, languages []string) ([]mediaserver.RemoteSubtitle, error) {
	c.mu.Lock()
	imdbID := c.imdbID
	preference := c.preference
	c.mu.Unlock()
	if len(languages) == 0 && preference != "" {
		languages = []string{normalizeLang(preference)}
	}
	return c.finder.Search(ctx, imdbID, languages)
}

// AddRemoteSubtitle downloads a chosen search result, registers it as a
// track and activates it. Returns the new picker index.
func (c *Controller) AddRemoteSubtitle(ctx context.Context, result mediaserver.RemoteSubtitle) (int, error) {
	payload, err := c.finder.Download(ctx, result.URL)
	if err != nil {
		return -1, err
	}
	label := result.DisplayName()
	if label == "" {
		label = result.Language
	}
	idx := c.cues.AddRemote(domain.SubtitleTrack{
		Label:    label,
		Language: result.Language,
		Source:   domain.SubtitleSource{RemoteURL: result.URL},
	}, payload)
	c.cues.SetActive(idx)
	return idx, nil
}

// SetVolume clamps to [0, 1] and applies to the element.
func (c *Controller) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	c.element.SetVolume(v)
}

// ToggleMute flips the element's mute state.
func (c *Controller) ToggleMute() {
	c.element.SetMuted(!c.element.Muted())
}

// ToggleFullscreen flips the shell's fullscreen state.
func (c *Controller) ToggleFullscreen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullscreen = !c.fullscreen
}

// HandleKey dispatches a keyboard shortcut. Shortcuts are ignored while
// focus sits in a text input so typing never drives the player.
func (c *Controller) HandleKey(ctx context.Context, key string, inTextInput bool) {
	if inTextInput {
		return
	}
	switch key {
	case " ", "space":
		if err := c.TogglePlay(ctx); err != nil {
			c.logger.Warn("play toggle failed", slog.String("error", err.Error()))
		}
	case "ArrowUp":
		c.stepVolume(0.1)
	case "ArrowDown":
		c.stepVolume(-0.1)
	case "f":
		c.ToggleFullscreen()
	case "m":
		c.ToggleMute()
	}
}

func (c *Controller) stepVolume(delta float64) {
	c.SetVolume(c.element.Volume() + delta)
}

// PointerMoved shows the controls and re-arms the auto-hide timer.
func (c *Controller) PointerMoved() {
	c.showControls()
}

func (c *Controller) showControls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlsUp = true
	if c.hideTimer != nil {
		c.hideTimer.Stop()
	}
	c.hideTimer = time.AfterFunc(c.cfg.ControlsHideDelay, c.hideControls)
}

// hideControls fires from the auto-hide timer; controls only hide while
// playback is running.
func (c *Controller) hideControls() {
	if !c.element.Playing() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlsUp = false
}

// Caption returns the active subtitle text for the current absolute time.
// The UI calls this on every frame tick.
func (c *Controller) Caption() string {
	return c.cues.ActiveText(c.session.Absolute())
}

// Snapshot assembles the externally visible player state.
func (c *Controller) Snapshot() domain.PlayerSnapshot {
	c.mu.Lock()
	fullscreen := c.fullscreen
	controlsUp := c.controlsUp
	c.mu.Unlock()

	current := c.session.Current()
	return domain.PlayerSnapshot{
		Filename:      c.session.Filename(),
		State:         c.session.State().String(),
		Playing:       c.element.Playing(),
		AbsoluteTime:  c.session.Absolute(),
		Duration:      c.session.Duration(),
		Progress:      c.session.Progress(),
		Buffered:      c.session.Buffered(),
		Resolution:    current.Resolution,
		AudioTrack:    current.AudioTrack,
		SubtitleTrack: c.cues.Active(),
		Volume:        c.element.Volume(),
		Muted:         c.element.Muted(),
		Fullscreen:    fullscreen,
		ControlsShown: controlsUp,
		Caption:       c.Caption(),
	}
}

// Run drives the periodic progress reporter until ctx is cancelled or the
// controller closes. Reports only fire while playback is running, so a
// paused player does not rewrite the same position forever.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			if c.element.Playing() {
				c.reportProgress()
			}
		}
	}
}

func (c *Controller) reportProgress() {
	seconds := int(math.Floor(c.session.Absolute()))
	c.report(seconds, c.session.Duration())
	metrics.ProgressReportsTotal.Inc()
}

// Close reports the final position, stops the timers and disposes the
// session. The last report guarantees the position is never lost to the
// interval boundary.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.hideTimer != nil {
			c.hideTimer.Stop()
		}
		c.mu.Unlock()
		c.reportProgress()
		c.session.Dispose()
	})
}

