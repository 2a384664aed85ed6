// Package mediaserver is the typed HTTP client for the streaming server.
// It covers the stream/info/keyframe/subtitle endpoints and builds the
// stream URLs the player loads into its media element.
package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"streamplayer/internal/domain"
)

const (
	maxJSONBody    = 512 * 1024
	maxCaptionBody = 8 * 1024 * 1024
)

type Client struct {
	baseURL    string
	http       *http.Client
	probeLimit *rate.Limiter
	retry      RetryConfig
}

type Config struct {
	BaseURL string
	Client  *http.Client
	// ProbeRatePerSec caps keyframe probes so rapid scrubbing does not
	// hammer the server's keyframe index. Zero disables the limit.
	ProbeRatePerSec float64
	ProbeBurst      int
	Retry           RetryConfig
}

// RemoteSubtitle is one hit from the online subtitle search endpoint.
type RemoteSubtitle struct {
	URL      string `json:"url"`
	Language string `json:"language"`
	Release  string `json:"release,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

func (r RemoteSubtitle) DisplayName() string {
	if r.Release != "" {
		return r.Release
	}
	return r.FileName
}

type trackInfo struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Language string `json:"language"`
}

type infoResponse struct {
	Duration       float64     `json:"duration"`
	AudioTracks    []trackInfo `json:"audio_tracks"`
	SubtitleTracks []trackInfo `json:"subtitle_tracks"`
}

type keyframeResponse struct {
	ActualStart float64 `json:"actual_start"`
}

type searchResponse struct {
	Results []RemoteSubtitle `json:"results"`
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	var limiter *rate.Limiter
	if cfg.ProbeRatePerSec > 0 {
		burst := cfg.ProbeBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ProbeRatePerSec), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:       httpClient,
		probeLimit: limiter,
		retry:      retry,
	}
}

// StreamURL builds the media resource URL for a session. The start offset is
// formatted with exactly three decimals, which is what the server parses.
func (c *Client) StreamURL(filename string, s domain.StreamSession) string {
	params := url.Values{
		"resolution":  {string(s.Resolution)},
		"audio_track": {fmt.Sprintf("%d", s.AudioTrack)},
		"start":       {fmt.Sprintf("%.3f", s.ResolvedStart)},
	}
	return c.baseURL + "/stream/" + url.PathEscape(filename) + "?" + params.Encode()
}

// Info fetches duration and track lists for a file. Callers treat a failure
// as "no metadata" and fall back to a zero-state UI.
func (c *Client) Info(ctx context.Context, filename string) (domain.MediaFile, error) {
	var resp infoResponse
	err := RetryWithBackoff(ctx, c.retry, func() error {
		return c.getJSON(ctx, "/stream/info/"+url.PathEscape(filename), nil, &resp)
	})
	if err != nil {
		return domain.MediaFile{}, err
	}

	file := domain.MediaFile{
		Filename: filename,
		Duration: resp.Duration,
	}
	for _, t := range resp.AudioTracks {
		file.Audio = append(file.Audio, domain.AudioTrack{
			Index:    t.Index,
			Language: t.Language,
			Title:    t.Title,
		})
	}
	for _, t := range resp.SubtitleTracks {
		file.Subtitles = append(file.Subtitles, domain.EmbeddedSubtitle{
			Index:    t.Index,
			Language: t.Language,
			Title:    t.Title,
		})
	}
	return file, nil
}

// KeyframeTime asks the server for the nearest seekable offset at or before
// start. Only pass-through playback calls this; transcoded modes seek freely.
// No retry here: a probe failure falls back to the unadjusted target, so a
// fast miss beats a slow answer that a newer reload would discard anyway.
func (c *Client) KeyframeTime(ctx context.Context, filename string, start float64) (float64, error) {
	if c.probeLimit != nil {
		if err := c.probeLimit.Wait(ctx); err != nil {
			return 0, err
		}
	}
	params := url.Values{"start": {fmt.Sprintf("%.3f", start)}}
	var resp keyframeResponse
	if err := c.getJSON(ctx, "/stream/keyframe-time/"+url.PathEscape(filename), params, &resp); err != nil {
		return 0, err
	}
	return resp.ActualStart, nil
}

// EmbeddedSubtitle fetches the caption payload for an embedded track.
func (c *Client) EmbeddedSubtitle(ctx context.Context, filename string, track int) (string, error) {
	params := url.Values{"track": {fmt.Sprintf("%d", track)}}
	var body string
	err := RetryWithBackoff(ctx, c.retry, func() error {
		var err error
		body, err = c.getText(ctx, "/stream/subtitles/"+url.PathEscape(filename), params)
		return err
	})
	return body, err
}

// SearchSubtitles queries the online subtitle provider by IMDb id for the
// given language codes.
func (c *Client) SearchSubtitles(ctx context.Context, imdbID string, languages []string) ([]RemoteSubtitle, error) {
	params := url.Values{
		"imdb_id":   {imdbID},
		"languages": {strings.Join(languages, ",")},
	}
	var resp searchResponse
	err := RetryWithBackoff(ctx, c.retry, func() error {
		return c.getJSON(ctx, "/online-subtitles/search", params, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// DownloadSubtitle fetches the caption payload for a remote search result.
func (c *Client) DownloadSubtitle(ctx context.Context, subtitleURL string) (string, error) {
	params := url.Values{"url": {subtitleURL}}
	var body string
	err := RetryWithBackoff(ctx, c.retry, func() error {
		var err error
		body, err = c.getText(ctx, "/online-subtitles/download", params)
		return err
	})
	return body, err
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.get(ctx, path, params, maxJSONBody)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getText(ctx context.Context, path string, params url.Values) (string, error) {
	body, err := c.get(ctx, path, params, maxCaptionBody)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, limit int64) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("media server HTTP %d on %s: %s",
			resp.StatusCode, path, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, err
	}
	return body, nil
}
