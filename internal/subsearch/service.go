// Package subsearch finds and downloads remote subtitle tracks through the
// streaming server's online-subtitles endpoints, with a small result cache so
// reopening the picker or renegotiating a language does not re-query the
// provider.
package subsearch

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"streamplayer/internal/mediaserver"
	"streamplayer/internal/metrics"
)

const (
	defaultCacheTTL        = 6 * time.Hour
	defaultCacheMaxEntries = 64
	// Concurrent downloads are bounded so a picker listing many releases
	// cannot open dozens of provider connections at once.
	maxConcurrentDownloads = 3
)

// Provider is the slice of the media server client this service needs.
type Provider interface {
	SearchSubtitles(ctx context.Context, imdbID string, languages []string) ([]mediaserver.RemoteSubtitle, error)
	DownloadSubtitle(ctx context.Context, url string) (string, error)
}

type cachedResults struct {
	results   []mediaserver.RemoteSubtitle
	expiresAt time.Time
}

type cachedPayload struct {
	payload   string
	expiresAt time.Time
}

type Service struct {
	provider Provider
	redis    *RedisCacheBackend
	logger   *slog.Logger
	ttl      time.Duration

	mu       sync.Mutex
	searches map[string]*cachedResults
	payloads map[string]*cachedPayload

	downloadSem *semaphore.Weighted
}

type Option func(*Service)

// WithRedisCache layers a Redis backend over the in-memory cache so search
// results survive restarts and are shared between player instances.
func WithRedisCache(backend *RedisCacheBackend) Option {
	return func(s *Service) { s.redis = backend }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewService(provider Provider, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		provider:    provider,
		logger:      logger,
		ttl:         defaultCacheTTL,
		searches:    make(map[string]*cachedResults),
		payloads:    make(map[string]*cachedPayload),
		downloadSem: semaphore.NewWeighted(maxConcurrentDownloads),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns remote subtitle candidates for the given IMDb id, restricted
// to the requested language codes. An empty imdbID short-circuits to no
// results since the provider cannot search without it.
func (s *Service) Search(ctx context.Context, imdbID string, languages []string) ([]mediaserver.RemoteSubtitle, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, nil
	}

	key := searchCacheKey(imdbID, languages)
	now := time.Now()

	if results, ok := s.searchLookup(ctx, key, now); ok {
		return results, nil
	}

	results, err := s.provider.SearchSubtitles(ctx, imdbID, languages)
	if err != nil {
		metrics.SubtitleSearchesTotal.WithLabelValues("error").Inc()
		s.logger.Warn("subtitle search failed",
			slog.String("imdb_id", imdbID),
			slog.String("error", err.Error()))
		return nil, err
	}
	if len(results) == 0 {
		metrics.SubtitleSearchesTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.SubtitleSearchesTotal.WithLabelValues("ok").Inc()
	}

	s.searchStore(ctx, key, results, now)
	return results, nil
}

// Download fetches the caption payload for one search result. Payloads are
// cached by URL; concurrent fetches for distinct URLs are bounded.
func (s *Service) Download(ctx context.Context, url string) (string, error) {
	now := time.Now()

	s.mu.Lock()
	if entry, ok := s.payloads[url]; ok && now.Before(entry.expiresAt) {
		payload := entry.payload
		s.mu.Unlock()
		return payload, nil
	}
	s.mu.Unlock()

	if err := s.downloadSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.downloadSem.Release(1)

	payload, err := s.provider.DownloadSubtitle(ctx, url)
	if err != nil {
		metrics.SubtitleFetchesTotal.WithLabelValues("remote", "error").Inc()
		return "", err
	}
	metrics.SubtitleFetchesTotal.WithLabelValues("remote", "ok").Inc()

	s.mu.Lock()
	s.payloads[url] = &cachedPayload{payload: payload, expiresAt: now.Add(s.ttl)}
	s.trimLocked(now)
	s.mu.Unlock()
	return payload, nil
}

func (s *Service) searchLookup(ctx context.Context, key string, now time.Time) ([]mediaserver.RemoteSubtitle, bool) {
	if s.redis != nil {
		results, found, err := s.redis.Get(ctx, key)
		if err == nil && found {
			s.mu.Lock()
			s.searches[key] = &cachedResults{
				results:   results,
				expiresAt: now.Add(s.ttl),
			}
			s.mu.Unlock()
			return results, true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.searches[key]
	if !ok || now.After(entry.expiresAt) {
		delete(s.searches, key)
		return nil, false
	}
	return entry.results, true
}

func (s *Service) searchStore(ctx context.Context, key string, results []mediaserver.RemoteSubtitle, now time.Time) {
	if s.redis != nil {
		if err := s.redis.Set(ctx, key, results, s.ttl); err != nil {
			s.logger.Debug("redis subtitle cache write failed", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches[key] = &cachedResults{
		results:   append([]mediaserver.RemoteSubtitle(nil), results...),
		expiresAt: now.Add(s.ttl),
	}
	s.trimLocked(now)
}

// trimLocked drops expired entries and caps both maps. Caller holds s.mu.
func (s *Service) trimLocked(now time.Time) {
	for key, entry := range s.searches {
		if now.After(entry.expiresAt) {
			delete(s.searches, key)
		}
	}
	for key, entry := range s.payloads {
		if now.After(entry.expiresAt) {
			delete(s.payloads, key)
		}
	}
	if len(s.searches) > defaultCacheMaxEntries {
		dropOldest(s.searches, func(e *cachedResults) time.Time { return e.expiresAt })
	}
	if len(s.payloads) > defaultCacheMaxEntries {
		dropOldest(s.payloads, func(e *cachedPayload) time.Time { return e.expiresAt })
	}
}

func dropOldest[V any](m map[string]V, expiry func(V) time.Time) {
	type pair struct {
		key string
		at  time.Time
	}
	items := make([]pair, 0, len(m))
	for key, value := range m {
		items = append(items, pair{key: key, at: expiry(value)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].at.Before(items[j].at) })
	for i := 0; i < len(items)-defaultCacheMaxEntries; i++ {
		delete(m, items[i].key)
	}
}

func searchCacheKey(imdbID string, languages []string) string {
	normalized := make([]string, 0, len(languages))
	seen := make(map[string]struct{}, len(languages))
	for _, raw := range languages {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		normalized = append(normalized, value)
	}
	sort.Strings(normalized)
	return imdbID + "|" + strings.Join(normalized, ",")
}
