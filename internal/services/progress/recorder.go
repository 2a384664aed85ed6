// Package progress persists watch positions so playback resumes where the
// user left off.
package progress

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"streamplayer/internal/domain"
)

// Store is the persistence backend for watch positions. A nil Store makes
// the recorder a no-op that still answers Resume with "start from zero".
type Store interface {
	Upsert(ctx context.Context, wp domain.WatchPosition) error
	Get(ctx context.Context, filename string) (domain.WatchPosition, error)
}

type Recorder struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:   store,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Record persists the current position. Failures are logged and swallowed: a
// dead history store must never disturb playback.
func (r *Recorder) Record(filename string, absoluteSeconds int, duration float64) {
	if r.store == nil || filename == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.store.Upsert(ctx, domain.WatchPosition{
		Filename: filename,
		Position: float64(absoluteSeconds),
		Duration: duration,
	})
	if err != nil {
		r.logger.Warn("watch position write failed",
			slog.String("filename", filename),
			slog.Int("position", absoluteSeconds),
			slog.String("error", err.Error()))
	}
}

// Resume returns the saved position for a file, or 0 when none is saved. A
// position within the final two minutes counts as finished and restarts from
// the top.
func (r *Recorder) Resume(ctx context.Context, filename string) float64 {
	if r.store == nil || filename == "" {
		return 0
	}
	wp, err := r.store.Get(ctx, filename)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("watch position read failed",
				slog.String("filename", filename),
				slog.String("error", err.Error()))
		}
		return 0
	}
	if wp.Duration > 0 && wp.Position >= wp.Duration-120 {
		return 0
	}
	if wp.Position < 0 {
		return 0
	}
	return wp.Position
}
