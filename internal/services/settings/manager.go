// Package settings keeps the user's player preferences in memory and mirrors
// them to an optional persistent store.
package settings

import (
	"context"
	"sync"
	"time"

	"streamplayer/internal/domain"
)

// Store is the persistence backend. A nil Store means memory-only operation.
type Store interface {
	Get(ctx context.Context) (domain.PlayerSettings, bool, error)
	Set(ctx context.Context, settings domain.PlayerSettings) error
}

// Manager serves reads from its in-memory copy and writes through to the
// store. A write that fails in the store leaves the in-memory copy
// unchanged, so the UI never shows a preference that was silently lost.
type Manager struct {
	store   Store
	timeout time.Duration

	mu       sync.RWMutex
	settings domain.PlayerSettings
}

func NewManager(store Store) *Manager {
	return &Manager{
		store:    store,
		timeout:  5 * time.Second,
		settings: domain.DefaultPlayerSettings(),
	}
}

// Load pulls persisted settings into memory. Missing or unreachable storage
// keeps the defaults.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	persisted, found, err := m.store.Get(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if persisted.Volume < 0 || persisted.Volume > 1 {
		persisted.Volume = 1
	}
	if !persisted.DefaultResolution.Valid() {
		persisted.DefaultResolution = domain.ResolutionOriginal
	}
	m.mu.Lock()
	m.settings = persisted
	m.mu.Unlock()
	return nil
}

// Current returns the in-memory settings.
func (m *Manager) Current() domain.PlayerSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Update applies fn to a copy of the settings and persists the result. The
// in-memory copy only changes after the store accepts the write.
func (m *Manager) Update(fn func(*domain.PlayerSettings)) error {
	m.mu.RLock()
	next := m.settings
	m.mu.RUnlock()

	fn(&next)
	if next.Volume < 0 {
		next.Volume = 0
	}
	if next.Volume > 1 {
		next.Volume = 1
	}
	if !next.DefaultResolution.Valid() {
		next.DefaultResolution = domain.ResolutionOriginal
	}

	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.store.Set(ctx, next); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.settings = next
	m.mu.Unlock()
	return nil
}
