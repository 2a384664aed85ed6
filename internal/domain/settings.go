package domain

import "time"

// PlayerSettings are the user preferences that survive daemon restarts.
// PreferredLanguage feeds the per-file language negotiation; the rest seed
// the media surface when a new shell connects.
type PlayerSettings struct {
	Volume            float64    `json:"volume" bson:"volume"`
	Muted             bool       `json:"muted" bson:"muted"`
	PreferredLanguage string     `json:"preferred_language" bson:"preferredLanguage"`
	DefaultResolution Resolution `json:"default_resolution" bson:"defaultResolution"`
	LastFilename      string     `json:"last_filename" bson:"lastFilename"`
}

// WatchPosition records how far into a file the user has watched. Persisted
// by the progress recorder so playback can resume where it left off.
type WatchPosition struct {
	Filename  string    `json:"filename" bson:"filename"`
	Position  float64   `json:"position" bson:"position"`
	Duration  float64   `json:"duration" bson:"duration"`
	UpdatedAt time.Time `json:"updated_at" bson:"-"`
}

// DefaultPlayerSettings returns the settings used before any are persisted.
func DefaultPlayerSettings() PlayerSettings {
	return PlayerSettings{
		Volume:            1.0,
		DefaultResolution: ResolutionOriginal,
	}
}
