package domain

import (
	"fmt"
	"strconv"
)

// Resolution is the streaming mode requested from the server. Original is
// pass-through (stream copy, keyframe-constrained seeking); the numeric
// values are server-side transcodes that can seek to arbitrary timestamps.
type Resolution string

const (
	ResolutionOriginal Resolution = "original"
	Resolution720      Resolution = "720"
	Resolution480      Resolution = "480"
	Resolution360      Resolution = "360"
)

// PassThrough reports whether the resolution streams the source bytes
// without re-encoding.
func (r Resolution) PassThrough() bool {
	return r == ResolutionOriginal || r == ""
}

// Valid reports whether r is one of the server-supported modes.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionOriginal, Resolution720, Resolution480, Resolution360:
		return true
	}
	return false
}

// AudioTrack describes one audio stream of a media file.
type AudioTrack struct {
	Index    int    `json:"index"`
	Language string `json:"language"`
	Title    string `json:"title"`
}

// EmbeddedSubtitle describes one text subtitle stream of a media file.
type EmbeddedSubtitle struct {
	Index    int    `json:"index"`
	Language string `json:"language"`
	Title    string `json:"title"`
}

// MediaFile is the immutable metadata for one playable file, as reported by
// the streaming server. It is refetched whenever the filename changes and
// never mutated in between.
type MediaFile struct {
	Filename  string             `json:"filename"`
	Duration  float64            `json:"duration"`
	Audio     []AudioTrack       `json:"audio_tracks"`
	Subtitles []EmbeddedSubtitle `json:"subtitle_tracks"`
}

// SubtitleSource identifies where a subtitle track's payload comes from:
// an embedded stream index or a remote download URL.
type SubtitleSource struct {
	EmbeddedIndex int    // valid when RemoteURL is empty
	RemoteURL     string // non-empty for tracks downloaded from the online search
}

// Remote reports whether the track payload is fetched from an external URL.
func (s SubtitleSource) Remote() bool { return s.RemoteURL != "" }

// Key returns the cache identity for the source. Cue lists are parsed once
// per key and reused until the loaded file changes.
func (s SubtitleSource) Key(filename string) string {
	if s.Remote() {
		return "remote:" + s.RemoteURL
	}
	return "embedded:" + filename + ":" + strconv.Itoa(s.EmbeddedIndex)
}

// SubtitleTrack is one selectable entry in the subtitle picker: the union of
// embedded tracks and remotely downloaded tracks, embedded first.
type SubtitleTrack struct {
	Label    string         `json:"label"`
	Language string         `json:"language"`
	Source   SubtitleSource `json:"-"`
}

// Cue is a single caption entry with a half-open [Start, End) interval in
// absolute movie seconds.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Contains reports whether t falls inside the cue's display interval.
func (c Cue) Contains(t float64) bool { return t >= c.Start && t < c.End }

func (c Cue) String() string {
	return fmt.Sprintf("[%0.3f-%0.3f] %s", c.Start, c.End, c.Text)
}
