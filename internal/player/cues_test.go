package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"streamplayer/internal/domain"
)

type fakeEmbeddedFetcher struct {
	payloads map[int]string
	err      error
	calls    int
}

func (f *fakeEmbeddedFetcher) EmbeddedSubtitle(_ context.Context, _ string, track int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.payloads[track], nil
}

type fakeRemoteFetcher struct {
	payload string
	err     error
	calls   int
}

func (f *fakeRemoteFetcher) Download(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.payload, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func embeddedTrack(index int, label string) domain.SubtitleTrack {
	return domain.SubtitleTrack{
		Label:  label,
		Source: domain.SubtitleSource{EmbeddedIndex: index},
	}
}

func TestParseCuesVTT(t *testing.T) {
	payload := "WEBVTT\n" +
		"\n" +
		"1\n" +
		"00:00.000 --> 00:02.000 align:center\n" +
		"first line\n" +
		"second line\n" +
		"\n" +
		"00:02,500 --> 00:04,000\n" +
		"comma separators\n" +
		"\n" +
		"1:02:03.500 --> 1:02:05.000\n" +
		"hour format\n"

	cues := ParseCues(payload)
	if len(cues) != 3 {
		t.Fatalf("got %d cues, want 3: %+v", len(cues), cues)
	}
	if cues[0].Start != 0 || cues[0].End != 2 || cues[0].Text != "first line\nsecond line" {
		t.Errorf("cue 0 = %+v", cues[0])
	}
	if cues[1].Start != 2.5 || cues[1].End != 4 {
		t.Errorf("cue 1 = %+v", cues[1])
	}
	if want := 1*3600 + 2*60 + 3.5; cues[2].Start != want {
		t.Errorf("cue 2 start = %v, want %v", cues[2].Start, want)
	}
}

func TestParseCuesStripsByteOrderMark(t *testing.T) {
	payload := "\ufeffWEBVTT\n" +
		"\n" +
		"00:01.000 --> 00:02.000\n" +
		"hello\n"

	cues := ParseCues(payload)
	if len(cues) != 1 || cues[0].Text != "hello" {
		t.Fatalf("cues = %+v, want one hello cue", cues)
	}
}

func TestParseCuesSkipsMalformedBlocks(t *testing.T) {
	payload := "WEBVTT\n" +
		"\n" +
		"NOTE a comment block\n" +
		"\n" +
		"garbage --> also:garbage\n" +
		"should be skipped\n" +
		"\n" +
		"00:05.000 --> 00:04.000\n" +
		"end before start\n" +
		"\n" +
		"00:06.000 --> 00:08.000\n" +
		"\n" +
		"00:10.000 --> 00:12.000\n" +
		"survivor\n"

	cues := ParseCues(payload)
	if len(cues) != 1 {
		t.Fatalf("got %d cues, want 1: %+v", len(cues), cues)
	}
	if cues[0].Text != "survivor" {
		t.Errorf("cue = %+v", cues[0])
	}
}

func TestParseCuesEmptyPayload(t *testing.T) {
	if cues := ParseCues(""); cues != nil {
		t.Errorf("cues = %+v, want nil", cues)
	}
	if cues := ParseCues("WEBVTT\n"); cues != nil {
		t.Errorf("cues = %+v, want nil", cues)
	}
}

func TestActiveTextIntervals(t *testing.T) {
	payload := "00:00.000 --> 00:02.000\na\n\n00:02.000 --> 00:04.000\nb\n"
	embedded := &fakeEmbeddedFetcher{payloads: map[int]string{0: payload}}
	store := NewCueStore(embedded, &fakeRemoteFetcher{}, testLogger())
	store.ResetFile("movie.mkv")
	store.LoadTracks(context.Background(), []domain.SubtitleTrack{embeddedTrack(0, "Full")})
	store.SetActive(0)

	cases := []struct {
		at   float64
		want string
	}{
		{1.5, "a"},
		{2.0, "b"}, // half-open intervals, boundary belongs to the next cue
		{2.5, "b"},
		{4.5, ""},
	}
	for _, tc := range cases {
		if got := store.ActiveText(tc.at); got != tc.want {
			t.Errorf("ActiveText(%v) = %q, want %q", tc.at, got, tc.want)
		}
	}
}

func TestActiveTextAfterBackwardSeek(t *testing.T) {
	payload := "00:00.000 --> 00:02.000\na\n\n00:02.000 --> 00:04.000\nb\n"
	embedded := &fakeEmbeddedFetcher{payloads: map[int]string{0: payload}}
	store := NewCueStore(embedded, &fakeRemoteFetcher{}, testLogger())
	store.ResetFile("movie.mkv")
	store.LoadTracks(context.Background(), []domain.SubtitleTrack{embeddedTrack(0, "Full")})
	store.SetActive(0)

	if got := store.ActiveText(3.5); got != "b" {
		t.Fatalf("ActiveText(3.5) = %q, want b", got)
	}
	if got := store.ActiveText(0.5); got != "a" {
		t.Errorf("ActiveText(0.5) after backward seek = %q, want a", got)
	}
}

func TestActiveTextJoinsOverlappingCues(t *testing.T) {
	payload := "00:00.000 --> 00:10.000\nlong\n\n00:01.000 --> 00:02.000\nshort\n"
	embedded := &fakeEmbeddedFetcher{payloads: map[int]string{0: payload}}
	store := NewCueStore(embedded, &fakeRemoteFetcher{}, testLogger())
	store.ResetFile("movie.mkv")
	store.LoadTracks(context.Background(), []domain.SubtitleTrack{embeddedTrack(0, "Full")})
	store.SetActive(0)

	if got := store.ActiveText(1.5); got != "long\nshort" {
		t.Errorf("ActiveText(1.5) = %q, want overlapping cues joined", got)
	}
	if got := store.ActiveText(5.0); got != "long" {
		t.Errorf("ActiveText(5.0) = %q, want long", got)
	}
}

func TestActiveTextNoActiveTrack(t *testing.T) {
	store := NewCueStore(&fakeEmbeddedFetcher{}, &fakeRemoteFetcher{}, testLogger())
	store.ResetFile("movie.mkv")

	if got := store.ActiveText(1); got != "" {
		t.Errorf("ActiveText with no track = %q, want empty", got)
	}
}

func TestLoadTracksFetchFailureYieldsEmptyList(t *testing.T) {
	embedded := &fakeEmbeddedFetcher{err: errors.New("boom")}
	store := NewCueStore(embedded, &fakeRemoteFetcher{}, testLogger())
	store.ResetFile("movie.mkv")

	store.LoadTracks(context.Background(), []domain.SubtitleTrack{embeddedTrack(0, "Full")})
	store.SetActive(0)

	if got := store.ActiveText(1); got != "" {
		t.Errorf("ActiveText on failed track = %q, want empty", got)
	}
	if len(store.Tracks()) != 1 {
		t.Errorf("tracks = %+v, want the degraded track still listed", store.Tracks())
	}
}

func TestLoadTracksCachesBySource(t *testing.T) {
	embedded := &fakeEmbeddedFetcher{payloads: map[int]string{0: "00:00.000 --> 00:01.000\nx\n"}}
	store := NewCueStore(embedded, &fakeRemoteFetcher{}, testLogger())
	store.ResetFile("movie.mkv")

	track := embeddedTrack(0, "Full")
	store.LoadTracks(context.Background(), []domain.SubtitleTrack{track})
	calls := embedded.calls

	// Same source again: cache hit, no refetch.
	store.LoadTracks(context.Background(), []domain.SubtitleTrack{track})
	if embedded.calls != calls {
		t.Errorf("embedded fetch calls = %d, want %d (cached)", embedded.calls, calls)
	}

	// New file clears the cache.
	store.ResetFile("other.mkv")
	store.LoadTracks(context.Background(), []domain.SubtitleTrack{track})
	if embedded.calls != calls+1 {
		t.Errorf("embedded fetch calls = %d, want %d after reset", embedded.calls, calls+1)
	}
}

func TestAddRemoteAppendsAfterEmbedded(t *testing.T) {
	embedded := &fakeEmbeddedFetcher{payloads: map[int]string{0: "00:00.000 --> 00:01.000\nx\n"}}
	store := NewCueStore(embedded, &fakeRemoteFetcher{}, testLogger())
	store.ResetFile("movie.mkv")
	store.LoadTracks(context.Background(), []domain.SubtitleTrack{embeddedTrack(0, "Full")})

	idx := store.AddRemote(domain.SubtitleTrack{
		Label:    "WEB.1080p",
		Language: "fr",
		Source:   domain.SubtitleSource{RemoteURL: "https://subs/1"},
	}, "00:00.000 --> 00:05.000\nbonjour\n")

	if idx != 1 {
		t.Errorf("remote track index = %d, want 1", idx)
	}
	store.SetActive(idx)
	if got := store.ActiveText(2); got != "bonjour" {
		t.Errorf("ActiveText = %q, want bonjour", got)
	}
}

func TestSetActiveOutOfRangeTurnsOff(t *testing.T) {
	store := NewCueStore(&fakeEmbeddedFetcher{}, &fakeRemoteFetcher{}, testLogger())
	store.ResetFile("movie.mkv")

	store.SetActive(7)
	if got := store.Active(); got != -1 {
		t.Errorf("Active() = %d, want -1", got)
	}
}
