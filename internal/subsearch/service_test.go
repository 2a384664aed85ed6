package subsearch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"streamplayer/internal/mediaserver"
)

type fakeProvider struct {
	searchCalls   int
	downloadCalls int
	results       []mediaserver.RemoteSubtitle
	payload       string
	searchErr     error
	downloadErr   error
}

func (f *fakeProvider) SearchSubtitles(_ context.Context, _ string, _ []string) ([]mediaserver.RemoteSubtitle, error) {
	f.searchCalls++
	return f.results, f.searchErr
}

func (f *fakeProvider) DownloadSubtitle(_ context.Context, _ string) (string, error) {
	f.downloadCalls++
	return f.payload, f.downloadErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSearchCachesResults(t *testing.T) {
	provider := &fakeProvider{results: []mediaserver.RemoteSubtitle{
		{URL: "https://subs/1", Language: "fr"},
	}}
	svc := NewService(provider, discardLogger())

	for i := 0; i < 3; i++ {
		results, err := svc.Search(context.Background(), "tt0133093", []string{"fr", "en"})
		if err != nil {
			t.Fatalf("Search #%d: %v", i, err)
		}
		if len(results) != 1 || results[0].Language != "fr" {
			t.Fatalf("Search #%d results = %+v", i, results)
		}
	}
	if provider.searchCalls != 1 {
		t.Errorf("provider called %d times, want 1", provider.searchCalls)
	}
}

func TestSearchCacheKeyIgnoresLanguageOrder(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewService(provider, discardLogger())

	if _, err := svc.Search(context.Background(), "tt1", []string{"fr", "en"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, err := svc.Search(context.Background(), "tt1", []string{"EN", " fr "}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if provider.searchCalls != 1 {
		t.Errorf("provider called %d times, want 1", provider.searchCalls)
	}
}

func TestSearchWithoutIMDBIDReturnsNothing(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewService(provider, discardLogger())

	results, err := svc.Search(context.Background(), "  ", []string{"fr"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("results = %+v, want nil", results)
	}
	if provider.searchCalls != 0 {
		t.Errorf("provider called %d times, want 0", provider.searchCalls)
	}
}

func TestSearchErrorNotCached(t *testing.T) {
	provider := &fakeProvider{searchErr: errors.New("provider down")}
	svc := NewService(provider, discardLogger())

	if _, err := svc.Search(context.Background(), "tt1", nil); err == nil {
		t.Fatal("want error")
	}
	provider.searchErr = nil
	provider.results = []mediaserver.RemoteSubtitle{{URL: "u"}}

	results, err := svc.Search(context.Background(), "tt1", nil)
	if err != nil {
		t.Fatalf("Search after recovery: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %+v", results)
	}
	if provider.searchCalls != 2 {
		t.Errorf("provider called %d times, want 2", provider.searchCalls)
	}
}

func TestDownloadCachesPayloadByURL(t *testing.T) {
	provider := &fakeProvider{payload: "WEBVTT\n\n00:00.000 --> 00:01.000\nHi\n"}
	svc := NewService(provider, discardLogger())

	for i := 0; i < 2; i++ {
		payload, err := svc.Download(context.Background(), "https://subs/1")
		if err != nil {
			t.Fatalf("Download #%d: %v", i, err)
		}
		if payload != provider.payload {
			t.Errorf("payload = %q", payload)
		}
	}
	if provider.downloadCalls != 1 {
		t.Errorf("provider called %d times, want 1", provider.downloadCalls)
	}
}

func TestDownloadErrorPropagates(t *testing.T) {
	provider := &fakeProvider{downloadErr: errors.New("dead link")}
	svc := NewService(provider, discardLogger())

	if _, err := svc.Download(context.Background(), "https://subs/404"); err == nil {
		t.Fatal("want error")
	}
}
