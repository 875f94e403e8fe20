package wistia

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ignite/marketing-pulse/internal/source"
)

var fetchTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, failStatsFor string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("bad Authorization header %q", r.Header.Get("Authorization"))
		}

		switch r.URL.Path {
		case "/v1/stats/account.json":
			if r.URL.Query().Get("start_date") == "2025-03-04" {
				json.NewEncoder(w).Encode(accountStats{LoadCount: 2000, PlayCount: 900, PlayRate: 0.45, HoursWatched: 120.5})
				return
			}
			json.NewEncoder(w).Encode(accountStats{LoadCount: 1800, PlayCount: 750, PlayRate: 0.42, HoursWatched: 100.0})

		case "/v1/medias.json":
			json.NewEncoder(w).Encode([]media{
				{HashedID: "abc", Name: "Product tour", Type: "Video"},
				{HashedID: "def", Name: "Webinar replay", Type: "Video"},
				{HashedID: "ghi", Name: "New teaser", Type: "Video"},
			})

		case "/v1/medias/abc/stats.json":
			json.NewEncoder(w).Encode(mediaStats{PlayCount: 100, PlayRate: 0.5, Engagement: 0.8, HoursWatched: 40})

		case "/v1/medias/def/stats.json":
			if failStatsFor == "def" {
				http.Error(w, "stats backend down", http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(mediaStats{PlayCount: 50, PlayRate: 0.4, Engagement: 0.3, HoursWatched: 10})

		case "/v1/medias/ghi/stats.json":
			json.NewEncoder(w).Encode(mediaStats{PlayCount: 5, PlayRate: 0.2, Engagement: 0.2, HoursWatched: 1})

		default:
			http.NotFound(w, r)
		}
	}))
}

func TestFetchBuildsSnapshot(t *testing.T) {
	server := newTestServer(t, "")
	defer server.Close()

	adapter := NewAdapter(Config{APIToken: "test-token", Timeout: 5 * time.Second})
	adapter.SetHTTPClient(server.Client(), server.URL)

	data, err := adapter.Fetch(context.Background(), fetchTime)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	snap := data.(*Snapshot)

	if snap.Plays != 900 {
		t.Errorf("Plays = %d, want 900", snap.Plays)
	}
	if snap.PlaysDelta == nil || *snap.PlaysDelta != 20.0 {
		t.Errorf("PlaysDelta = %v, want 20.0", snap.PlaysDelta)
	}
	if snap.PlayRate != 45.0 {
		t.Errorf("PlayRate = %v, want 45.0", snap.PlayRate)
	}
	if len(snap.Medias) != 3 {
		t.Fatalf("got %d medias, want 3", len(snap.Medias))
	}

	// avg finish rate is 43.3; the webinar sits below 70% of it with enough
	// plays, the teaser sits below too but with only 5 plays stays unflagged.
	if snap.Medias[0].LowFinishRate {
		t.Error("Product tour should not be flagged")
	}
	if !snap.Medias[1].LowFinishRate {
		t.Error("Webinar replay should be flagged low finish rate")
	}
	if snap.Medias[2].LowFinishRate {
		t.Error("New teaser is under the plays floor and should not be flagged")
	}
}

func TestFetchItemLevelError(t *testing.T) {
	server := newTestServer(t, "def")
	defer server.Close()

	adapter := NewAdapter(Config{APIToken: "test-token", Timeout: 5 * time.Second})
	adapter.SetHTTPClient(server.Client(), server.URL)

	data, err := adapter.Fetch(context.Background(), fetchTime)
	if err != nil {
		t.Fatalf("item-level failure must not fail the adapter: %v", err)
	}
	snap := data.(*Snapshot)

	if len(snap.Medias) != 3 {
		t.Fatalf("got %d medias, want 3", len(snap.Medias))
	}
	if snap.Medias[1].Error == "" {
		t.Error("failed media should carry an inline error")
	}
	if snap.Medias[1].MediaID != "def" || snap.Medias[1].Name != "Webinar replay" {
		t.Error("failed media should keep its identity")
	}
	if snap.Medias[0].Error != "" || snap.Medias[2].Error != "" {
		t.Error("healthy medias should not carry errors")
	}
}

func TestFetchMissingToken(t *testing.T) {
	adapter := NewAdapter(Config{})
	_, err := adapter.Fetch(context.Background(), fetchTime)

	var confErr *source.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
}

func TestFetchAccountError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := NewAdapter(Config{APIToken: "bad", Timeout: 5 * time.Second})
	adapter.SetHTTPClient(server.Client(), server.URL)

	_, err := adapter.Fetch(context.Background(), fetchTime)

	var upErr *source.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("want UpstreamError, got %v", err)
	}
	if upErr.Source != source.Wistia {
		t.Errorf("UpstreamError.Source = %q, want wistia", upErr.Source)
	}
}
