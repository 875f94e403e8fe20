package metaads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ignite/marketing-pulse/internal/source"
)

var fetchTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "test-token" {
			t.Error("missing access_token query parameter")
		}
		if !strings.HasPrefix(r.URL.Path, "/act_12345/insights") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		if r.URL.Query().Get("level") == "campaign" {
			json.NewEncoder(w).Encode(insightsResponse{Data: []insightsRow{
				{CampaignName: "Evergreen", Spend: "600.00", Impressions: "30000", Clicks: "900", CTR: "3.0", CPC: "0.67",
					Actions: []actionValue{{ActionType: "purchase", Value: "18"}}},
				{CampaignName: "Retargeting", Spend: "300.00", Impressions: "18000", Clicks: "90", CTR: "0.5", CPC: "3.33",
					Actions: []actionValue{{ActionType: "lead", Value: "2"}}},
			}})
			return
		}

		// Account totals, current vs prior week by time_range since date.
		if strings.Contains(r.URL.Query().Get("time_range"), "2025-03-03") {
			json.NewEncoder(w).Encode(insightsResponse{Data: []insightsRow{{
				Spend: "1000.00", Impressions: "50000", Clicks: "1500",
				Actions:      []actionValue{{ActionType: "purchase", Value: "20"}, {ActionType: "lead", Value: "10"}},
				ActionValues: []actionValue{{ActionType: "purchase", Value: "3000.00"}},
			}}})
			return
		}
		json.NewEncoder(w).Encode(insightsResponse{Data: []insightsRow{{
			Spend: "800.00", Impressions: "40000", Clicks: "1000",
			Actions:      []actionValue{{ActionType: "purchase", Value: "15"}},
			ActionValues: []actionValue{{ActionType: "purchase", Value: "2000.00"}},
		}}})
	}))
}

func TestFetchBuildsSnapshot(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	adapter := NewAdapter(Config{AccountID: "12345", AccessToken: "test-token", Timeout: 5 * time.Second})
	adapter.SetHTTPClient(server.Client(), server.URL)

	data, err := adapter.Fetch(context.Background(), fetchTime)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	snap := data.(*Snapshot)

	if snap.Spend != 1000.00 {
		t.Errorf("Spend = %v, want 1000", snap.Spend)
	}
	if snap.SpendDelta == nil || *snap.SpendDelta != 25.0 {
		t.Errorf("SpendDelta = %v, want 25.0", snap.SpendDelta)
	}
	if snap.CTR != 3.0 {
		t.Errorf("CTR = %v, want 3.0", snap.CTR)
	}
	if snap.CTRDelta == nil || *snap.CTRDelta != 20.0 {
		t.Errorf("CTRDelta = %v, want 20.0", snap.CTRDelta)
	}
	if snap.Conversions != 30 {
		t.Errorf("Conversions = %d, want 30 (purchases plus leads)", snap.Conversions)
	}
	if snap.CPC != 0.67 {
		t.Errorf("CPC = %v, want 0.67", snap.CPC)
	}
	if snap.ROAS != 3.0 {
		t.Errorf("ROAS = %v, want 3.0", snap.ROAS)
	}

	if len(snap.Campaigns) != 2 {
		t.Fatalf("got %d campaigns, want 2", len(snap.Campaigns))
	}
	// Retargeting: CTR 0.5 < 0.5 * avg(3.0, 0.5) with spend over the floor
	if snap.Campaigns[0].Problem {
		t.Error("Evergreen should not be flagged")
	}
	if !snap.Campaigns[1].Problem {
		t.Error("Retargeting should be flagged as a problem campaign")
	}
}

func TestFetchAPIErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The Graph API reports errors inside a 200-class body too
		json.NewEncoder(w).Encode(insightsResponse{Error: &apiError{
			Message: "Invalid OAuth access token", Type: "OAuthException", Code: 190,
		}})
	}))
	defer server.Close()

	adapter := NewAdapter(Config{AccountID: "12345", AccessToken: "expired", Timeout: 5 * time.Second})
	adapter.SetHTTPClient(server.Client(), server.URL)

	_, err := adapter.Fetch(context.Background(), fetchTime)

	var upErr *source.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("want UpstreamError, got %v", err)
	}
	if !strings.Contains(upErr.Message, "code 190") {
		t.Errorf("UpstreamError.Message = %q, want OAuth code included", upErr.Message)
	}
}

func TestFetchMissingCredentials(t *testing.T) {
	adapter := NewAdapter(Config{AccountID: "12345"})
	_, err := adapter.Fetch(context.Background(), fetchTime)

	var confErr *source.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
	if confErr.Key != "access_token" {
		t.Errorf("ConfigurationError.Key = %q, want access_token", confErr.Key)
	}
}
