// Package kit fetches weekly email performance from the Kit (ConvertKit)
// v4 API.
package kit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/marketing-pulse/internal/metrics"
	"github.com/ignite/marketing-pulse/internal/pkg/httpretry"
	"github.com/ignite/marketing-pulse/internal/source"
)

const (
	defaultBaseURL = "https://api.kit.com"

	// lagDays: opens keep trickling in for a day after a send.
	lagDays = 1

	// Tunable business parameters for the underperforming-broadcast flag.
	underperformFraction = 0.5
	minRecipientsFloor   = 50
)

// Config holds what the adapter needs from process configuration.
type Config struct {
	APIKey  string
	Timeout time.Duration
}

// broadcast is one entry of the broadcasts listing.
type broadcast struct {
	ID          int64  `json:"id"`
	Subject     string `json:"subject"`
	PublishedAt string `json:"published_at"`
}

// broadcastsResponse is the broadcasts listing reply.
type broadcastsResponse struct {
	Broadcasts []broadcast `json:"broadcasts"`
}

// broadcastStats is the per-broadcast stats reply.
type broadcastStats struct {
	Broadcast struct {
		Stats struct {
			Recipients int64 `json:"recipients"`
			Opens      int64 `json:"opens"`
			Clicks     int64 `json:"clicks"`
			Unsubs     int64 `json:"unsubscribes"`
		} `json:"stats"`
	} `json:"broadcast"`
}

// growthStats is the account growth reply for a date range.
type growthStats struct {
	Stats struct {
		Subscribers    int64 `json:"subscribers"`
		NewSubscribers int64 `json:"new_subscribers"`
		Cancellations  int64 `json:"cancellations"`
	} `json:"stats"`
}

// BroadcastStat is one broadcast's performance. Error is set when the stats
// call for that broadcast failed; the subject still identifies it.
type BroadcastStat struct {
	BroadcastID     int64   `json:"broadcastId"`
	Subject         string  `json:"subject"`
	Recipients      int64   `json:"recipients"`
	OpenRate        float64 `json:"openRate"`
	ClickRate       float64 `json:"clickRate"`
	Unsubscribes    int64   `json:"unsubscribes"`
	Underperforming bool    `json:"underperforming"`
	Error           string  `json:"error,omitempty"`
}

// Snapshot is the normalized Kit weekly record.
type Snapshot struct {
	Window                string          `json:"window"`
	TotalSubscribers      int64           `json:"totalSubscribers"`
	NewSubscribers        int64           `json:"newSubscribers"`
	NewSubscribersDelta   *float64        `json:"newSubscribersDelta"`
	Cancellations         int64           `json:"cancellations"`
	NetSubscriberChange   int64           `json:"netSubscriberChange"`
	BroadcastsSent        int             `json:"broadcastsSent"`
	AvgOpenRate           float64         `json:"avgOpenRate"`
	AvgClickRate          float64         `json:"avgClickRate"`
	Broadcasts            []BroadcastStat `json:"broadcasts"`
}

// Adapter is the Kit source adapter.
type Adapter struct {
	config     Config
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// NewAdapter creates the Kit adapter.
func NewAdapter(config Config) *Adapter {
	return &Adapter{
		config:  config,
		baseURL: defaultBaseURL,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: config.Timeout,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client and base URL (tests).
func (a *Adapter) SetHTTPClient(client httpretry.HTTPDoer, baseURL string) {
	a.httpClient = client
	a.baseURL = baseURL
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return source.Kit }

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, now time.Time) (any, error) {
	if a.config.APIKey == "" {
		return nil, source.MissingConfig(source.Kit, "api_key")
	}

	w := source.WindowsFor(now, lagDays)
	curStart, curEnd := w.Current.Format("2006-01-02")
	prevStart, prevEnd := w.Previous.Format("2006-01-02")

	current, err := a.growth(ctx, curStart, curEnd)
	if err != nil {
		return nil, err
	}
	previous, err := a.growth(ctx, prevStart, prevEnd)
	if err != nil {
		return nil, err
	}

	broadcasts, err := a.listBroadcasts(ctx, w.Current)
	if err != nil {
		return nil, err
	}
	stats := a.broadcastStats(ctx, broadcasts)

	snap := &Snapshot{
		Window:              curStart + " to " + curEnd,
		TotalSubscribers:    current.Stats.Subscribers,
		NewSubscribers:      current.Stats.NewSubscribers,
		NewSubscribersDelta: metrics.DeltaFromCounts(current.Stats.NewSubscribers, previous.Stats.NewSubscribers),
		Cancellations:       current.Stats.Cancellations,
		NetSubscriberChange: current.Stats.NewSubscribers - current.Stats.Cancellations,
		BroadcastsSent:      len(stats),
		Broadcasts:          stats,
	}

	var openRates, clickRates []float64
	for _, b := range stats {
		if b.Error == "" {
			openRates = append(openRates, b.OpenRate)
			clickRates = append(clickRates, b.ClickRate)
		}
	}
	snap.AvgOpenRate = metrics.Round(metrics.Average(openRates), 1)
	snap.AvgClickRate = metrics.Round(metrics.Average(clickRates), 1)

	return snap, nil
}

// broadcastStats enriches each broadcast with stats, degrading failed
// lookups to inline item errors, then applies the underperformer rule.
func (a *Adapter) broadcastStats(ctx context.Context, broadcasts []broadcast) []BroadcastStat {
	out := make([]BroadcastStat, 0, len(broadcasts))
	for _, b := range broadcasts {
		row := BroadcastStat{BroadcastID: b.ID, Subject: b.Subject}

		var stats broadcastStats
		path := fmt.Sprintf("/v4/broadcasts/%d/stats", b.ID)
		if err := a.get(ctx, path, nil, &stats); err != nil {
			row.Error = err.Error()
			out = append(out, row)
			continue
		}

		s := stats.Broadcast.Stats
		row.Recipients = s.Recipients
		row.OpenRate = metrics.Rate(float64(s.Opens), float64(s.Recipients), 1)
		row.ClickRate = metrics.Rate(float64(s.Clicks), float64(s.Recipients), 1)
		row.Unsubscribes = s.Unsubs
		out = append(out, row)
	}

	rates := make([]float64, 0, len(out))
	for _, r := range out {
		if r.Error == "" {
			rates = append(rates, r.OpenRate)
		}
	}
	avg := metrics.Average(rates)
	for i := range out {
		if out[i].Error != "" {
			continue
		}
		out[i].Underperforming = metrics.Underperforming(
			out[i].OpenRate, avg, float64(out[i].Recipients),
			underperformFraction, minRecipientsFloor)
	}
	return out
}

// growth fetches account growth stats for a date range.
func (a *Adapter) growth(ctx context.Context, start, end string) (*growthStats, error) {
	q := url.Values{}
	q.Set("starting", start)
	q.Set("ending", end)

	var stats growthStats
	if err := a.get(ctx, "/v4/account/growth_stats", q, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// listBroadcasts fetches broadcasts published within the window.
func (a *Adapter) listBroadcasts(ctx context.Context, w source.Window) ([]broadcast, error) {
	var resp broadcastsResponse
	if err := a.get(ctx, "/v4/broadcasts", nil, &resp); err != nil {
		return nil, err
	}

	sent := make([]broadcast, 0, len(resp.Broadcasts))
	for _, b := range resp.Broadcasts {
		published, err := time.Parse(time.RFC3339, b.PublishedAt)
		if err != nil {
			continue // drafts carry no publish time
		}
		if published.Before(w.Start) || published.After(w.End.AddDate(0, 0, 1)) {
			continue
		}
		sent = append(sent, b)
	}
	return sent, nil
}

// get performs one authenticated GET and decodes the JSON reply.
func (a *Adapter) get(ctx context.Context, path string, q url.Values, out any) error {
	fullURL := a.baseURL + path
	if len(q) > 0 {
		fullURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("kit: creating request: %w", err)
	}
	req.Header.Set("X-Kit-Api-Key", a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &source.UpstreamError{Source: source.Kit, Path: path, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &source.UpstreamError{Source: source.Kit, Path: path, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &source.UpstreamError{Source: source.Kit, Path: path, Status: resp.StatusCode, Message: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &source.UpstreamError{Source: source.Kit, Path: path, Message: "malformed response body", Err: err}
	}
	return nil
}
