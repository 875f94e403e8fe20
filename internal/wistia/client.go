// Package wistia fetches weekly video hosting performance from the Wistia
// Stats API.
package wistia

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
	defaultBaseURL = "https://api.wistia.com"

	// lagDays: Wistia stats are near-realtime.
	lagDays = 0

	mediaLimit = 25

	// Tunable business parameters for the low-finish-rate flag.
	lowFinishFraction = 0.7
	minPlaysFloor     = 10
)

// Config holds what the adapter needs from process configuration.
type Config struct {
	APIToken string
	Timeout  time.Duration
}

// media is one entry of the medias listing.
type media struct {
	HashedID string `json:"hashed_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// mediaStats is the per-media stats reply.
type mediaStats struct {
	LoadCount    int64   `json:"load_count"`
	PlayCount    int64   `json:"play_count"`
	PlayRate     float64 `json:"play_rate"`
	HoursWatched float64 `json:"hours_watched"`
	Engagement   float64 `json:"engagement"`
}

// accountStats is the account-wide stats reply for a date range.
type accountStats struct {
	LoadCount    int64   `json:"load_count"`
	PlayCount    int64   `json:"play_count"`
	PlayRate     float64 `json:"play_rate"`
	HoursWatched float64 `json:"hours_watched"`
}

// MediaStat is one video's performance. Error is set when that media's
// stats call failed; the row keeps its identity so the report can name it.
type MediaStat struct {
	MediaID       string  `json:"mediaId"`
	Name          string  `json:"name"`
	Plays         int64   `json:"plays"`
	PlayRate      float64 `json:"playRate"`
	FinishRate    float64 `json:"finishRate"`
	HoursWatched  float64 `json:"hoursWatched"`
	LowFinishRate bool    `json:"lowFinishRate"`
	Error         string  `json:"error,omitempty"`
}

// Snapshot is the normalized Wistia weekly record.
type Snapshot struct {
	Window            string      `json:"window"`
	Loads             int64       `json:"loads"`
	Plays             int64       `json:"plays"`
	PlaysDelta        *float64    `json:"playsDelta"`
	PlayRate          float64     `json:"playRate"`
	PlayRateDelta     *float64    `json:"playRateDelta"`
	HoursWatched      float64     `json:"hoursWatched"`
	HoursWatchedDelta *float64    `json:"hoursWatchedDelta"`
	Medias            []MediaStat `json:"medias"`
}

// Adapter is the Wistia source adapter.
type Adapter struct {
	config     Config
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// NewAdapter creates the Wistia adapter.
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
func (a *Adapter) Name() string { return source.Wistia }

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, now time.Time) (any, error) {
	if a.config.APIToken == "" {
		return nil, source.MissingConfig(source.Wistia, "api_token")
	}

	w := source.WindowsFor(now, lagDays)
	curStart, curEnd := w.Current.Format("2006-01-02")
	prevStart, prevEnd := w.Previous.Format("2006-01-02")

	current, err := a.account(ctx, curStart, curEnd)
	if err != nil {
		return nil, err
	}
	previous, err := a.account(ctx, prevStart, prevEnd)
	if err != nil {
		return nil, err
	}

	medias, err := a.listMedias(ctx)
	if err != nil {
		return nil, err
	}
	stats := a.mediaStats(ctx, medias)

	return &Snapshot{
		Window:            curStart + " to " + curEnd,
		Loads:             current.LoadCount,
		Plays:             current.PlayCount,
		PlaysDelta:        metrics.DeltaFromCounts(current.PlayCount, previous.PlayCount),
		PlayRate:          metrics.Round(current.PlayRate*100, 1),
		PlayRateDelta:     metrics.Delta(current.PlayRate, previous.PlayRate),
		HoursWatched:      metrics.Round(current.HoursWatched, 1),
		HoursWatchedDelta: metrics.Delta(current.HoursWatched, previous.HoursWatched),
		Medias:            stats,
	}, nil
}

// mediaStats enriches each media with its stats. A failed stats call
// degrades to an inline item error; the adapter keeps going.
func (a *Adapter) mediaStats(ctx context.Context, medias []media) []MediaStat {
	out := make([]MediaStat, 0, len(medias))
	for _, m := range medias {
		row := MediaStat{MediaID: m.HashedID, Name: m.Name}

		var stats mediaStats
		path := fmt.Sprintf("/v1/medias/%s/stats.json", m.HashedID)
		if err := a.get(ctx, path, nil, &stats); err != nil {
			row.Error = err.Error()
			out = append(out, row)
			continue
		}

		row.Plays = stats.PlayCount
		row.PlayRate = metrics.Round(stats.PlayRate*100, 1)
		row.FinishRate = metrics.Round(stats.Engagement*100, 1)
		row.HoursWatched = metrics.Round(stats.HoursWatched, 1)
		out = append(out, row)
	}

	rates := make([]float64, 0, len(out))
	for _, r := range out {
		if r.Error == "" {
			rates = append(rates, r.FinishRate)
		}
	}
	avg := metrics.Average(rates)
	for i := range out {
		if out[i].Error != "" {
			continue
		}
		out[i].LowFinishRate = metrics.Underperforming(
			out[i].FinishRate, avg, float64(out[i].Plays),
			lowFinishFraction, minPlaysFloor)
	}
	return out
}

// account fetches account-wide stats for a date range.
func (a *Adapter) account(ctx context.Context, start, end string) (*accountStats, error) {
	q := url.Values{}
	q.Set("start_date", start)
	q.Set("end_date", end)

	var stats accountStats
	if err := a.get(ctx, "/v1/stats/account.json", q, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// listMedias fetches the most recent videos.
func (a *Adapter) listMedias(ctx context.Context) ([]media, error) {
	q := url.Values{}
	q.Set("type", "Video")
	q.Set("sort_by", "created")
	q.Set("sort_direction", "0")
	q.Set("per_page", fmt.Sprintf("%d", mediaLimit))

	var medias []media
	if err := a.get(ctx, "/v1/medias.json", q, &medias); err != nil {
		return nil, err
	}
	return medias, nil
}

// get performs one authenticated GET and decodes the JSON reply.
func (a *Adapter) get(ctx context.Context, path string, q url.Values, out any) error {
	fullURL := a.baseURL + path
	if len(q) > 0 {
		fullURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("wistia: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.APIToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &source.UpstreamError{Source: source.Wistia, Path: path, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &source.UpstreamError{Source: source.Wistia, Path: path, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &source.UpstreamError{Source: source.Wistia, Path: path, Status: resp.StatusCode, Message: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &source.UpstreamError{Source: source.Wistia, Path: path, Message: "malformed response body", Err: err}
	}
	return nil
}
