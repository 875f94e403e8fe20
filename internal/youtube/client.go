// Package youtube fetches weekly channel and per-video performance from the
// YouTube Analytics and Data APIs using an OAuth refresh token.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/marketing-pulse/internal/metrics"
	"github.com/ignite/marketing-pulse/internal/pkg/httpretry"
	"github.com/ignite/marketing-pulse/internal/source"
)

const (
	defaultAnalyticsURL = "https://youtubeanalytics.googleapis.com"
	defaultDataURL      = "https://www.googleapis.com"

	// lagDays: YouTube Analytics lags about two days.
	lagDays = 2

	topVideoCount = 15

	// Tunable business parameters for the low-retention flag.
	lowRetentionFraction = 0.7
	minViewsFloor        = 10
)

// Config holds what the adapter needs from process configuration.
type Config struct {
	ChannelID    string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
}

// reportResponse is the YouTube Analytics reports reply: column headers plus
// positional value rows.
type reportResponse struct {
	ColumnHeaders []struct {
		Name string `json:"name"`
	} `json:"columnHeaders"`
	Rows [][]any `json:"rows"`
}

// videoListResponse is the Data API videos.list reply subset.
type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// VideoStat is one video's weekly performance. Error is set when the title
// lookup for that video failed; the row still carries its metrics.
type VideoStat struct {
	VideoID            string   `json:"videoId"`
	Title              string   `json:"title,omitempty"`
	Views              int64    `json:"views"`
	WatchTimeMinutes   int64    `json:"watchTimeMinutes"`
	AvgViewedPercent   float64  `json:"avgViewedPercent"`
	LowRetention       bool     `json:"lowRetention"`
	Error              string   `json:"error,omitempty"`
}

// Snapshot is the normalized YouTube weekly record.
type Snapshot struct {
	Window                string      `json:"window"`
	Views                 int64       `json:"views"`
	ViewsDelta            *float64    `json:"viewsDelta"`
	WatchTimeHours        float64     `json:"watchTimeHours"`
	WatchTimeHoursDelta   *float64    `json:"watchTimeHoursDelta"`
	SubscribersGained     int64       `json:"subscribersGained"`
	AvgViewDurationSec    int64       `json:"avgViewDurationSec"`
	TopVideos             []VideoStat `json:"topVideos"`
}

// Adapter is the YouTube source adapter.
type Adapter struct {
	config       Config
	analyticsURL string
	dataURL      string
	httpClient   httpretry.HTTPDoer
}

// NewAdapter creates the YouTube adapter.
func NewAdapter(config Config) *Adapter {
	return &Adapter{config: config, analyticsURL: defaultAnalyticsURL, dataURL: defaultDataURL}
}

// SetHTTPClient sets a custom HTTP client and base URLs (tests).
func (a *Adapter) SetHTTPClient(client httpretry.HTTPDoer, analyticsURL, dataURL string) {
	a.httpClient = client
	a.analyticsURL = analyticsURL
	a.dataURL = dataURL
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return source.YouTube }

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, now time.Time) (any, error) {
	if a.config.ChannelID == "" {
		return nil, source.MissingConfig(source.YouTube, "channel_id")
	}
	if a.httpClient == nil {
		for key, val := range map[string]string{
			"client_id":     a.config.ClientID,
			"client_secret": a.config.ClientSecret,
			"refresh_token": a.config.RefreshToken,
		} {
			if val == "" {
				return nil, source.MissingConfig(source.YouTube, key)
			}
		}
		conf := &oauth2.Config{
			ClientID:     a.config.ClientID,
			ClientSecret: a.config.ClientSecret,
			Endpoint:     google.Endpoint,
		}
		ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: a.config.RefreshToken})
		client := oauth2.NewClient(ctx, ts)
		client.Timeout = a.config.Timeout
		a.httpClient = httpretry.NewRetryClient(client, 3)
	}

	w := source.WindowsFor(now, lagDays)

	current, err := a.channelTotals(ctx, w.Current)
	if err != nil {
		return nil, err
	}
	previous, err := a.channelTotals(ctx, w.Previous)
	if err != nil {
		return nil, err
	}
	videos, err := a.topVideos(ctx, w.Current)
	if err != nil {
		return nil, err
	}

	start, end := w.Current.Format("2006-01-02")
	return &Snapshot{
		Window:              start + " to " + end,
		Views:               current.views,
		ViewsDelta:          metrics.DeltaFromCounts(current.views, previous.views),
		WatchTimeHours:      metrics.Round(float64(current.minutes)/60, 1),
		WatchTimeHoursDelta: metrics.Delta(float64(current.minutes), float64(previous.minutes)),
		SubscribersGained:   current.subsGained,
		AvgViewDurationSec:  current.avgDuration,
		TopVideos:           videos,
	}, nil
}

type channelTotals struct {
	views       int64
	minutes     int64
	subsGained  int64
	avgDuration int64
}

// channelTotals fetches channel-wide totals for one window.
func (a *Adapter) channelTotals(ctx context.Context, w source.Window) (*channelTotals, error) {
	start, end := w.Format("2006-01-02")
	q := url.Values{}
	q.Set("ids", "channel=="+a.config.ChannelID)
	q.Set("startDate", start)
	q.Set("endDate", end)
	q.Set("metrics", "views,estimatedMinutesWatched,subscribersGained,averageViewDuration")

	var resp reportResponse
	if err := a.get(ctx, a.analyticsURL+"/v2/reports?"+q.Encode(), "/v2/reports", &resp); err != nil {
		return nil, err
	}

	t := &channelTotals{}
	if len(resp.Rows) == 0 {
		return t, nil
	}
	row := resp.Rows[0]
	if len(row) < 4 {
		return nil, &source.UpstreamError{Source: source.YouTube, Path: "/v2/reports",
			Message: fmt.Sprintf("expected 4 report columns, got %d", len(row))}
	}
	t.views = asInt(row[0])
	t.minutes = asInt(row[1])
	t.subsGained = asInt(row[2])
	t.avgDuration = asInt(row[3])
	return t, nil
}

// topVideos fetches the week's top videos with retention, then enriches each
// with its title from the Data API. A failed title lookup degrades to an
// inline item error instead of failing the adapter.
func (a *Adapter) topVideos(ctx context.Context, w source.Window) ([]VideoStat, error) {
	start, end := w.Format("2006-01-02")
	q := url.Values{}
	q.Set("ids", "channel=="+a.config.ChannelID)
	q.Set("startDate", start)
	q.Set("endDate", end)
	q.Set("metrics", "views,estimatedMinutesWatched,averageViewPercentage")
	q.Set("dimensions", "video")
	q.Set("sort", "-views")
	q.Set("maxResults", fmt.Sprintf("%d", topVideoCount))

	var resp reportResponse
	if err := a.get(ctx, a.analyticsURL+"/v2/reports?"+q.Encode(), "/v2/reports", &resp); err != nil {
		return nil, err
	}

	videos := make([]VideoStat, 0, len(resp.Rows))
	retentions := make([]float64, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row) < 4 {
			continue
		}
		id, _ := row[0].(string)
		v := VideoStat{
			VideoID:          id,
			Views:            asInt(row[1]),
			WatchTimeMinutes: asInt(row[2]),
			AvgViewedPercent: metrics.Round(asFloat(row[3]), 1),
		}
		retentions = append(retentions, v.AvgViewedPercent)
		videos = append(videos, v)
	}

	avg := metrics.Average(retentions)
	for i := range videos {
		videos[i].LowRetention = metrics.Underperforming(
			videos[i].AvgViewedPercent, avg, float64(videos[i].Views),
			lowRetentionFraction, minViewsFloor)
	}

	a.fillTitles(ctx, videos)
	return videos, nil
}

// fillTitles resolves video titles, recording per-item errors inline.
func (a *Adapter) fillTitles(ctx context.Context, videos []VideoStat) {
	if len(videos) == 0 {
		return
	}
	ids := ""
	for i, v := range videos {
		if i > 0 {
			ids += ","
		}
		ids += v.VideoID
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", ids)

	var resp videoListResponse
	if err := a.get(ctx, a.dataURL+"/youtube/v3/videos?"+q.Encode(), "/youtube/v3/videos", &resp); err != nil {
		for i := range videos {
			videos[i].Error = fmt.Sprintf("title lookup failed: %v", err)
		}
		return
	}

	titles := make(map[string]string, len(resp.Items))
	for _, item := range resp.Items {
		titles[item.ID] = item.Snippet.Title
	}
	for i := range videos {
		if title, ok := titles[videos[i].VideoID]; ok {
			videos[i].Title = title
		} else {
			videos[i].Error = "video metadata unavailable"
		}
	}
}

// get performs one authenticated GET and decodes the JSON reply.
func (a *Adapter) get(ctx context.Context, fullURL, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("youtube: creating request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &source.UpstreamError{Source: source.YouTube, Path: path, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &source.UpstreamError{Source: source.YouTube, Path: path, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &source.UpstreamError{Source: source.YouTube, Path: path, Status: resp.StatusCode, Message: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &source.UpstreamError{Source: source.YouTube, Path: path, Message: "malformed response body", Err: err}
	}
	return nil
}

// Analytics rows carry numbers as JSON numbers; ids as strings.
func asInt(v any) int64 {
	f, _ := v.(float64)
	return int64(f)
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
