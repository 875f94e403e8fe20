// Package ga4 fetches weekly web analytics from the Google Analytics Data
// API using a service-account credential.
package ga4

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/ignite/marketing-pulse/internal/metrics"
	"github.com/ignite/marketing-pulse/internal/pkg/httpretry"
	"github.com/ignite/marketing-pulse/internal/source"
)

const (
	defaultBaseURL = "https://analyticsdata.googleapis.com"
	scope          = "https://www.googleapis.com/auth/analytics.readonly"

	// lagDays: GA4 data for a day is stable by the next morning.
	lagDays = 1

	topChannelCount = 5
)

// Adapter is the GA4 source adapter.
type Adapter struct {
	config     Config
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// NewAdapter creates the GA4 adapter. The authenticated client is built
// lazily at fetch time so a missing credential fails the fetch, not startup.
func NewAdapter(config Config) *Adapter {
	return &Adapter{config: config, baseURL: defaultBaseURL}
}

// SetHTTPClient sets a custom HTTP client and base URL (tests).
func (a *Adapter) SetHTTPClient(client httpretry.HTTPDoer, baseURL string) {
	a.httpClient = client
	a.baseURL = baseURL
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return source.GA4 }

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, now time.Time) (any, error) {
	if a.config.PropertyID == "" {
		return nil, source.MissingConfig(source.GA4, "property_id")
	}
	if a.config.CredentialsJSON == "" && a.httpClient == nil {
		return nil, source.MissingConfig(source.GA4, "credentials_json")
	}

	if a.httpClient == nil {
		jwt, err := google.JWTConfigFromJSON([]byte(a.config.CredentialsJSON), scope)
		if err != nil {
			return nil, fmt.Errorf("ga4: parsing service account credentials: %w", err)
		}
		client := jwt.Client(ctx)
		client.Timeout = a.config.Timeout
		a.httpClient = httpretry.NewRetryClient(client, 3)
	}

	w := source.WindowsFor(now, lagDays)

	current, err := a.runTotals(ctx, w.Current)
	if err != nil {
		return nil, err
	}
	previous, err := a.runTotals(ctx, w.Previous)
	if err != nil {
		return nil, err
	}
	channels, err := a.runChannels(ctx, w.Current)
	if err != nil {
		return nil, err
	}

	start, end := w.Current.Format("2006-01-02")
	snap := &Snapshot{
		Window:                start + " to " + end,
		Sessions:              current.sessions,
		SessionsDelta:         metrics.DeltaFromCounts(current.sessions, previous.sessions),
		TotalUsers:            current.users,
		TotalUsersDelta:       metrics.DeltaFromCounts(current.users, previous.users),
		NewUsers:              current.newUsers,
		Conversions:           current.conversions,
		ConversionsDelta:      metrics.DeltaFromCounts(current.conversions, previous.conversions),
		EngagementRate:        metrics.Round(current.engagementRate*100, 1),
		EngagementRateDelta:   metrics.Delta(current.engagementRate, previous.engagementRate),
		AvgSessionDurationSec: metrics.Round(current.avgDuration, 1),
		TopChannels:           channels,
	}
	return snap, nil
}

type totals struct {
	sessions       int64
	users          int64
	newUsers       int64
	conversions    int64
	engagementRate float64
	avgDuration    float64
}

// runTotals fetches property-wide totals for one window.
func (a *Adapter) runTotals(ctx context.Context, w source.Window) (*totals, error) {
	start, end := w.Format("2006-01-02")
	req := runReportRequest{
		DateRanges: []dateRange{{StartDate: start, EndDate: end}},
		Metrics: []metricRef{
			{Name: "sessions"}, {Name: "totalUsers"}, {Name: "newUsers"},
			{Name: "keyEvents"}, {Name: "engagementRate"}, {Name: "averageSessionDuration"},
		},
	}

	resp, err := a.runReport(ctx, req)
	if err != nil {
		return nil, err
	}

	t := &totals{}
	if len(resp.Rows) == 0 {
		return t, nil
	}
	vals := resp.Rows[0].MetricValues
	if len(vals) < 6 {
		return nil, &source.UpstreamError{Source: source.GA4, Path: "runReport",
			Message: fmt.Sprintf("expected 6 metric values, got %d", len(vals))}
	}
	t.sessions = parseCount(vals[0].Value)
	t.users = parseCount(vals[1].Value)
	t.newUsers = parseCount(vals[2].Value)
	t.conversions = parseCount(vals[3].Value)
	t.engagementRate = parseFloat(vals[4].Value)
	t.avgDuration = parseFloat(vals[5].Value)
	return t, nil
}

// runChannels fetches the top acquisition channels by sessions.
func (a *Adapter) runChannels(ctx context.Context, w source.Window) ([]ChannelStat, error) {
	start, end := w.Format("2006-01-02")
	req := runReportRequest{
		DateRanges: []dateRange{{StartDate: start, EndDate: end}},
		Metrics:    []metricRef{{Name: "sessions"}},
		Dimensions: []dimRef{{Name: "sessionDefaultChannelGroup"}},
		OrderBys:   []orderBy{{Metric: &orderByMetric{MetricName: "sessions"}, Desc: true}},
		Limit:      strconv.Itoa(topChannelCount),
	}

	resp, err := a.runReport(ctx, req)
	if err != nil {
		return nil, err
	}

	var total int64
	rows := make([]ChannelStat, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row.DimensionValues) == 0 || len(row.MetricValues) == 0 {
			continue
		}
		sessions := parseCount(row.MetricValues[0].Value)
		total += sessions
		rows = append(rows, ChannelStat{Channel: row.DimensionValues[0].Value, Sessions: sessions})
	}
	for i := range rows {
		rows[i].Share = metrics.Rate(float64(rows[i].Sessions), float64(total), 1)
	}
	return rows, nil
}

// runReport posts one runReport request and decodes the reply.
func (a *Adapter) runReport(ctx context.Context, body runReportRequest) (*runReportResponse, error) {
	path := fmt.Sprintf("/v1beta/properties/%s:runReport", a.config.PropertyID)

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ga4: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("ga4: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &source.UpstreamError{Source: source.GA4, Path: path, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &source.UpstreamError{Source: source.GA4, Path: path, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &source.UpstreamError{Source: source.GA4, Path: path, Status: resp.StatusCode, Message: string(respBody)}
	}

	var report runReportResponse
	if err := json.Unmarshal(respBody, &report); err != nil {
		return nil, &source.UpstreamError{Source: source.GA4, Path: path, Message: "malformed response body", Err: err}
	}
	return &report, nil
}

// parseCount reads a GA4 metric value, which arrives as a decimal string.
// Unparseable values default to 0 rather than failing the adapter.
func parseCount(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// keyEvents can arrive as "12.0"
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
