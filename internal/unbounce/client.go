// Package unbounce fetches weekly landing page performance from the
// Unbounce API.
package unbounce

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
	defaultBaseURL = "https://api.unbounce.com"

	// lagDays: Unbounce stats are near-realtime.
	lagDays = 0

	// Tunable business parameters for the underperforming-page flag.
	underperformFraction = 0.5
	minVisitorsFloor     = 50
)

// Config holds what the adapter needs from process configuration.
type Config struct {
	SubAccountID string
	APIKey       string
	Timeout      time.Duration
}

// page is one entry of the pages listing.
type page struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	State string `json:"state"`
}

// pagesResponse is the pages listing reply.
type pagesResponse struct {
	Pages []page `json:"pages"`
}

// pageStats is the per-page stats reply for a date range.
type pageStats struct {
	Visitors    int64 `json:"visitors"`
	Conversions int64 `json:"conversions"`
}

// PageStat is one landing page's weekly performance. Error is set when that
// page's stats call failed.
type PageStat struct {
	PageID          string   `json:"pageId"`
	Name            string   `json:"name"`
	URL             string   `json:"url"`
	Visitors        int64    `json:"visitors"`
	Conversions     int64    `json:"conversions"`
	ConversionRate  float64  `json:"conversionRate"`
	ConversionDelta *float64 `json:"conversionDelta"`
	Underperforming bool     `json:"underperforming"`
	Error           string   `json:"error,omitempty"`
}

// Snapshot is the normalized Unbounce weekly record.
type Snapshot struct {
	Window              string     `json:"window"`
	Visitors            int64      `json:"visitors"`
	VisitorsDelta       *float64   `json:"visitorsDelta"`
	Conversions         int64      `json:"conversions"`
	ConversionsDelta    *float64   `json:"conversionsDelta"`
	ConversionRate      float64    `json:"conversionRate"`
	ConversionRateDelta *float64   `json:"conversionRateDelta"`
	Pages               []PageStat `json:"pages"`
}

// Adapter is the Unbounce source adapter.
type Adapter struct {
	config     Config
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// NewAdapter creates the Unbounce adapter.
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
func (a *Adapter) Name() string { return source.Unbounce }

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, now time.Time) (any, error) {
	if a.config.SubAccountID == "" {
		return nil, source.MissingConfig(source.Unbounce, "sub_account_id")
	}
	if a.config.APIKey == "" {
		return nil, source.MissingConfig(source.Unbounce, "api_key")
	}

	w := source.WindowsFor(now, lagDays)

	pages, err := a.listPages(ctx)
	if err != nil {
		return nil, err
	}

	stats, prevVisitors, prevConversions := a.pageStats(ctx, pages, w)

	var curVisitors, curConversions int64
	for _, p := range stats {
		if p.Error != "" {
			continue
		}
		curVisitors += p.Visitors
		curConversions += p.Conversions
	}

	start, end := w.Current.Format("2006-01-02")
	snap := &Snapshot{
		Window:           start + " to " + end,
		Visitors:         curVisitors,
		VisitorsDelta:    metrics.DeltaFromCounts(curVisitors, prevVisitors),
		Conversions:      curConversions,
		ConversionsDelta: metrics.DeltaFromCounts(curConversions, prevConversions),
		ConversionRate:   metrics.Rate(float64(curConversions), float64(curVisitors), 2),
		Pages:            stats,
	}
	if prevVisitors > 0 && curVisitors > 0 {
		snap.ConversionRateDelta = metrics.Delta(
			float64(curConversions)/float64(curVisitors),
			float64(prevConversions)/float64(prevVisitors))
	}
	return snap, nil
}

// pageStats fetches per-page stats for both windows in one pass, degrading
// failed current-week lookups to inline item errors, then applies the
// underperformer rule. The returned prior-week visitor and conversion totals
// cover only the pages whose current stats succeeded, so the aggregate delta
// compares the same cohort of pages.
func (a *Adapter) pageStats(ctx context.Context, pages []page, w source.Windows) ([]PageStat, int64, int64) {
	start, end := w.Current.Format("2006-01-02")
	prevStart, prevEnd := w.Previous.Format("2006-01-02")

	var prevVisitors, prevConversions int64
	out := make([]PageStat, 0, len(pages))
	for _, p := range pages {
		row := PageStat{PageID: p.ID, Name: p.Name, URL: p.URL}

		cur, err := a.stats(ctx, p.ID, start, end)
		if err != nil {
			row.Error = err.Error()
			out = append(out, row)
			continue
		}
		row.Visitors = cur.Visitors
		row.Conversions = cur.Conversions
		row.ConversionRate = metrics.Rate(float64(cur.Conversions), float64(cur.Visitors), 2)

		// One prior-week call per page serves both the per-page delta and
		// the aggregate totals; a miss here is not an item error, the page
		// just reports no delta.
		if prev, err := a.stats(ctx, p.ID, prevStart, prevEnd); err == nil {
			prevVisitors += prev.Visitors
			prevConversions += prev.Conversions
			if prev.Visitors > 0 && cur.Visitors > 0 {
				row.ConversionDelta = metrics.Delta(
					float64(cur.Conversions)/float64(cur.Visitors),
					float64(prev.Conversions)/float64(prev.Visitors))
			}
		}
		out = append(out, row)
	}

	rates := make([]float64, 0, len(out))
	for _, r := range out {
		if r.Error == "" {
			rates = append(rates, r.ConversionRate)
		}
	}
	avg := metrics.Average(rates)
	for i := range out {
		if out[i].Error != "" {
			continue
		}
		out[i].Underperforming = metrics.Underperforming(
			out[i].ConversionRate, avg, float64(out[i].Visitors),
			underperformFraction, minVisitorsFloor)
	}
	return out, prevVisitors, prevConversions
}

// listPages fetches published pages for the sub-account.
func (a *Adapter) listPages(ctx context.Context) ([]page, error) {
	path := fmt.Sprintf("/sub_accounts/%s/pages", a.config.SubAccountID)

	q := url.Values{}
	q.Set("state", "published")

	var resp pagesResponse
	if err := a.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	return resp.Pages, nil
}

// stats fetches one page's stats for a date range.
func (a *Adapter) stats(ctx context.Context, pageID, from, to string) (*pageStats, error) {
	path := fmt.Sprintf("/pages/%s/stats", pageID)

	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	var stats pageStats
	if err := a.get(ctx, path, q, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// get performs one authenticated GET and decodes the JSON reply. Unbounce
// uses basic auth with the API key as username.
func (a *Adapter) get(ctx context.Context, path string, q url.Values, out any) error {
	fullURL := a.baseURL + path
	if len(q) > 0 {
		fullURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("unbounce: creating request: %w", err)
	}
	req.SetBasicAuth(a.config.APIKey, "")
	req.Header.Set("Accept", "application/vnd.unbounce.api.v0.4+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &source.UpstreamError{Source: source.Unbounce, Path: path, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &source.UpstreamError{Source: source.Unbounce, Path: path, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &source.UpstreamError{Source: source.Unbounce, Path: path, Status: resp.StatusCode, Message: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &source.UpstreamError{Source: source.Unbounce, Path: path, Message: "malformed response body", Err: err}
	}
	return nil
}
