// Package searchconsole fetches weekly organic search performance from the
// Search Console Search Analytics API using a service-account credential.
package searchconsole

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/ignite/marketing-pulse/internal/metrics"
	"github.com/ignite/marketing-pulse/internal/pkg/httpretry"
	"github.com/ignite/marketing-pulse/internal/source"
)

const (
	defaultBaseURL = "https://www.googleapis.com"
	scope          = "https://www.googleapis.com/auth/webmasters.readonly"

	// lagDays: Search Console data settles roughly two days late.
	lagDays = 2

	topQueryCount = 10
	pageRowLimit  = 100

	// Tunable business parameters for the underperforming-pages flag.
	underperformFraction = 0.5
	minImpressionsFloor  = 50
)

// Config holds what the adapter needs from process configuration.
type Config struct {
	SiteURL         string
	CredentialsJSON string
	Timeout         time.Duration
}

// queryRequest is the searchAnalytics/query body.
type queryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions,omitempty"`
	RowLimit   int      `json:"rowLimit,omitempty"`
}

// queryResponse is the subset of the reply this adapter reads.
type queryResponse struct {
	Rows []struct {
		Keys        []string `json:"keys"`
		Clicks      float64  `json:"clicks"`
		Impressions float64  `json:"impressions"`
		CTR         float64  `json:"ctr"`
		Position    float64  `json:"position"`
	} `json:"rows"`
}

// QueryStat is one search query's weekly performance.
type QueryStat struct {
	Query       string  `json:"query"`
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
}

// PageStat is one page's weekly performance. Underperforming marks pages
// whose CTR trails the site average despite meaningful impressions.
type PageStat struct {
	Page            string  `json:"page"`
	Clicks          int64   `json:"clicks"`
	Impressions     int64   `json:"impressions"`
	CTR             float64 `json:"ctr"`
	Position        float64 `json:"position"`
	Underperforming bool    `json:"underperforming"`
}

// Snapshot is the normalized Search Console weekly record.
type Snapshot struct {
	Window               string      `json:"window"`
	Clicks               int64       `json:"clicks"`
	ClicksDelta          *float64    `json:"clicksDelta"`
	Impressions          int64       `json:"impressions"`
	ImpressionsDelta     *float64    `json:"impressionsDelta"`
	CTR                  float64     `json:"ctr"`
	CTRDelta             *float64    `json:"ctrDelta"`
	AvgPosition          float64     `json:"avgPosition"`
	AvgPositionDelta     *float64    `json:"avgPositionDelta"`
	TopQueries           []QueryStat `json:"topQueries"`
	UnderperformingPages []PageStat  `json:"underperformingPages"`
}

// Adapter is the Search Console source adapter.
type Adapter struct {
	config     Config
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// NewAdapter creates the Search Console adapter.
func NewAdapter(config Config) *Adapter {
	return &Adapter{config: config, baseURL: defaultBaseURL}
}

// SetHTTPClient sets a custom HTTP client and base URL (tests).
func (a *Adapter) SetHTTPClient(client httpretry.HTTPDoer, baseURL string) {
	a.httpClient = client
	a.baseURL = baseURL
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return source.SearchConsole }

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, now time.Time) (any, error) {
	if a.config.SiteURL == "" {
		return nil, source.MissingConfig(source.SearchConsole, "site_url")
	}
	if a.config.CredentialsJSON == "" && a.httpClient == nil {
		return nil, source.MissingConfig(source.SearchConsole, "credentials_json")
	}

	if a.httpClient == nil {
		jwt, err := google.JWTConfigFromJSON([]byte(a.config.CredentialsJSON), scope)
		if err != nil {
			return nil, fmt.Errorf("searchConsole: parsing service account credentials: %w", err)
		}
		client := jwt.Client(ctx)
		client.Timeout = a.config.Timeout
		a.httpClient = httpretry.NewRetryClient(client, 3)
	}

	w := source.WindowsFor(now, lagDays)
	curStart, curEnd := w.Current.Format("2006-01-02")
	prevStart, prevEnd := w.Previous.Format("2006-01-02")

	current, err := a.query(ctx, queryRequest{StartDate: curStart, EndDate: curEnd})
	if err != nil {
		return nil, err
	}
	previous, err := a.query(ctx, queryRequest{StartDate: prevStart, EndDate: prevEnd})
	if err != nil {
		return nil, err
	}
	queries, err := a.query(ctx, queryRequest{StartDate: curStart, EndDate: curEnd, Dimensions: []string{"query"}, RowLimit: topQueryCount})
	if err != nil {
		return nil, err
	}
	pages, err := a.query(ctx, queryRequest{StartDate: curStart, EndDate: curEnd, Dimensions: []string{"page"}, RowLimit: pageRowLimit})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Window:               curStart + " to " + curEnd,
		TopQueries:           make([]QueryStat, 0, len(queries.Rows)),
		UnderperformingPages: flagPages(pages),
	}

	if len(current.Rows) > 0 {
		r := current.Rows[0]
		snap.Clicks = int64(r.Clicks)
		snap.Impressions = int64(r.Impressions)
		snap.CTR = metrics.Round(r.CTR*100, 2)
		snap.AvgPosition = metrics.Round(r.Position, 1)
	}
	if len(previous.Rows) > 0 {
		p := previous.Rows[0]
		snap.ClicksDelta = metrics.Delta(float64(snap.Clicks), p.Clicks)
		snap.ImpressionsDelta = metrics.Delta(float64(snap.Impressions), p.Impressions)
		if len(current.Rows) > 0 {
			snap.CTRDelta = metrics.Delta(current.Rows[0].CTR, p.CTR)
			snap.AvgPositionDelta = metrics.Delta(current.Rows[0].Position, p.Position)
		}
	}

	for _, r := range queries.Rows {
		if len(r.Keys) == 0 {
			continue
		}
		snap.TopQueries = append(snap.TopQueries, QueryStat{
			Query:       r.Keys[0],
			Clicks:      int64(r.Clicks),
			Impressions: int64(r.Impressions),
			CTR:         metrics.Round(r.CTR*100, 2),
			Position:    metrics.Round(r.Position, 1),
		})
	}

	return snap, nil
}

// flagPages applies the two-part underperformer rule against the cohort
// average CTR and returns only the flagged pages.
func flagPages(resp *queryResponse) []PageStat {
	ctrs := make([]float64, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		ctrs = append(ctrs, r.CTR)
	}
	avg := metrics.Average(ctrs)

	flagged := make([]PageStat, 0)
	for _, r := range resp.Rows {
		if len(r.Keys) == 0 {
			continue
		}
		if !metrics.Underperforming(r.CTR, avg, r.Impressions, underperformFraction, minImpressionsFloor) {
			continue
		}
		flagged = append(flagged, PageStat{
			Page:            r.Keys[0],
			Clicks:          int64(r.Clicks),
			Impressions:     int64(r.Impressions),
			CTR:             metrics.Round(r.CTR*100, 2),
			Position:        metrics.Round(r.Position, 1),
			Underperforming: true,
		})
	}
	return flagged
}

// query posts one searchAnalytics/query request.
func (a *Adapter) query(ctx context.Context, body queryRequest) (*queryResponse, error) {
	path := fmt.Sprintf("/webmasters/v3/sites/%s/searchAnalytics/query", url.PathEscape(a.config.SiteURL))

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("searchConsole: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("searchConsole: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &source.UpstreamError{Source: source.SearchConsole, Path: path, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &source.UpstreamError{Source: source.SearchConsole, Path: path, Message: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &source.UpstreamError{Source: source.SearchConsole, Path: path, Status: resp.StatusCode, Message: string(respBody)}
	}

	var out queryResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &source.UpstreamError{Source: source.SearchConsole, Path: path, Message: "malformed response body", Err: err}
	}
	return &out, nil
}
