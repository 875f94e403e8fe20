// Package metaads fetches weekly paid social performance from the Meta
// Graph API insights endpoint.
package metaads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ignite/marketing-pulse/internal/metrics"
	"github.com/ignite/marketing-pulse/internal/pkg/httpretry"
	"github.com/ignite/marketing-pulse/internal/source"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v19.0"

	// lagDays: attribution settles within a day.
	lagDays = 1

	// Tunable business parameters for the problem-campaign flag.
	problemCTRFraction = 0.5
	minSpendFloor      = 50.0
)

// Config holds what the adapter needs from process configuration.
type Config struct {
	AccountID   string
	AccessToken string
	Timeout     time.Duration
}

// insightsRow is one row of the insights reply. The Graph API returns every
// numeric field as a string.
type insightsRow struct {
	CampaignName string        `json:"campaign_name"`
	Spend        string        `json:"spend"`
	Impressions  string        `json:"impressions"`
	Clicks       string        `json:"clicks"`
	CTR          string        `json:"ctr"`
	CPC          string        `json:"cpc"`
	Actions      []actionValue `json:"actions"`
	ActionValues []actionValue `json:"action_values"`
}

type actionValue struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

// insightsResponse is the insights reply envelope.
type insightsResponse struct {
	Data  []insightsRow `json:"data"`
	Error *apiError     `json:"error,omitempty"`
}

// apiError is the Graph API error payload.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// CampaignStat is one campaign's weekly performance.
type CampaignStat struct {
	Campaign    string  `json:"campaign"`
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	Conversions int64   `json:"conversions"`
	Problem     bool    `json:"problem"`
}

// Snapshot is the normalized Meta Ads weekly record.
type Snapshot struct {
	Window            string         `json:"window"`
	Spend             float64        `json:"spend"`
	SpendDelta        *float64       `json:"spendDelta"`
	Impressions       int64          `json:"impressions"`
	ImpressionsDelta  *float64       `json:"impressionsDelta"`
	Clicks            int64          `json:"clicks"`
	CTR               float64        `json:"ctr"`
	CTRDelta          *float64       `json:"ctrDelta"`
	CPC               float64        `json:"cpc"`
	Conversions       int64          `json:"conversions"`
	ConversionsDelta  *float64       `json:"conversionsDelta"`
	CostPerConversion float64        `json:"costPerConversion"`
	ROAS              float64        `json:"roas"`
	Campaigns         []CampaignStat `json:"campaigns"`
}

// Adapter is the Meta Ads source adapter.
type Adapter struct {
	config     Config
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// NewAdapter creates the Meta Ads adapter.
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
func (a *Adapter) Name() string { return source.MetaAds }

// Fetch implements source.Adapter.
func (a *Adapter) Fetch(ctx context.Context, now time.Time) (any, error) {
	if a.config.AccountID == "" {
		return nil, source.MissingConfig(source.MetaAds, "account_id")
	}
	if a.config.AccessToken == "" {
		return nil, source.MissingConfig(source.MetaAds, "access_token")
	}

	w := source.WindowsFor(now, lagDays)

	current, err := a.insights(ctx, w.Current, "")
	if err != nil {
		return nil, err
	}
	previous, err := a.insights(ctx, w.Previous, "")
	if err != nil {
		return nil, err
	}
	byCampaign, err := a.insights(ctx, w.Current, "campaign")
	if err != nil {
		return nil, err
	}

	cur := sumRows(current.Data)
	prev := sumRows(previous.Data)

	start, end := w.Current.Format("2006-01-02")
	snap := &Snapshot{
		Window:           start + " to " + end,
		Spend:            metrics.Round(cur.spend, 2),
		SpendDelta:       metrics.Delta(cur.spend, prev.spend),
		Impressions:      cur.impressions,
		ImpressionsDelta: metrics.Delta(float64(cur.impressions), float64(prev.impressions)),
		Clicks:           cur.clicks,
		CTR:              metrics.Rate(float64(cur.clicks), float64(cur.impressions), 2),
		Conversions:      cur.conversions,
		ConversionsDelta: metrics.Delta(float64(cur.conversions), float64(prev.conversions)),
		Campaigns:        flagCampaigns(byCampaign.Data),
	}
	if cur.impressions > 0 && prev.impressions > 0 {
		snap.CTRDelta = metrics.Delta(
			float64(cur.clicks)/float64(cur.impressions),
			float64(prev.clicks)/float64(prev.impressions))
	}
	if cur.clicks > 0 {
		snap.CPC = metrics.Round(cur.spend/float64(cur.clicks), 2)
	}
	if cur.conversions > 0 {
		snap.CostPerConversion = metrics.Round(cur.spend/float64(cur.conversions), 2)
	}
	if cur.spend > 0 {
		snap.ROAS = metrics.Round(cur.revenue/cur.spend, 2)
	}
	return snap, nil
}

type rowTotals struct {
	spend       float64
	impressions int64
	clicks      int64
	conversions int64
	revenue     float64
}

func sumRows(rows []insightsRow) rowTotals {
	var t rowTotals
	for _, r := range rows {
		t.spend += parseMoney(r.Spend)
		t.impressions += parseCount(r.Impressions)
		t.clicks += parseCount(r.Clicks)
		t.conversions += conversions(r.Actions)
		t.revenue += purchaseValue(r.ActionValues)
	}
	return t
}

// flagCampaigns builds the per-campaign breakdown and applies the two-part
// problem filter against the cohort average CTR.
func flagCampaigns(rows []insightsRow) []CampaignStat {
	out := make([]CampaignStat, 0, len(rows))
	ctrs := make([]float64, 0, len(rows))
	for _, r := range rows {
		c := CampaignStat{
			Campaign:    r.CampaignName,
			Spend:       metrics.Round(parseMoney(r.Spend), 2),
			Impressions: parseCount(r.Impressions),
			Clicks:      parseCount(r.Clicks),
			CTR:         metrics.Round(parseMoney(r.CTR), 2),
			CPC:         metrics.Round(parseMoney(r.CPC), 2),
			Conversions: conversions(r.Actions),
		}
		ctrs = append(ctrs, c.CTR)
		out = append(out, c)
	}

	avg := metrics.Average(ctrs)
	for i := range out {
		out[i].Problem = metrics.Underperforming(
			out[i].CTR, avg, out[i].Spend, problemCTRFraction, minSpendFloor)
	}
	return out
}

// insights performs one insights query. An empty level queries account
// totals; "campaign" adds the per-campaign breakdown.
func (a *Adapter) insights(ctx context.Context, w source.Window, level string) (*insightsResponse, error) {
	start, end := w.Format("2006-01-02")
	path := fmt.Sprintf("/act_%s/insights", a.config.AccountID)

	q := url.Values{}
	fields := "spend,impressions,clicks,ctr,cpc,actions,action_values"
	if level != "" {
		q.Set("level", level)
		fields = "campaign_name," + fields
	}
	q.Set("fields", fields)
	q.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`, start, end))
	q.Set("access_token", a.config.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("metaAds: creating request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &source.UpstreamError{Source: source.MetaAds, Path: path, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &source.UpstreamError{Source: source.MetaAds, Path: path, Message: err.Error(), Err: err}
	}

	var out insightsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &source.UpstreamError{Source: source.MetaAds, Path: path, Status: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	if out.Error != nil {
		return nil, &source.UpstreamError{Source: source.MetaAds, Path: path, Status: resp.StatusCode,
			Message: fmt.Sprintf("%s (code %d)", out.Error.Message, out.Error.Code)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &source.UpstreamError{Source: source.MetaAds, Path: path, Status: resp.StatusCode, Message: string(body)}
	}
	return &out, nil
}

// conversions sums purchase and lead actions.
func conversions(actions []actionValue) int64 {
	var n int64
	for _, a := range actions {
		if a.ActionType == "purchase" || a.ActionType == "lead" {
			n += parseCount(a.Value)
		}
	}
	return n
}

// purchaseValue sums purchase revenue for ROAS.
func purchaseValue(values []actionValue) float64 {
	var v float64
	for _, a := range values {
		if a.ActionType == "purchase" {
			v += parseMoney(a.Value)
		}
	}
	return v
}

func parseMoney(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
