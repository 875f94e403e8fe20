package ga4

import "time"

// Config holds what the adapter needs from process configuration.
type Config struct {
	PropertyID      string
	CredentialsJSON string
	Timeout         time.Duration
}

// runReportRequest is the GA4 Data API runReport body.
type runReportRequest struct {
	DateRanges []dateRange `json:"dateRanges"`
	Metrics    []metricRef `json:"metrics"`
	Dimensions []dimRef    `json:"dimensions,omitempty"`
	OrderBys   []orderBy   `json:"orderBys,omitempty"`
	Limit      string      `json:"limit,omitempty"`
}

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type metricRef struct {
	Name string `json:"name"`
}

type dimRef struct {
	Name string `json:"name"`
}

type orderBy struct {
	Metric *orderByMetric `json:"metric,omitempty"`
	Desc   bool           `json:"desc"`
}

type orderByMetric struct {
	MetricName string `json:"metricName"`
}

// runReportResponse is the subset of the runReport reply this adapter reads.
type runReportResponse struct {
	Rows []struct {
		DimensionValues []struct {
			Value string `json:"value"`
		} `json:"dimensionValues"`
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
	RowCount int `json:"rowCount"`
}

// ChannelStat is one acquisition channel's weekly share.
type ChannelStat struct {
	Channel  string  `json:"channel"`
	Sessions int64   `json:"sessions"`
	Share    float64 `json:"share"`
}

// Snapshot is the normalized GA4 weekly record.
type Snapshot struct {
	Window                string        `json:"window"`
	Sessions              int64         `json:"sessions"`
	SessionsDelta         *float64      `json:"sessionsDelta"`
	TotalUsers            int64         `json:"totalUsers"`
	TotalUsersDelta       *float64      `json:"totalUsersDelta"`
	NewUsers              int64         `json:"newUsers"`
	Conversions           int64         `json:"conversions"`
	ConversionsDelta      *float64      `json:"conversionsDelta"`
	EngagementRate        float64       `json:"engagementRate"`
	EngagementRateDelta   *float64      `json:"engagementRateDelta"`
	AvgSessionDurationSec float64       `json:"avgSessionDurationSec"`
	TopChannels           []ChannelStat `json:"topChannels"`
}
