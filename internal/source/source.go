// Package source defines the contract every marketing data source implements
// and the error types the aggregator distinguishes at its boundary.
package source

import (
	"context"
	"fmt"
	"time"
)

// The seven source keys. These are the fixed keys of the combined snapshot
// and of the persisted artifact's rawData section; the dashboard indexes
// into them directly.
const (
	GA4           = "ga4"
	SearchConsole = "searchConsole"
	YouTube       = "youtube"
	Wistia        = "wistia"
	MetaAds       = "metaAds"
	Kit           = "kit"
	Unbounce      = "unbounce"
)

// Names lists all source keys in artifact order.
var Names = []string{GA4, SearchConsole, YouTube, Wistia, MetaAds, Kit, Unbounce}

// Adapter fetches one vendor's weekly snapshot. Implementations hold their
// own credentials and HTTP client; they share nothing with each other. Each
// adapter derives its reporting windows from now with its own lag offset.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, now time.Time) (any, error)
}

// Window is a closed date range, inclusive on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// Format returns both bounds in the given layout.
func (w Window) Format(layout string) (string, string) {
	return w.Start.Format(layout), w.End.Format(layout)
}

// Windows pairs the current reporting week with the prior one.
type Windows struct {
	Current  Window
	Previous Window
}

// WindowsFor computes the current and prior 7-day windows ending lagDays
// before now. Vendors whose reporting lags (Search Console data lands ~2 days
// late) pass a larger lag so both windows cover settled data.
func WindowsFor(now time.Time, lagDays int) Windows {
	end := now.AddDate(0, 0, -lagDays)
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	curStart := end.AddDate(0, 0, -6)
	return Windows{
		Current:  Window{Start: curStart, End: end},
		Previous: Window{Start: curStart.AddDate(0, 0, -7), End: end.AddDate(0, 0, -7)},
	}
}

// WeekOf returns the Monday of the current window, the default weekOf stamp
// for the artifact.
func (w Windows) WeekOf() string {
	d := w.Current.Start
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, -1)
	}
	return d.Format("2006-01-02")
}

// ConfigurationError reports a missing credential or identifier for one
// source. It is fatal to that source only and is never retried.
type ConfigurationError struct {
	Source string
	Key    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: missing required configuration %q", e.Source, e.Key)
}

// MissingConfig builds a ConfigurationError.
func MissingConfig(source, key string) error {
	return &ConfigurationError{Source: source, Key: key}
}

// UpstreamError reports a failed vendor call: non-2xx status, auth rejection,
// or an unparseable body. Fatal to the one source.
type UpstreamError struct {
	Source  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s returned status %d: %s", e.Source, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Path, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
