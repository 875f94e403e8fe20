// Package aggregate fans out the seven source adapters and joins their
// results into one combined snapshot. A vendor being down never blocks the
// weekly report: failed adapters degrade to inline error placeholders.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/marketing-pulse/internal/pkg/logger"
	"github.com/ignite/marketing-pulse/internal/report"
	"github.com/ignite/marketing-pulse/internal/source"
)

// Result is the settled outcome of one adapter.
type Result struct {
	Source   string
	Data     any
	Err      error
	Duration time.Duration
}

// Run launches every adapter concurrently, waits for all to settle, and
// returns a snapshot with exactly one entry per adapter: the fetched data on
// success, a SourceError placeholder on failure. It never short-circuits.
func Run(ctx context.Context, adapters []source.Adapter, now time.Time) report.CombinedSnapshot {
	results := make([]Result, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a source.Adapter) {
			defer wg.Done()
			start := time.Now()
			data, err := a.Fetch(ctx, now)
			results[i] = Result{Source: a.Name(), Data: data, Err: err, Duration: time.Since(start)}
		}(i, a)
	}
	wg.Wait()

	snapshot := make(report.CombinedSnapshot, len(adapters))
	succeeded := 0
	for _, r := range results {
		if r.Err != nil {
			snapshot[r.Source] = report.SourceError{Error: r.Err.Error()}
			logger.Error("source failed", "source", r.Source, "duration", r.Duration.Round(time.Millisecond), "error", r.Err)
			continue
		}
		snapshot[r.Source] = r.Data
		succeeded++
		logger.Info("source collected", "source", r.Source, "duration", r.Duration.Round(time.Millisecond))
	}

	logger.Info("aggregation settled", "succeeded", succeeded, "failed", len(adapters)-succeeded)
	return snapshot
}
