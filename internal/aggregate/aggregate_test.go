package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/marketing-pulse/internal/report"
	"github.com/ignite/marketing-pulse/internal/source"
)

type fakeAdapter struct {
	name    string
	data    any
	err     error
	barrier *sync.WaitGroup // when set, Fetch blocks until all adapters have started
	started chan struct{}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, _ time.Time) (any, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.barrier != nil {
		f.barrier.Done()
		f.barrier.Wait()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func sevenAdapters(failing map[string]error) []source.Adapter {
	adapters := make([]source.Adapter, 0, len(source.Names))
	for _, name := range source.Names {
		a := &fakeAdapter{name: name, data: map[string]any{"ok": true}}
		if err, bad := failing[name]; bad {
			a.err = err
		}
		adapters = append(adapters, a)
	}
	return adapters
}

func TestRunAllSucceed(t *testing.T) {
	snapshot := Run(context.Background(), sevenAdapters(nil), time.Now())

	assert.Len(t, snapshot, 7)
	assert.Equal(t, 0, snapshot.ErrorCount())
	for _, name := range source.Names {
		assert.Contains(t, snapshot, name)
	}
}

func TestRunPartialFailure(t *testing.T) {
	failing := map[string]error{
		source.Kit: source.MissingConfig(source.Kit, "api_key"),
	}
	snapshot := Run(context.Background(), sevenAdapters(failing), time.Now())

	require.Len(t, snapshot, 7)
	assert.Equal(t, 1, snapshot.ErrorCount())

	placeholder, ok := snapshot[source.Kit].(report.SourceError)
	require.True(t, ok, "failed source must carry an error placeholder")
	assert.Contains(t, placeholder.Error, "api_key")

	// The other six are untouched data
	for _, name := range []string{source.GA4, source.SearchConsole, source.YouTube, source.Wistia, source.MetaAds, source.Unbounce} {
		assert.False(t, report.IsSourceError(snapshot[name]), "source %s should have succeeded", name)
	}
}

func TestRunKeyCountInvariant(t *testing.T) {
	cases := []map[string]error{
		{},
		{source.GA4: errors.New("down")},
		{source.GA4: errors.New("down"), source.Wistia: errors.New("down"), source.MetaAds: errors.New("down")},
		func() map[string]error {
			all := make(map[string]error)
			for _, n := range source.Names {
				all[n] = errors.New("down")
			}
			return all
		}(),
	}

	for _, failing := range cases {
		snapshot := Run(context.Background(), sevenAdapters(failing), time.Now())
		assert.Len(t, snapshot, 7, "snapshot must always have 7 keys (%d failures)", len(failing))
		assert.Equal(t, len(failing), snapshot.ErrorCount())
	}
}

func TestRunLaunchesConcurrently(t *testing.T) {
	// Every adapter blocks until all seven have started. The run can only
	// settle if the fan-out is truly concurrent.
	var barrier sync.WaitGroup
	barrier.Add(len(source.Names))

	adapters := make([]source.Adapter, 0, len(source.Names))
	for _, name := range source.Names {
		adapters = append(adapters, &fakeAdapter{name: name, data: "ok", barrier: &barrier})
	}

	done := make(chan report.CombinedSnapshot, 1)
	go func() { done <- Run(context.Background(), adapters, time.Now()) }()

	select {
	case snapshot := <-done:
		assert.Len(t, snapshot, 7)
	case <-time.After(5 * time.Second):
		t.Fatal("aggregator deadlocked: adapters are not running concurrently")
	}
}
