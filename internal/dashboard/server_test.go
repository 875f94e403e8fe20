package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/marketing-pulse/internal/report"
)

func testArtifact() *report.Artifact {
	return &report.Artifact{
		Narrative: report.Narrative{
			WeeklyVerdict: "Traffic grew while email stalled.",
			FunnelHealth: map[string]report.FunnelStage{
				"awareness":  {Status: "green", Summary: "Organic clicks up 25%."},
				"conversion": {Status: "amber", Summary: "Landing page rate flat."},
			},
			UrgentActions: []report.UrgentAction{{
				Priority: "high", Action: "Fix the pricing page CTA",
				Why: "CTR is half the site average", DoBy: "Friday",
			}},
			Insights:      []report.Insight{{Source: "searchConsole", Observation: "Pricing page underperforms", Recommendation: "Rewrite title tag", Confidence: "high", Effort: "low", Impact: "medium"}},
			DoNotTouch:    []report.DoNotTouchItem{{Thing: "Welcome sequence", Reason: "Open rates steady", Metric: "48% open"}},
			WatchNextWeek: []report.WatchItem{{Metric: "YouTube retention", Because: "Two videos dipped", Threshold: "below 35%"}},
		},
		WeekOf:      "2025-03-03",
		GeneratedAt: "2025-03-10T06:00:00Z",
		RawData: report.CombinedSnapshot{
			"ga4":           map[string]any{"sessions": 12000},
			"searchConsole": map[string]any{"clicks": 500},
			"youtube":       map[string]any{"views": 8000},
			"wistia":        map[string]any{"plays": 900},
			"metaAds":       map[string]any{"spend": 1000.0},
			"kit":           report.SourceError{Error: "kit: missing required configuration \"api_key\""},
			"unbounce":      map[string]any{"visitors": 3000},
		},
	}
}

func writeArtifact(t *testing.T, artifact *report.Artifact) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.json")
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReportEndpoint(t *testing.T) {
	path := writeArtifact(t, testArtifact())
	server := httptest.NewServer(NewServer(path).Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/report")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var artifact report.Artifact
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&artifact))
	assert.Equal(t, "2025-03-03", artifact.WeekOf)
	assert.Equal(t, 1, artifact.RawData.ErrorCount())
}

func TestReportEndpointBeforeFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	server := httptest.NewServer(NewServer(path).Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/report")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "no report")
}

func TestHealthz(t *testing.T) {
	server := httptest.NewServer(NewServer("unused.json").Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIndexServed(t *testing.T) {
	server := httptest.NewServer(NewServer("unused.json").Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestDigestRendersArtifact(t *testing.T) {
	path := writeArtifact(t, testArtifact())
	server := httptest.NewServer(NewServer(path).Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/digest")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	html := buf.String()

	assert.Contains(t, html, "Traffic grew while email stalled.")
	assert.Contains(t, html, "Fix the pricing page CTA")
	// The failed source is called out in the missing-data line
	assert.Contains(t, html, "kit")
	assert.Contains(t, html, "week of 2025-03-03")
}

func TestDigestRendererFilters(t *testing.T) {
	renderer := NewDigestRenderer()

	artifact := testArtifact()
	html, err := renderer.Render(artifact)
	require.NoError(t, err)

	// present stages render; an absent stage renders nothing rather than
	// an empty row
	assert.Contains(t, html, "awareness")
	assert.NotContains(t, html, "consideration")
}
