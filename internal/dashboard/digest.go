package dashboard

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/marketing-pulse/internal/report"
)

//go:embed templates
var templateFS embed.FS

// DigestRenderer renders the artifact into a self-contained HTML digest
// using the Liquid template language with report-specific filters.
type DigestRenderer struct {
	engine   *liquid.Engine
	template *liquid.Template
}

// NewDigestRenderer creates the renderer with custom filters. The template
// is parsed lazily on first render so a bad template surfaces as a request
// error instead of a startup panic.
func NewDigestRenderer() *DigestRenderer {
	r := &DigestRenderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *DigestRenderer) registerFilters() {
	// Status badge: {{ stage.status | badge }}
	r.engine.RegisterFilter("badge", func(status string) string {
		switch strings.ToLower(status) {
		case "green":
			return "\U0001F7E2"
		case "amber":
			return "\U0001F7E1"
		case "red":
			return "\U0001F534"
		}
		return "⚪"
	})

	// Trend arrow for a week-over-week delta: {{ delta | trend }}
	r.engine.RegisterFilter("trend", func(value any) string {
		f, ok := asFloat(value)
		if !ok {
			return "n/a"
		}
		switch {
		case f > 0:
			return fmt.Sprintf("▲ %.1f%%", f)
		case f < 0:
			return fmt.Sprintf("▼ %.1f%%", -f)
		}
		return "→ 0.0%"
	})

	// Percent formatting: {{ rate | pct }}
	r.engine.RegisterFilter("pct", func(value any) string {
		f, ok := asFloat(value)
		if !ok {
			return "n/a"
		}
		return fmt.Sprintf("%.1f%%", f)
	})

	// Default value: {{ weekOf | default: "unknown week" }}
	r.engine.RegisterFilter("default", func(value any, fallback string) any {
		if value == nil {
			return fallback
		}
		if s, ok := value.(string); ok && s == "" {
			return fallback
		}
		return value
	})
}

// Render produces the digest HTML for one artifact.
func (r *DigestRenderer) Render(artifact *report.Artifact) (string, error) {
	if r.template == nil {
		src, err := templateFS.ReadFile("templates/digest.liquid")
		if err != nil {
			return "", fmt.Errorf("dashboard: loading digest template: %w", err)
		}
		tpl, err := r.engine.ParseTemplate(src)
		if err != nil {
			return "", fmt.Errorf("dashboard: parsing digest template: %w", err)
		}
		r.template = tpl
	}

	bindings, err := toBindings(artifact)
	if err != nil {
		return "", err
	}

	out, err := r.template.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("dashboard: rendering digest: %w", err)
	}
	return string(out), nil
}

// toBindings converts the artifact through its JSON form so the template
// addresses the same field names the API serves.
func toBindings(artifact *report.Artifact) (map[string]any, error) {
	raw, err := json.Marshal(artifact)
	if err != nil {
		return nil, fmt.Errorf("dashboard: marshaling artifact: %w", err)
	}
	var bindings map[string]any
	if err := json.Unmarshal(raw, &bindings); err != nil {
		return nil, fmt.Errorf("dashboard: rebinding artifact: %w", err)
	}
	bindings["failedSources"] = failedSources(artifact.RawData)
	return bindings, nil
}

// failedSources lists the source keys whose entry is an error placeholder.
func failedSources(snapshot report.CombinedSnapshot) []string {
	failed := make([]string, 0)
	for key, v := range snapshot {
		if report.IsSourceError(v) {
			failed = append(failed, key)
		}
	}
	return failed
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
