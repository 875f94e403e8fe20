// Package report defines the persisted weekly artifact and its writer. The
// artifact's JSON shape is the contract between the batch run and the
// dashboard: the dashboard indexes into these exact fields.
package report

// FunnelStage is the health assessment for one funnel stage.
// Status is "green", "amber", or "red".
type FunnelStage struct {
	Status  string `json:"status"`
	Summary string `json:"summary"`
}

// UrgentAction is one ranked action item.
// Priority is "high", "medium", or "low".
type UrgentAction struct {
	Priority        string `json:"priority"`
	Action          string `json:"action"`
	Why             string `json:"why"`
	HowTo           string `json:"howTo"`
	ExpectedOutcome string `json:"expectedOutcome"`
	DoBy            string `json:"doBy"`
}

// Insight is one ranked observation. Source is one of the seven source keys
// or "Cross-channel"; Confidence, Effort, and Impact are high/medium/low.
type Insight struct {
	Source         string `json:"source"`
	Observation    string `json:"observation"`
	Meaning        string `json:"meaning"`
	Hypothesis     string `json:"hypothesis"`
	Recommendation string `json:"recommendation"`
	Confidence     string `json:"confidence"`
	Effort         string `json:"effort"`
	Impact         string `json:"impact"`
}

// DoNotTouchItem names something working that should be left alone.
type DoNotTouchItem struct {
	Thing  string `json:"thing"`
	Reason string `json:"reason"`
	Metric string `json:"metric"`
}

// WatchItem is a metric to monitor next week with a trigger threshold.
type WatchItem struct {
	Metric    string `json:"metric"`
	Because   string `json:"because"`
	Threshold string `json:"threshold"`
}

// Narrative is the structured document the generator must return. Any
// missing required field is a contract violation for the dashboard.
type Narrative struct {
	WeekOf        string                 `json:"weekOf,omitempty"`
	WeeklyVerdict string                 `json:"weeklyVerdict"`
	FunnelHealth  map[string]FunnelStage `json:"funnelHealth"`
	UrgentActions []UrgentAction         `json:"urgentActions"`
	Insights      []Insight              `json:"insights"`
	DoNotTouch    []DoNotTouchItem       `json:"doNotTouch"`
	WatchNextWeek []WatchItem            `json:"watchNextWeek"`
}

// SourceError is the placeholder stored for a source whose adapter failed.
// The dashboard omits panels whose entry carries this shape.
type SourceError struct {
	Error string `json:"error"`
}

// CombinedSnapshot maps each of the seven source keys to either the
// adapter's snapshot or a SourceError. It always holds exactly seven keys
// and is never mutated after the aggregator returns it.
type CombinedSnapshot map[string]any

// ErrorCount returns how many sources carry an error placeholder. It
// recognizes both the typed placeholder (fresh snapshots) and the decoded
// map form (artifacts read back from disk).
func (s CombinedSnapshot) ErrorCount() int {
	n := 0
	for _, v := range s {
		if IsSourceError(v) {
			n++
		}
	}
	return n
}

// IsSourceError reports whether a snapshot entry is an error placeholder.
func IsSourceError(v any) bool {
	switch e := v.(type) {
	case SourceError, *SourceError:
		return true
	case map[string]any:
		_, ok := e["error"]
		return ok && len(e) == 1
	}
	return false
}

// Artifact is the single persisted document, overwritten whole each run.
// The outer WeekOf/GeneratedAt fields shadow the embedded narrative's
// optional weekOf when marshaling.
type Artifact struct {
	Narrative
	WeekOf      string           `json:"weekOf"`
	GeneratedAt string           `json:"generatedAt"`
	RawData     CombinedSnapshot `json:"rawData"`
}
