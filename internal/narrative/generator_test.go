package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/marketing-pulse/internal/report"
)

const validReply = `{
  "weekOf": "2025-03-03",
  "weeklyVerdict": "A steady week with search growth.",
  "funnelHealth": {
    "awareness": {"status": "green", "summary": "Impressions up 12%"},
    "consideration": {"status": "amber", "summary": "Watch time flat"},
    "conversion": {"status": "green", "summary": "Landing pages converting"},
    "retention": {"status": "amber", "summary": "Open rates softening"}
  },
  "urgentActions": [{"priority": "high", "action": "Refresh top ad creative", "why": "CTR fell 30%", "howTo": "Swap in the video variant", "expectedOutcome": "CTR back above 1.5%", "doBy": "Friday"}],
  "insights": [{"source": "searchConsole", "observation": "Clicks up 18%", "meaning": "New posts are ranking", "hypothesis": "Topic clusters working", "recommendation": "Publish two more cluster posts", "confidence": "medium", "effort": "medium", "impact": "high"}],
  "doNotTouch": [{"thing": "Pricing page", "reason": "Converting at 4.2%", "metric": "conversionRate"}],
  "watchNextWeek": [{"metric": "kit.openRate", "because": "Two weeks of decline", "threshold": "< 30%"}]
}`

type scriptedClient struct {
	replies []string
	errs    []error
	calls   [][]Message
}

func (s *scriptedClient) Complete(_ context.Context, messages []Message) (string, error) {
	i := len(s.calls)
	s.calls = append(s.calls, append([]Message(nil), messages...))
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.replies[i], nil
}

func testSnapshot() report.CombinedSnapshot {
	return report.CombinedSnapshot{
		"ga4": map[string]any{"sessions": 1200},
		"kit": report.SourceError{Error: "kit: missing required configuration \"api_key\""},
	}
}

func TestGenerateFirstAttempt(t *testing.T) {
	client := &scriptedClient{replies: []string{validReply}}
	g := NewGenerator(client)

	n, err := g.Generate(context.Background(), testSnapshot(), "2025-03-03")
	require.NoError(t, err)

	assert.Equal(t, "A steady week with search growth.", n.WeeklyVerdict)
	assert.Equal(t, "green", n.FunnelHealth["awareness"].Status)
	assert.Len(t, client.calls, 1)
}

func TestGenerateStripsCodeFences(t *testing.T) {
	client := &scriptedClient{replies: []string{"Here is the report:\n```json\n" + validReply + "\n```\nLet me know if you need anything else."}}
	g := NewGenerator(client)

	n, err := g.Generate(context.Background(), testSnapshot(), "2025-03-03")
	require.NoError(t, err)
	assert.Len(t, n.UrgentActions, 1)
}

func TestGenerateRetriesOnceOnBadJSON(t *testing.T) {
	client := &scriptedClient{replies: []string{"Sure! The verdict is: things look good.", validReply}}
	g := NewGenerator(client)

	n, err := g.Generate(context.Background(), testSnapshot(), "2025-03-03")
	require.NoError(t, err)
	assert.Equal(t, "A steady week with search growth.", n.WeeklyVerdict)
	require.Len(t, client.calls, 2)

	// The retry re-sends the original conversation plus the bad reply and a
	// JSON-only correction.
	retry := client.calls[1]
	require.Len(t, retry, 4)
	assert.Equal(t, "assistant", retry[2].Role)
	assert.Equal(t, "Sure! The verdict is: things look good.", retry[2].Content)
	assert.Contains(t, retry[3].Content, "ONLY the JSON")
}

func TestGenerateFailsAfterSecondBadReply(t *testing.T) {
	client := &scriptedClient{replies: []string{"not json", "still not json"}}
	g := NewGenerator(client)

	_, err := g.Generate(context.Background(), testSnapshot(), "2025-03-03")
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 2, parseErr.Attempts)
	assert.Len(t, client.calls, 2, "exactly one retry, never more")
}

func TestGenerateBackendErrorIsNotRetried(t *testing.T) {
	client := &scriptedClient{replies: []string{""}, errs: []error{errors.New("connection refused")}}
	g := NewGenerator(client)

	_, err := g.Generate(context.Background(), testSnapshot(), "2025-03-03")
	require.Error(t, err)

	var parseErr *ParseError
	assert.False(t, errors.As(err, &parseErr), "transport errors are not parse errors")
	assert.Len(t, client.calls, 1)
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	_, err := parseNarrative("{}")
	assert.Error(t, err)
}

func TestOpenAIClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": validReply}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", "gpt-4o", 5*time.Second)
	client.SetEndpoint(server.URL)

	reply, err := client.Complete(context.Background(), []Message{
		{Role: "system", Content: "prompt"},
		{Role: "user", Content: "data"},
	})
	require.NoError(t, err)
	assert.Contains(t, reply, "weeklyVerdict")
}

func TestOpenAIClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited", "type": "rate_limit_error"},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient("test-key", "", 5*time.Second)
	client.SetEndpoint(server.URL)

	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenAIClientRequiresKey(t *testing.T) {
	client := NewOpenAIClient("", "", time.Second)
	_, err := client.Complete(context.Background(), nil)
	assert.Error(t, err)
}
