// Package narrative turns a combined weekly snapshot into the structured
// report document via a text-generation backend (OpenAI or AWS Bedrock).
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/marketing-pulse/internal/pkg/logger"
	"github.com/ignite/marketing-pulse/internal/report"
)

// ChatClient is one round-trip to a text-generation backend. The full
// conversation is sent each call so a correction turn can reference the
// model's previous reply.
type ChatClient interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Message is one turn of the generation conversation.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// ParseError means the backend returned unparseable output twice. The run
// must fail rather than persist an empty narrative.
type ParseError struct {
	Attempts int
	LastErr  error
	Raw      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("narrative output unparseable after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ParseError) Unwrap() error { return e.LastErr }

// maxAttempts bounds the parse-retry loop: the initial call plus exactly one
// correction round.
const maxAttempts = 2

// Generator produces the weekly narrative from a combined snapshot.
type Generator struct {
	client ChatClient
}

// NewGenerator creates a Generator over the given backend.
func NewGenerator(client ChatClient) *Generator {
	return &Generator{client: client}
}

// Generate sends the snapshot with the business-context prompt and parses
// the reply into a Narrative. If the first reply does not parse, the same
// conversation is re-sent once with an explicit JSON-only correction; a
// second parse failure returns a ParseError.
func (g *Generator) Generate(ctx context.Context, snapshot report.CombinedSnapshot, weekOf string) (*report.Narrative, error) {
	snapshotJSON, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot for prompt: %w", err)
	}

	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt(weekOf, string(snapshotJSON))},
	}

	var lastErr error
	var raw string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err = g.client.Complete(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("narrative generation call failed: %w", err)
		}

		narrative, parseErr := parseNarrative(raw)
		if parseErr == nil {
			return narrative, nil
		}
		lastErr = parseErr
		logger.Warn("narrative reply did not parse", "attempt", attempt, "error", parseErr)

		// Re-send the original conversation plus the bad reply and an
		// explicit correction.
		messages = append(messages,
			Message{Role: "assistant", Content: raw},
			Message{Role: "user", Content: "Your previous reply was not valid JSON. Respond again with ONLY the JSON document, no prose, no code fences."},
		)
	}

	return nil, &ParseError{Attempts: maxAttempts, LastErr: lastErr, Raw: raw}
}

// parseNarrative strips common wrapping artifacts and unmarshals the reply.
func parseNarrative(raw string) (*report.Narrative, error) {
	cleaned := stripWrapping(raw)

	var n report.Narrative
	if err := json.Unmarshal([]byte(cleaned), &n); err != nil {
		return nil, err
	}
	if n.WeeklyVerdict == "" && len(n.FunnelHealth) == 0 {
		return nil, fmt.Errorf("reply parsed but carries no report fields")
	}
	return &n, nil
}

// stripWrapping removes markdown code fences and any prose before the first
// brace or after the last one. Models wrap JSON this way routinely.
func stripWrapping(s string) string {
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}
