package narrative

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/marketing-pulse/internal/pkg/logger"
)

// BedrockClient calls Anthropic models through AWS Bedrock. All traffic
// stays inside AWS, which matters when the snapshot carries revenue numbers.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// bedrockMessage is one turn in the Anthropic messages payload.
type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// bedrockRequest is the InvokeModel body for Anthropic models.
type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

// bedrockResponse is the InvokeModel reply.
type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewBedrockClient creates a Bedrock-backed chat client using the default
// AWS credential chain.
func NewBedrockClient(ctx context.Context, modelID, region string) (*BedrockClient, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for Bedrock: %w", err)
	}

	if modelID == "" {
		modelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	logger.Info("bedrock narrative backend initialized", "model", modelID, "region", region)
	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// Complete sends the conversation and returns the model's reply text. The
// system turn is lifted into the Anthropic system field; consecutive turns
// keep their roles.
func (b *BedrockClient) Complete(ctx context.Context, messages []Message) (string, error) {
	var system string
	msgs := make([]bedrockMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		msgs = append(msgs, bedrockMessage{
			Role:    m.Role,
			Content: []bedrockContentBlock{{Type: "text", Text: m.Content}},
		})
	}

	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4000,
		System:           system,
		Messages:         msgs,
		Temperature:      0.4,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal Bedrock request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return "", fmt.Errorf("Bedrock API error: %w", err)
	}

	var response bedrockResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("failed to parse Bedrock response: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
