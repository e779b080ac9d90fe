package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultModel   = "gemini-2.0-flash"

	systemPrompt = "You are an equity research assistant covering the Tokyo Stock Exchange. " +
		"Given recent price action and news headlines for one stock, produce a short research note. " +
		`Respond with JSON only: {"summary": "...", "outlook": "bullish|bearish|neutral", "risks": ["..."], "confidence": 0.0-1.0}`
)

// Insight is the structured payload parsed from the model response.
type Insight struct {
	Summary    string   `json:"summary"`
	Outlook    string   `json:"outlook"`
	Risks      []string `json:"risks"`
	Confidence float64  `json:"confidence"`
}

// Usage carries token counts for one completion.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Generator produces an Insight from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Insight, *Usage, error)
	Model() string
}

// ClientConfig configures the completion client.
type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client calls Gemini through its OpenAI-compatible endpoint.
type Client struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewClient builds a completion client. BaseURL and Model fall back to
// the Gemini defaults when empty.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &Client{
		client:      openai.NewClient(option.WithAPIKey(cfg.APIKey), option.WithBaseURL(baseURL)),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Generate(ctx context.Context, prompt string) (*Insight, *Usage, error) {
	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(systemPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("completion request failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, nil, fmt.Errorf("empty completion response")
	}

	insight, err := parseInsight(response.Choices[0].Message.Content)
	if err != nil {
		return nil, nil, err
	}

	usage := &Usage{
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
	}
	return insight, usage, nil
}

// parseInsight extracts the JSON payload from a completion, tolerating
// markdown code fences that some models wrap JSON in.
func parseInsight(content string) (*Insight, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var insight Insight
	if err := json.Unmarshal([]byte(content), &insight); err != nil {
		return nil, fmt.Errorf("parse completion payload: %w", err)
	}

	switch insight.Outlook {
	case "bullish", "bearish", "neutral":
	default:
		insight.Outlook = "neutral"
	}
	if insight.Confidence < 0 {
		insight.Confidence = 0
	}
	if insight.Confidence > 1 {
		insight.Confidence = 1
	}
	return &insight, nil
}
