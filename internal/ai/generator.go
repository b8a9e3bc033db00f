// Package ai generates reminder content via the Claude Messages API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
	apiURL           = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"
	requestTimeout   = 30 * time.Second
)

// Options tunes a single generation request. Zero values fall back to
// the generator's defaults.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Generator calls the Claude Messages API to produce reminder bodies.
type Generator struct {
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// New creates a generator with the given configuration.
func New(apiKey, modelName string, maxTokens int) *Generator {
	if modelName == "" {
		modelName = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Generator{
		apiKey:    apiKey,
		model:     modelName,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

// Generate produces text for the given system and user prompts. An empty
// result is reported as an error so callers can fall back to a static
// template.
func (g *Generator) Generate(
	ctx context.Context,
	systemPrompt, userPrompt string,
	opts Options,
) (string, error) {
	maxTokens := g.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	reqBody := apiRequest{
		Model:     g.model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages: []apiMessage{
			{
				Role: "user",
				Content: []apiContentBlock{
					{Type: "text", Text: userPrompt},
				},
			},
		},
	}
	if opts.Temperature > 0 {
		reqBody.Temperature = &opts.Temperature
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, apiURL, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", g.model)
	}

	return text, nil
}

// --- Claude API types ---

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []apiContentBlock `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
