package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/santiagomed/scaff/logger"
)

const anthropicURL = "https://api.anthropic.com/v1/messages"

type AnthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"content"`
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type AnthropicErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type AnthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature,omitempty"`
	System      string    `json:"system"`
	Messages    []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AnthropicClient struct {
	config     *LlmConfig
	url        string
	calls      *callLogger
	logger     logger.Logger
	httpClient *http.Client
}

func NewAnthropicClient(cfg *LlmConfig, log logger.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	url := anthropicURL
	if cfg.BaseURL != "" {
		url = cfg.BaseURL
	}
	return &AnthropicClient{
		config:     cfg,
		url:        url,
		calls:      newCallLogger(cfg, log),
		logger:     log,
		httpClient: &http.Client{},
	}, nil
}

func (a *AnthropicClient) Complete(ctx context.Context, r Request) (string, error) {
	r = resolve(r, a.config)
	req := AnthropicRequest{
		Model:       r.Model,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		System:      getSystemPrompt(),
		Messages: []Message{
			{Role: "user", Content: r.Prompt},
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", a.fail(Unknown, fmt.Errorf("error marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", a.fail(Unknown, fmt.Errorf("error creating request: %w", err))
	}

	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(ProviderAnthropic, fmt.Errorf("error sending request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(ProviderAnthropic, fmt.Errorf("error reading response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var errResp AnthropicErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
			return "", a.fail(kindForStatus(resp.StatusCode), fmt.Errorf("status %d", resp.StatusCode))
		}
		return "", a.fail(kindForStatus(resp.StatusCode),
			fmt.Errorf("status %d: %s - %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message))
	}

	var anthropicResp AnthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return "", a.fail(Unknown, fmt.Errorf("error unmarshaling response: %w", err))
	}

	if len(anthropicResp.Content) == 0 {
		return "", a.fail(Unknown, errors.New("no content returned"))
	}

	res := anthropicResp.Content[0].Text
	a.calls.log(r.Prompt, res, r.Model, anthropicResp.Usage.InputTokens, anthropicResp.Usage.OutputTokens)
	return res, nil
}

func (a *AnthropicClient) fail(kind ErrorKind, err error) *AdapterError {
	return &AdapterError{Kind: kind, Provider: ProviderAnthropic, Err: err}
}
