package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/santiagomed/scaff/logger"
	"github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	openAIClient *openai.Client
	config       *LlmConfig
	calls        *callLogger
	logger       logger.Logger
}

func NewOpenAIClient(cfg *LlmConfig, log logger.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		openAIClient: openai.NewClientWithConfig(clientCfg),
		config:       cfg,
		calls:        newCallLogger(cfg, log),
		logger:       log,
	}, nil
}

// Complete sends the prompt as a chat completion and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	req = resolve(req, c.config)
	resp, err := c.openAIClient.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: req.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: getSystemPrompt(),
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: req.Prompt,
				},
			},
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		},
	)
	if err != nil {
		return "", classifyOpenAI(err)
	}

	if len(resp.Choices) == 0 {
		return "", &AdapterError{Kind: Unknown, Provider: ProviderOpenAI, Err: errors.New("no choices returned")}
	}
	res := resp.Choices[0].Message.Content
	c.calls.log(req.Prompt, res, req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return res, nil
}

func classifyOpenAI(err error) *AdapterError {
	apiErr := &openai.APIError{}
	if errors.As(err, &apiErr) {
		return &AdapterError{
			Kind:     kindForStatus(apiErr.HTTPStatusCode),
			Provider: ProviderOpenAI,
			Err:      fmt.Errorf("status %d: %s", apiErr.HTTPStatusCode, apiErr.Message),
		}
	}
	reqErr := &openai.RequestError{}
	if errors.As(err, &reqErr) {
		return &AdapterError{Kind: kindForStatus(reqErr.HTTPStatusCode), Provider: ProviderOpenAI, Err: err}
	}
	return transportError(ProviderOpenAI, err)
}
