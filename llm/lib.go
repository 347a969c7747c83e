package llm

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/santiagomed/scaff/logger"
	tellm "github.com/santiagomed/tellm/sdk"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type LlmConfig struct {
	Provider    string
	APIKey      string
	ModelName   string
	Temperature float32
	MaxTokens   int
	BatchID     string
	TellmURL    string
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

// NewClient returns the client for cfg.Provider.
func NewClient(cfg *LlmConfig, log logger.Logger) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIClient(cfg, log)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, log)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// callLogger records completed calls with tellm when a URL is configured.
type callLogger struct {
	client  *tellm.Client
	batchID string
	logger  logger.Logger
}

func newCallLogger(cfg *LlmConfig, log logger.Logger) *callLogger {
	cl := &callLogger{batchID: EnsureBatchID(cfg.BatchID), logger: log}
	if cfg.TellmURL != "" {
		cl.client = tellm.NewClient(cfg.TellmURL)
	}
	return cl
}

func (c *callLogger) log(prompt, res, model string, inTokens, outTokens int) {
	if c.client == nil {
		return
	}
	if err := c.client.Log(c.batchID, prompt, res, model, inTokens, outTokens); err != nil {
		c.logger.WithField("warning", err).Warn("failed to log to tellm")
	}
}

func resolve(req Request, cfg *LlmConfig) Request {
	if req.Model == "" {
		req.Model = cfg.ModelName
	}
	if req.Temperature == 0 {
		req.Temperature = cfg.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 2048
	}
	return req
}

// EnsureBatchID returns id when it is already a 12 byte hex batch id and a
// fresh one otherwise. Batch ids lead with a big-endian unix timestamp so
// tellm can order them.
func EnsureBatchID(id string) string {
	if raw, err := hex.DecodeString(id); err == nil && len(raw) == 12 {
		return id
	}
	var raw [12]byte
	binary.BigEndian.PutUint32(raw[:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(raw[4:])
	return hex.EncodeToString(raw[:])
}
