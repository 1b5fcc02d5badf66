package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sweetpotato0/agentic-rag/agent"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

// Config holds Groq provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig returns default Groq configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "llama-3.3-70b-versatile",
		BaseURL:     defaultBaseURL,
		MaxTokens:   2048,
		Temperature: 0.2,
		Timeout:     60 * time.Second,
	}
}

// Provider implements agent.LLMClient against Groq's chat completions
// endpoint.
type Provider struct {
	mu     sync.RWMutex
	config Config
	client *http.Client
}

var _ agent.LLMClient = (*Provider)(nil)

// New creates a new Groq provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	cfg := *config
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type groqResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate implements agent.LLMClient. Tool schemas are not forwarded.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	p.mu.RLock()
	cfg := p.config
	p.mu.RUnlock()

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq api key not configured: %w", errorskg.ErrInvalidInput)
	}

	payload := groqRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		payload.Messages = append(payload.Messages, groqMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if len(payload.Messages) == 0 {
		return nil, fmt.Errorf("groq request has no messages: %w", errorskg.ErrInvalidInput)
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal groq request: %w", err)
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create groq request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("groq request: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read groq response: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("groq status %d: %s: %w", httpResp.StatusCode, strings.TrimSpace(string(respBody)), errorskg.ErrPortUnavailable)
	}

	var resp groqResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode groq response: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("groq: %s: %w", resp.Error.Message, errorskg.ErrPortUnavailable)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("groq returned no choices: %w", errorskg.ErrPortUnavailable)
	}
	return message.NewMessage(message.RoleAssistant, resp.Choices[0].Message.Content), nil
}

// SetTemperature updates the temperature setting
func (p *Provider) SetTemperature(temp float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Temperature = temp
}

// SetMaxTokens updates the max tokens setting
func (p *Provider) SetMaxTokens(max int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.MaxTokens = int(max)
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Model = model
}
