package cohere

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

const defaultEndpoint = "https://api.cohere.com/v1/chat"

// Config holds Cohere provider configuration
type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig returns default Cohere configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "command-r",
		Endpoint:    defaultEndpoint,
		MaxTokens:   2048,
		Temperature: 0.2,
		Timeout:     60 * time.Second,
	}
}

// Provider implements agent.LLMClient for Cohere's v1 chat API.
type Provider struct {
	mu     sync.RWMutex
	config Config
	client *http.Client
}

var _ agent.LLMClient = (*Provider)(nil)

// New creates a new Cohere provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	cfg := *config
	if cfg.Model == "" {
		cfg.Model = "command-r"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type chatRequest struct {
	Model       string     `json:"model"`
	Message     string     `json:"message"`
	Preamble    string     `json:"preamble,omitempty"`
	ChatHistory []chatTurn `json:"chat_history,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
	Temperature float64    `json:"temperature"`
}

type chatResponse struct {
	Text    string `json:"text"`
	Message string `json:"message"`
}

// Generate implements agent.LLMClient. System messages become the preamble,
// the last user message is sent as the message and earlier turns as chat
// history. Tool schemas are not forwarded.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	p.mu.RLock()
	cfg := p.config
	p.mu.RUnlock()

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cohere api key not configured: %w", errorskg.ErrInvalidInput)
	}
	payload, err := buildRequest(cfg, messages)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal cohere request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create cohere request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("cohere request: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cohere response: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	var resp chatResponse
	if httpResp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(respBody, &resp)
		detail := resp.Message
		if detail == "" {
			detail = strings.TrimSpace(string(respBody))
		}
		return nil, fmt.Errorf("cohere status %d: %s: %w", httpResp.StatusCode, detail, errorskg.ErrPortUnavailable)
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode cohere response: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	return message.NewMessage(message.RoleAssistant, resp.Text), nil
}

func buildRequest(cfg Config, messages []*message.Message) (chatRequest, error) {
	req := chatRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	var preamble []string
	var turns []*message.Message
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if msg.Role == message.RoleSystem {
			preamble = append(preamble, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != message.RoleUser {
		return req, fmt.Errorf("cohere request must end with a user message: %w", errorskg.ErrInvalidInput)
	}
	req.Preamble = strings.Join(preamble, "\n")
	req.Message = turns[len(turns)-1].Content
	for _, msg := range turns[:len(turns)-1] {
		role := "USER"
		if msg.Role == message.RoleAssistant {
			role = "CHATBOT"
		}
		req.ChatHistory = append(req.ChatHistory, chatTurn{Role: role, Message: msg.Content})
	}
	return req, nil
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
