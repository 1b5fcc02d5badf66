package openai

import (
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/sweetpotato0/agentic-rag/agent"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
)

// Config holds OpenAI provider configuration. BaseURL points the client at
// any OpenAI-compatible server, e.g. Ollama at http://localhost:11434/v1.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// WithBaseURL set BaseURL.
func (cfg *Config) WithBaseURL(url string) *Config {
	cfg.BaseURL = url
	return cfg
}

// WithAPIKey set api key.
func (cfg *Config) WithAPIKey(apiKey string) *Config {
	cfg.APIKey = apiKey
	return cfg
}

// WithModel set model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// DefaultConfig returns default OpenAI configuration. The low temperature
// keeps planner and critic JSON stable.
func DefaultConfig() *Config {
	return &Config{
		Model:       string(openai.ChatModelGPT4oMini),
		MaxTokens:   2000,
		Temperature: 0.2,
	}
}

// Provider implements agent.LLMClient for OpenAI chat completions.
type Provider struct {
	mu     sync.RWMutex
	config Config
	client openai.Client
}

var _ agent.LLMClient = (*Provider)(nil)

// New creates a new OpenAI provider using the official SDK.
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		config: cfg,
		client: openai.NewClient(options...),
	}
}

// Generate implements agent.LLMClient. Tool schemas are not forwarded; the
// reasoning loop asks for its decisions as JSON text.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	p.mu.RLock()
	cfg := p.config
	p.mu.RUnlock()

	params := openai.ChatCompletionNewParams{
		Messages: convertMessages(messages),
		Model:    openai.ChatModel(cfg.Model),
	}
	if cfg.Temperature > 0 {
		params.Temperature = openai.Float(cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(cfg.MaxTokens)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("openai chat completion: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices: %w", errorskg.ErrPortUnavailable)
	}

	return message.NewMessage(message.RoleAssistant, completion.Choices[0].Message.Content), nil
}

func convertMessages(messages []*message.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case message.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text()))
		case message.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Text()))
		default:
			out = append(out, openai.UserMessage(msg.Text()))
		}
	}
	return out
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
	p.config.MaxTokens = max
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Model = model
}
