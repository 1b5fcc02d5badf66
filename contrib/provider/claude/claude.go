package claude

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/sweetpotato0/agentic-rag/agent"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
}

// DefaultConfig returns default Claude configuration
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   4096,
		Temperature: 0.2,
	}
}

// Provider implements agent.LLMClient for the Anthropic Messages API.
type Provider struct {
	mu     sync.RWMutex
	config Config
	client anthropic.Client
}

var _ agent.LLMClient = (*Provider)(nil)

// New creates a new Claude provider using the official SDK.
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("", "")
	}
	cfg := *config
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithAuthToken(""),
	}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		config: cfg,
		client: anthropic.NewClient(options...),
	}
}

// Generate implements agent.LLMClient. System messages are joined into the
// system prompt; tool schemas are not forwarded.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	p.mu.RLock()
	cfg := p.config
	p.mu.RUnlock()

	var systemPrompts []string
	conversation := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case message.RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case message.RoleAssistant:
			conversation = append(conversation, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			conversation = append(conversation, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(conversation) == 0 {
		return nil, fmt.Errorf("claude needs at least one user message: %w", errorskg.ErrInvalidInput)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		Messages:  conversation,
		MaxTokens: cfg.MaxTokens,
	}
	if len(systemPrompts) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(systemPrompts, "\n")}}
	}
	if cfg.Temperature > 0 {
		params.Temperature = param.NewOpt(cfg.Temperature)
	}

	apiMessage, err := p.client.Messages.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("claude messages: %w: %w", errorskg.ErrPortUnavailable, err)
	}

	var text strings.Builder
	for _, block := range apiMessage.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return message.NewMessage(message.RoleAssistant, text.String()), nil
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
