package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/agentic-rag/agent"
	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   2048,
		Temperature: 0.2,
	}
}

// Provider implements agent.LLMClient for Google Gemini.
type Provider struct {
	mu     sync.RWMutex
	config Config
	client *genai.Client
}

var _ agent.LLMClient = (*Provider)(nil)

// New creates a Gemini provider. Call Close when done.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	cfg := *config
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key not configured: %w", errorskg.ErrInvalidInput)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	return &Provider{config: cfg, client: client}, nil
}

// Generate implements agent.LLMClient. System messages become the system
// instruction, earlier turns the chat history and the last turn is sent.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	p.mu.RLock()
	cfg := p.config
	p.mu.RUnlock()

	model := p.client.GenerativeModel(cfg.Model)
	if cfg.Temperature > 0 {
		model.SetTemperature(cfg.Temperature)
	}
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxTokens)
	}

	var system []string
	var turns []*genai.Content
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case message.RoleSystem:
			system = append(system, msg.Content)
		case message.RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("gemini needs at least one user message: %w", errorskg.ErrInvalidInput)
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n"))}}
	}

	chat := model.StartChat()
	chat.History = turns[:len(turns)-1]
	resp, err := chat.SendMessage(ctx, turns[len(turns)-1].Parts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("gemini generate: %w: %w", errorskg.ErrPortUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates: %w", errorskg.ErrPortUnavailable)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return message.NewMessage(message.RoleAssistant, text.String()), nil
}

// SetTemperature updates the temperature setting
func (p *Provider) SetTemperature(temp float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Temperature = float32(temp)
}

// SetMaxTokens updates the max tokens setting
func (p *Provider) SetMaxTokens(max int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.MaxTokens = int32(max)
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Model = model
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}
