// Package mcp exposes the document question answering pipeline as Model
// Context Protocol tools.
package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/pkg/logging"
	"github.com/sweetpotato0/agentic-rag/rag/agentic"
)

// Asker answers one question inside a conversation. *runner.Runner
// satisfies it.
type Asker interface {
	Ask(ctx context.Context, conversationID, question string, opts ...agentic.RunOption) (*agentic.Response, error)
}

// SourceLister reports the documents available for retrieval.
type SourceLister interface {
	Sources() []string
}

// ServerInfo describes the server advertised to MCP clients.
type ServerInfo struct {
	Name    string
	Version string
	Title   string
}

// NewServer builds an MCP server with the ask_documents tool and, when
// sources is non-nil, the list_sources tool.
func NewServer(info ServerInfo, asker Asker, sources SourceLister) *sdkmcp.Server {
	if info.Name == "" {
		info.Name = "agentic-rag"
	}
	if info.Version == "" {
		info.Version = "0.1.0"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    info.Name,
		Version: info.Version,
		Title:   info.Title,
	}, nil)

	addAskTool(server, asker)
	if sources != nil {
		addSourcesTool(server, sources)
	}
	return server
}

type askArgs struct {
	Question       string `json:"question" jsonschema:"Question to answer from the indexed documents"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"Optional conversation whose earlier exchanges give context"`
	MaxRetries     *int   `json:"max_retries,omitempty" jsonschema:"Optional retry budget for this question"`
}

func addAskTool(server *sdkmcp.Server, asker Asker) {
	logger := logging.WithComponent("mcp")

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question from the indexed documents with cited sources",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a askArgs) (*sdkmcp.CallToolResult, any, error) {
		question := strings.TrimSpace(a.Question)
		if question == "" {
			return nil, nil, fmt.Errorf("question is required: %w", errorskg.ErrInvalidInput)
		}
		if asker == nil {
			return nil, nil, fmt.Errorf("no pipeline configured: %w", errorskg.ErrInvalidInput)
		}

		var opts []agentic.RunOption
		if a.MaxRetries != nil {
			if err := agentic.ValidateRunMaxRetries(*a.MaxRetries); err != nil {
				return nil, nil, err
			}
			opts = append(opts, agentic.WithRunMaxRetries(*a.MaxRetries))
		}

		resp, err := asker.Ask(ctx, a.ConversationID, question, opts...)
		if err != nil {
			logger.Warn("ask_documents failed", "error", err)
			return nil, nil, err
		}
		logger.Info("ask_documents answered",
			"response_id", resp.ID,
			"termination", resp.Termination,
			"cycles", len(resp.Cycles),
			"citations", len(resp.Answer.Citations))

		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{
				&sdkmcp.TextContent{Text: FormatAnswer(resp)},
			},
		}, nil, nil
	})
}

func addSourcesTool(server *sdkmcp.Server, sources SourceLister) {
	type args struct{}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_sources",
		Description: "List the documents available to ask_documents",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, _ args) (*sdkmcp.CallToolResult, any, error) {
		names := sources.Sources()
		text := "no documents indexed"
		if len(names) > 0 {
			text = strings.Join(names, "\n")
		}
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{
				&sdkmcp.TextContent{Text: text},
			},
		}, nil, nil
	})
}

// FormatAnswer renders the answer text followed by its cited sources.
func FormatAnswer(resp *agentic.Response) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(resp.Answer.Text)
	if len(resp.Answer.Citations) == 0 {
		return b.String()
	}

	b.WriteString("\n\nSources:")
	seen := make(map[string]struct{}, len(resp.Answer.Citations))
	for _, c := range resp.Answer.Citations {
		label := c.SourceID
		if c.Position != "" {
			label += " p." + c.Position
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		b.WriteString("\n- ")
		b.WriteString(label)
	}
	return b.String()
}
