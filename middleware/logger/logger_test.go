package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/sweetpotato0/agentic-rag/message"
	"github.com/sweetpotato0/agentic-rag/middleware"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestGenerationLoggerRecordsSuccess(t *testing.T) {
	var buf bytes.Buffer
	m := New(newTestLogger(&buf))
	if m.Name() != "GenerationLogger" {
		t.Fatalf("unexpected name %q", m.Name())
	}

	ctx := middleware.NewContext(context.Background(), []*message.Message{
		message.NewMessage(message.RoleSystem, "sys"),
		message.NewMessage(message.RoleUser, "hello"),
	}, nil)
	ctx.Metadata["provider"] = "openai"

	err := m.Execute(ctx, func(c *middleware.Context) error {
		c.Response = message.NewMessage(message.RoleAssistant, "hi there")
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"generation completed", "messages=2", "prompt_chars=8", "response_chars=8", "provider=openai"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output:\n%s", want, out)
		}
	}
}

func TestGenerationLoggerRecordsFailure(t *testing.T) {
	var buf bytes.Buffer
	m := New(newTestLogger(&buf))
	boom := errors.New("boom")

	err := m.Execute(middleware.NewContext(context.Background(), nil, nil), func(*middleware.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "generation failed") {
		t.Fatalf("expected warn log, got:\n%s", out)
	}
}

func TestNewDefaultsLogger(t *testing.T) {
	if New(nil).logger == nil {
		t.Fatalf("expected default logger")
	}
}
