package groq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
	"github.com/sweetpotato0/agentic-rag/message"
)

func TestGenerateSendsChatCompletion(t *testing.T) {
	var got groqRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer gsk" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"done"}}]}`))
	}))
	defer server.Close()

	cfg := DefaultConfig("gsk")
	cfg.BaseURL = server.URL + "/"
	p := New(cfg)
	p.SetModel("llama3-8b")
	resp, err := p.Generate(context.Background(), []*message.Message{
		message.NewMessage(message.RoleSystem, "Judge coverage."),
		nil,
		message.NewMessage(message.RoleUser, "Evidence..."),
	}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text() != "done" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.Model != "llama3-8b" || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestGenerateErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"over capacity"}}`))
	}))
	defer server.Close()

	msgs := []*message.Message{message.NewMessage(message.RoleUser, "hi")}
	if _, err := New(&Config{BaseURL: server.URL}).Generate(context.Background(), msgs, nil); !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without key, got %v", err)
	}
	if _, err := New(&Config{APIKey: "k", BaseURL: server.URL}).Generate(context.Background(), msgs, nil); !errors.Is(err, errorskg.ErrPortUnavailable) {
		t.Fatalf("expected ErrPortUnavailable, got %v", err)
	}
}
