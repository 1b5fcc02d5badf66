package cohere

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

func TestGenerateMapsRolesToChatAPI(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"text":"Refunds take 30 days [policy.txt p.1]."}`))
	}))
	defer server.Close()

	p := New(&Config{APIKey: "k", Endpoint: server.URL})
	resp, err := p.Generate(context.Background(), []*message.Message{
		message.NewMessage(message.RoleSystem, "Answer from evidence."),
		message.NewMessage(message.RoleUser, "earlier question"),
		message.NewMessage(message.RoleAssistant, "earlier answer"),
		message.NewMessage(message.RoleUser, "What is the refund window?"),
	}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text() != "Refunds take 30 days [policy.txt p.1]." {
		t.Fatalf("unexpected response %q", resp.Text())
	}
	if got.Preamble != "Answer from evidence." || got.Message != "What is the refund window?" || got.Model != "command-r" {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.ChatHistory) != 2 || got.ChatHistory[0].Role != "USER" || got.ChatHistory[1].Role != "CHATBOT" {
		t.Fatalf("unexpected history %+v", got.ChatHistory)
	}
}

func TestGenerateErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api token"}`))
	}))
	defer server.Close()

	user := []*message.Message{message.NewMessage(message.RoleUser, "hi")}
	if _, err := New(&Config{Endpoint: server.URL}).Generate(context.Background(), user, nil); !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without key, got %v", err)
	}
	systemOnly := []*message.Message{message.NewMessage(message.RoleSystem, "sys")}
	if _, err := New(&Config{APIKey: "k", Endpoint: server.URL}).Generate(context.Background(), systemOnly, nil); !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without user turn, got %v", err)
	}
	if _, err := New(&Config{APIKey: "k", Endpoint: server.URL}).Generate(context.Background(), user, nil); !errors.Is(err, errorskg.ErrPortUnavailable) {
		t.Fatalf("expected ErrPortUnavailable, got %v", err)
	}
}
