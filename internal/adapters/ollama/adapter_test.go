package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rexialabs/local_model_gateway/internal/models"
)

func TestChat_TranslatesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload chatPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Stream {
			t.Error("non-streaming request must set stream=false")
		}
		if payload.Options.NumCtx != 128000 {
			t.Errorf("options not forwarded, num_ctx=%d", payload.Options.NumCtx)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      payload.Model,
			"created_at": "2026-08-01T10:00:00Z",
			"message":    map[string]string{"role": "assistant", "content": "hi there"},
			"done":       true,
		})
	}))
	defer srv.Close()

	a := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	resp, err := a.Chat(context.Background(), models.ChatRequest{
		Model:    "llama3.2-vision",
		Messages: []models.ChatMessage{{Role: "user", Content: "hello"}},
		Options:  models.GenerationOptions{NumPredict: -1, NumCtx: 128000},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("got %d choices, want 1", len(resp.Choices))
	}
	if resp.Choices[0].Message.Content != "hi there" {
		t.Fatalf("unexpected content %q", resp.Choices[0].Message.Content)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("unexpected finish reason %q", resp.Choices[0].FinishReason)
	}
}

func TestChat_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	a := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := a.Chat(context.Background(), models.ChatRequest{Model: "missing"})
	if err == nil {
		t.Fatal("expected error for non-success status")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error should carry status: %v", err)
	}
}

func TestChatStream_ForwardsFragmentsAndSkipsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload chatPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if !payload.Stream {
			t.Error("streaming request must set stream=true")
		}
		lines := []string{
			`{"model":"m","message":{"role":"assistant","content":"Hello"},"done":false}`,
			`{this is not json`,
			`{"model":"m","message":{"role":"assistant","content":" world"},"done":false}`,
			`{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
		}
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}))
	defer srv.Close()

	a := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	chunks, cancel, err := a.ChatStream(context.Background(), models.ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer cancel()

	var got []string
	for chunk := range chunks {
		got = append(got, chunk.Content)
	}
	if len(got) != 2 || got[0] != "Hello" || got[1] != " world" {
		t.Fatalf("unexpected fragments %v", got)
	}
}

func TestChatStream_ErrorStatusBeforeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, _, err := a.ChatStream(context.Background(), models.ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error for non-success status")
	}
}

func TestModels_ListsTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "llama3.2-vision:11b", "modified_at": "2026-07-01T00:00:00Z", "size": 7000000000},
				{"name": "qwen2.5:7b", "modified_at": "2026-06-01T00:00:00Z", "size": 4000000000},
			},
		})
	}))
	defer srv.Close()

	a := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	got, err := a.Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d models, want 2", len(got))
	}
	if got[0].ID != "llama3.2-vision:11b" {
		t.Fatalf("unexpected model id %q", got[0].ID)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "0.5.1"})
	}))
	defer srv.Close()

	a := New(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
