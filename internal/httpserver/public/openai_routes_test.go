package public

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexialabs/local_model_gateway/internal/app"
	"github.com/rexialabs/local_model_gateway/internal/config"
	"github.com/rexialabs/local_model_gateway/internal/models"
	"github.com/rexialabs/local_model_gateway/internal/translate"
)

const testAPIKey = "sk-test-key"

// stubBackend satisfies the provider interfaces with canned replies and
// counts calls so tests can assert validation short-circuits.
type stubBackend struct {
	calls     atomic.Int32
	lastReq   models.ChatRequest
	reply     string
	fragments []string
	modelList []models.Model
}

func (s *stubBackend) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	s.calls.Add(1)
	s.lastReq = req
	return models.ChatResponse{
		Model:   req.Model,
		Created: time.Now().UTC(),
		Choices: []models.ChatChoice{{
			Message:      models.ChatMessage{Role: "assistant", Content: s.reply},
			FinishReason: "stop",
		}},
	}, nil
}

func (s *stubBackend) ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.ChatChunk, func() error, error) {
	s.calls.Add(1)
	s.lastReq = req
	chunks := make(chan models.ChatChunk, len(s.fragments))
	for _, frag := range s.fragments {
		chunks <- models.ChatChunk{Model: req.Model, Content: frag}
	}
	close(chunks)
	return chunks, func() error { return nil }, nil
}

func (s *stubBackend) Models(ctx context.Context) ([]models.Model, error) {
	return s.modelList, nil
}

func newTestApp(t *testing.T, backend *stubBackend) *fiber.App {
	t.Helper()
	cfg := &config.Config{
		Auth: config.AuthConfig{APIKey: testAPIKey},
		Ollama: config.OllamaConfig{
			Model:        "llama3.2-vision:11b-instruct-fp16",
			NumCtx:       128000,
			VisionNumCtx: 32768,
			VisionNumGPU: -1,
		},
		Gateway: config.GatewayConfig{Stats: true},
	}
	container := &app.Container{
		Config:     cfg,
		Chat:       backend,
		ChatStream: backend,
		Models:     backend,
		Normalizer: translate.NewNormalizer(nil),
	}

	fapp := fiber.New()
	Register(fapp, container)
	return fapp
}

func postCompletion(t *testing.T, fapp *fiber.App, body map[string]any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAPIKey)

	resp, err := fapp.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["error"]
}

func TestChatCompletions_NonStreaming(t *testing.T) {
	backend := &stubBackend{reply: "alpha beta gamma"}
	fapp := newTestApp(t, backend)

	resp := postCompletion(t, fapp, map[string]any{
		"model":    "llama3.2-vision:11b-instruct-fp16",
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body openAIChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.True(t, strings.HasPrefix(body.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", body.Object)
	require.Len(t, body.Choices, 1)
	assert.Equal(t, "stop", body.Choices[0].FinishReason)
	assert.Equal(t, "assistant", body.Choices[0].Message.Role)
	assert.True(t, strings.HasPrefix(body.Choices[0].Message.Content, "alpha beta gamma"))
	assert.Contains(t, body.Choices[0].Message.Content, "[Stats: 3 tokens in")
	assert.Equal(t, -1, body.Usage.PromptTokens)
	assert.Equal(t, -1, body.Usage.CompletionTokens)
	assert.Equal(t, -1, body.Usage.TotalTokens)
}

func TestChatCompletions_DefaultModel(t *testing.T) {
	backend := &stubBackend{reply: "ok"}
	fapp := newTestApp(t, backend)

	resp := postCompletion(t, fapp, map[string]any{
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "llama3.2-vision:11b-instruct-fp16", backend.lastReq.Model)
}

func TestChatCompletions_ValidationShortCircuits(t *testing.T) {
	tests := []struct {
		name      string
		body      map[string]any
		wantError string
	}{
		{
			"multiple completions",
			map[string]any{
				"messages": []map[string]any{{"role": "user", "content": "hi"}},
				"n":        2,
			},
			"multiple completions unsupported",
		},
		{
			"temperature out of range",
			map[string]any{
				"messages":    []map[string]any{{"role": "user", "content": "hi"}},
				"temperature": 2.01,
			},
			"temperature must be between 0 and 2",
		},
		{
			"missing messages",
			map[string]any{"model": "m"},
			"messages are required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := &stubBackend{reply: "ok"}
			fapp := newTestApp(t, backend)

			resp := postCompletion(t, fapp, tc.body)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tc.wantError, errorMessage(t, resp))
			assert.Zero(t, backend.calls.Load(), "backend must not be called on validation failure")
		})
	}
}

func TestChatCompletions_BoundaryTemperatureAccepted(t *testing.T) {
	backend := &stubBackend{reply: "ok"}
	fapp := newTestApp(t, backend)

	resp := postCompletion(t, fapp, map[string]any{
		"messages":    []map[string]any{{"role": "user", "content": "hi"}},
		"temperature": 2.0,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatCompletions_VisionStreamRejected(t *testing.T) {
	backend := &stubBackend{reply: "ok"}
	fapp := newTestApp(t, backend)

	resp := postCompletion(t, fapp, map[string]any{
		"stream": true,
		"messages": []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": "describe"},
				{"type": "image_url", "image_url": map[string]any{"url": "https://example.com/a.png"}},
			},
		}},
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "streaming unsupported for vision requests", errorMessage(t, resp))
	assert.Zero(t, backend.calls.Load())
}

func TestChatCompletions_StreamingOrder(t *testing.T) {
	backend := &stubBackend{fragments: []string{"Hello", " world"}}
	fapp := newTestApp(t, backend)

	resp := postCompletion(t, fapp, map[string]any{
		"stream":   true,
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var events []string
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	// role chunk, two content chunks, stats trailer, finish chunk, sentinel
	require.Len(t, events, 6)
	require.Equal(t, "[DONE]", events[len(events)-1])

	var chunks []openAIStreamChunk
	for _, event := range events[:len(events)-1] {
		var chunk openAIStreamChunk
		require.NoError(t, json.Unmarshal([]byte(event), &chunk))
		require.Len(t, chunk.Choices, 1)
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		chunks = append(chunks, chunk)
	}

	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	assert.Empty(t, chunks[0].Choices[0].Delta.Content)
	assert.Equal(t, "Hello", chunks[1].Choices[0].Delta.Content)
	assert.Equal(t, " world", chunks[2].Choices[0].Delta.Content)
	assert.Contains(t, chunks[3].Choices[0].Delta.Content, "[Stats: 2 tokens in")
	assert.Equal(t, "stop", chunks[4].Choices[0].FinishReason)
	assert.Empty(t, chunks[4].Choices[0].Delta.Content)

	for _, chunk := range chunks[1:] {
		assert.Equal(t, chunks[0].ID, chunk.ID, "all chunks share one completion id")
	}
}

func TestListModels(t *testing.T) {
	backend := &stubBackend{modelList: []models.Model{
		{ID: "llama3.2-vision:11b", ModifiedAt: time.Unix(1700000000, 0), Size: 7000000000},
	}}
	fapp := newTestApp(t, backend)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err := fapp.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body openAIModelList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "list", body.Object)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "llama3.2-vision:11b", body.Data[0].ID)
	assert.Equal(t, "model", body.Data[0].Object)
	assert.Equal(t, int64(1700000000), body.Data[0].Created)
}

func TestChatCompletions_StopFieldShapes(t *testing.T) {
	backend := &stubBackend{reply: "ok"}
	fapp := newTestApp(t, backend)

	resp := postCompletion(t, fapp, map[string]any{
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
		"stop":     "END",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"END"}, backend.lastReq.Options.Stop)

	resp = postCompletion(t, fapp, map[string]any{
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
		"stop":     []string{"END", "STOP"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"END", "STOP"}, backend.lastReq.Options.Stop)
}
