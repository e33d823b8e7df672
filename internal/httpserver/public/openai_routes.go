package public

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/rexialabs/local_model_gateway/internal/app"
	"github.com/rexialabs/local_model_gateway/internal/httpserver/httputil"
	"github.com/rexialabs/local_model_gateway/internal/models"
	"github.com/rexialabs/local_model_gateway/internal/translate"
)

// unknownTokens is the usage sentinel: the backend reports no token counts.
const unknownTokens = -1

type openAIHandler struct {
	container *app.Container
}

type openAIChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type openAIChatRequest struct {
	Model            string              `json:"model"`
	Messages         []openAIChatMessage `json:"messages"`
	Temperature      *float64            `json:"temperature,omitempty"`
	TopP             *float64            `json:"top_p,omitempty"`
	N                *int                `json:"n,omitempty"`
	MaxTokens        *int                `json:"max_tokens,omitempty"`
	PresencePenalty  *float64            `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64            `json:"frequency_penalty,omitempty"`
	Stream           bool                `json:"stream,omitempty"`
	StopRaw          json.RawMessage     `json:"stop,omitempty"`
}

type openAIResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatChoice struct {
	Index        int                   `json:"index"`
	Message      openAIResponseMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIChatResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
	Usage   openAIUsage        `json:"usage"`
}

type openAIStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type openAIStreamChoice struct {
	Index        int               `json:"index"`
	Delta        openAIStreamDelta `json:"delta"`
	FinishReason string            `json:"finish_reason,omitempty"`
}

type openAIStreamChunk struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []openAIStreamChoice `json:"choices"`
}

type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

type openAIModelList struct {
	Object string        `json:"object"`
	Data   []openAIModel `json:"data"`
}

func (h *openAIHandler) listModels(c *fiber.Ctx) error {
	items, err := h.container.Models.Models(c.UserContext())
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}

	out := make([]openAIModel, 0, len(items))
	for _, item := range items {
		out = append(out, openAIModel{
			ID:      item.ID,
			Object:  "model",
			OwnedBy: "ollama",
			Created: item.ModifiedAt.Unix(),
		})
	}
	return c.JSON(openAIModelList{
		Object: "list",
		Data:   out,
	})
}

// chatCompletions runs the per-request pipeline: validate, classify
// (plain or vision, streaming or not), translate, dispatch, convert.
// Validation completes in full before any backend call.
func (h *openAIHandler) chatCompletions(c *fiber.Ctx) error {
	var req openAIChatRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid request body")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = h.container.Config.Ollama.Model
	}
	if len(req.Messages) == 0 {
		return httputil.WriteError(c, fiber.StatusBadRequest, "messages are required")
	}
	stop, err := parseStop(req.StopRaw)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid stop field")
	}

	params := translate.Params{
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		N:                req.N,
		MaxTokens:        req.MaxTokens,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		Stop:             stop,
	}
	if err := params.Validate(); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	}

	inbound := make([]translate.InboundMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		inbound = append(inbound, translate.InboundMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	vision := translate.HasImages(inbound)
	if vision && req.Stream {
		return httputil.WriteError(c, fiber.StatusBadRequest, "streaming unsupported for vision requests")
	}

	ctx := c.UserContext()
	messages, err := translate.Messages(ctx, inbound, h.container.Normalizer)
	if err != nil {
		slog.Error("message translation failed", slog.String("model", model), slog.String("error", err.Error()))
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}

	modelReq := models.ChatRequest{
		Model:    model,
		Messages: messages,
		Options:  params.Options(vision, h.container.ParamLimits()),
	}

	if req.Stream {
		return h.streamChat(c, model, modelReq)
	}
	return h.chat(c, model, vision, modelReq)
}

func (h *openAIHandler) chat(c *fiber.Ctx, model string, vision bool, req models.ChatRequest) error {
	mode := "text"
	if vision {
		mode = "vision"
	}

	start := time.Now()
	resp, err := h.container.Chat.Chat(c.UserContext(), req)
	elapsed := time.Since(start)
	if err != nil {
		h.container.Observability.RecordChatRequest(model, mode, fiber.StatusInternalServerError, elapsed)
		slog.Error("backend chat failed", slog.String("model", model), slog.String("error", err.Error()))
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}
	h.container.Observability.RecordChatRequest(model, mode, fiber.StatusOK, elapsed)

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	var rec translate.Recorder
	rec.Add(content)
	h.container.Observability.RecordChatTokens(model, int64(rec.Tokens()))
	if h.container.Config.Gateway.Stats {
		content += rec.Annotation(elapsed)
	}

	return c.JSON(openAIChatResponse{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openAIChatChoice{{
			Index: 0,
			Message: openAIResponseMessage{
				Role:    "assistant",
				Content: content,
			},
			FinishReason: "stop",
		}},
		Usage: unknownUsage(),
	})
}

// streamChat drains the backend chunk channel into SSE events: one
// role-only chunk, one chunk per backend fragment, a stats trailer, an
// empty-delta finish chunk, then the end sentinel.
func (h *openAIHandler) streamChat(c *fiber.Ctx, model string, req models.ChatRequest) error {
	chunks, cancel, err := h.container.ChatStream.ChatStream(c.UserContext(), req)
	if err != nil {
		slog.Error("backend stream failed", slog.String("model", model), slog.String("error", err.Error()))
		return httputil.WriteError(c, fiber.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	id := newCompletionID()
	created := time.Now().Unix()
	start := time.Now()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		write := func(choice openAIStreamChoice) bool {
			payload := openAIStreamChunk{
				ID:      id,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   model,
				Choices: []openAIStreamChoice{choice},
			}
			data, err := json.Marshal(payload)
			if err != nil {
				return false
			}
			if _, err := w.WriteString("data: "); err != nil {
				return false
			}
			if _, err := w.Write(data); err != nil {
				return false
			}
			if _, err := w.WriteString("\n\n"); err != nil {
				return false
			}
			return w.Flush() == nil
		}

		if !write(openAIStreamChoice{Delta: openAIStreamDelta{Role: "assistant"}}) {
			return
		}

		var rec translate.Recorder
		for chunk := range chunks {
			if chunk.Content == "" {
				continue
			}
			rec.Add(chunk.Content)
			if !write(openAIStreamChoice{Delta: openAIStreamDelta{Content: chunk.Content}}) {
				return
			}
		}

		elapsed := time.Since(start)
		if h.container.Config.Gateway.Stats {
			if !write(openAIStreamChoice{Delta: openAIStreamDelta{Content: rec.Annotation(elapsed)}}) {
				return
			}
		}
		if !write(openAIStreamChoice{FinishReason: "stop"}) {
			return
		}
		if _, err := w.WriteString("data: [DONE]\n\n"); err != nil {
			return
		}
		_ = w.Flush()

		h.container.Observability.RecordChatRequest(model, "text", fiber.StatusOK, elapsed)
		h.container.Observability.RecordChatTokens(model, int64(rec.Tokens()))
	})

	return nil
}

func parseStop(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return []string{str}, nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}
	return nil, errors.New("invalid stop value")
}

func newCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

func unknownUsage() openAIUsage {
	return openAIUsage{
		PromptTokens:     unknownTokens,
		CompletionTokens: unknownTokens,
		TotalTokens:      unknownTokens,
	}
}
