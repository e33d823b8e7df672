package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rexialabs/local_model_gateway/internal/models"
	"github.com/rexialabs/local_model_gateway/internal/providers/streamutil"
)

const defaultBaseURL = "http://localhost:11434"

// Options configure the Ollama adapter.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Adapter talks to a locally hosted Ollama server over its native API.
type Adapter struct {
	client  *http.Client
	baseURL string
}

func New(opts Options) *Adapter {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.HTTPClient == nil {
		// No timeout: completions on large local models routinely take
		// minutes. The server layer owns any deadline.
		opts.HTTPClient = &http.Client{}
	}
	return &Adapter{
		client:  opts.HTTPClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Chat performs a blocking, non-streaming completion.
func (a *Adapter) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	payload := chatPayload{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  req.Options,
	}
	var reply chatReply
	if err := a.postJSON(ctx, "/api/chat", payload, &reply); err != nil {
		return models.ChatResponse{}, err
	}
	return convertChatReply(reply), nil
}

// ChatStream performs a streaming completion. Ollama emits one JSON object
// per line; each line's message content is forwarded as a chunk. A line
// that does not parse is logged and skipped so one bad fragment cannot
// lose the remainder of the stream.
func (a *Adapter) ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.ChatChunk, func() error, error) {
	payload := chatPayload{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
		Options:  req.Options,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, nil, decodeAPIError(resp)
	}

	forward := func(ctx context.Context, yield streamutil.YieldFunc) {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var frag chatReply
			if err := json.Unmarshal([]byte(line), &frag); err != nil {
				slog.Warn("skipping malformed stream fragment",
					slog.String("model", req.Model),
					slog.String("error", err.Error()))
				continue
			}
			created := frag.CreatedAt
			if created.IsZero() {
				created = time.Now().UTC()
			}
			if frag.Message.Content != "" {
				chunk := models.ChatChunk{
					Model:   frag.Model,
					Created: created,
					Content: frag.Message.Content,
				}
				if !yield(chunk) {
					return
				}
			}
			if frag.Done {
				return
			}
		}
	}

	cancel := func() error {
		resp.Body.Close()
		return nil
	}
	chunks, closeFn := streamutil.Forward(ctx, cancel, forward)
	return chunks, closeFn, nil
}

// Models lists the models the server currently has pulled.
func (a *Adapter) Models(ctx context.Context) ([]models.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp)
	}
	var tags tagsReply
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}
	out := make([]models.Model, 0, len(tags.Models))
	for _, tag := range tags.Models {
		out = append(out, models.Model{
			ID:         tag.Name,
			ModifiedAt: tag.ModifiedAt,
			Size:       tag.Size,
		})
	}
	return out, nil
}

// HealthCheck probes the version endpoint as a lightweight readiness check.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/version", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	return nil
}

func (a *Adapter) postJSON(ctx context.Context, path string, payload chatPayload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func convertChatReply(reply chatReply) models.ChatResponse {
	created := reply.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return models.ChatResponse{
		Model:   reply.Model,
		Created: created,
		Choices: []models.ChatChoice{{
			Index: 0,
			Message: models.ChatMessage{
				Role:    "assistant",
				Content: reply.Message.Content,
			},
			FinishReason: "stop",
		}},
	}
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("ollama api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
