package models

import "time"

type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// GenerationOptions are the backend-native sampling options. NumPredict -1
// means unbounded; NumGPU -1 offloads every layer the hardware can take.
type GenerationOptions struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	NumPredict      int      `json:"num_predict"`
	RepeatPenalty   *float64 `json:"repeat_penalty,omitempty"`
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`
	Stop            []string `json:"stop,omitempty"`
	NumCtx          int      `json:"num_ctx"`
	NumGPU          *int     `json:"num_gpu,omitempty"`
}

type ChatRequest struct {
	Model    string            `json:"model"`
	Messages []ChatMessage     `json:"messages"`
	Options  GenerationOptions `json:"options"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Created time.Time    `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// ChatChunk is one incremental fragment of a streamed completion.
type ChatChunk struct {
	Model   string    `json:"model"`
	Created time.Time `json:"created"`
	Content string    `json:"content"`
	Done    bool      `json:"done"`
}

type Model struct {
	ID         string    `json:"id"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
