package ollama

import (
	"time"

	"github.com/rexialabs/local_model_gateway/internal/models"
)

type chatPayload struct {
	Model    string                   `json:"model"`
	Messages []models.ChatMessage     `json:"messages"`
	Stream   bool                     `json:"stream"`
	Options  models.GenerationOptions `json:"options"`
}

// chatReply is one /api/chat response object. In streaming mode the same
// shape arrives once per line, with done=true on the final fragment.
type chatReply struct {
	Model      string       `json:"model"`
	CreatedAt  time.Time    `json:"created_at"`
	Message    chatReplyMsg `json:"message"`
	Done       bool         `json:"done"`
	DoneReason string       `json:"done_reason"`
}

type chatReplyMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tagsReply struct {
	Models []tagEntry `json:"models"`
}

type tagEntry struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
