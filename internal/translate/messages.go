package translate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rexialabs/local_model_gateway/internal/models"
)

// InboundMessage is one OpenAI chat message with its content left raw:
// clients send either a plain string or a block list, and some send shapes
// we have never seen, which must pass through rather than fail.
type InboundMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	ImageURL json.RawMessage `json:"image_url"`
}

// imageRef accepts both wire shapes for image_url: the OpenAI object form
// {"url": ...} and the bare string some clients send.
func imageRef(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL, obj.URL != ""
	}
	return "", false
}

// HasImages reports whether any message carries a block list with at least
// one image reference. This predicate decides the vision code path and is
// deliberately independent of translation.
func HasImages(msgs []InboundMessage) bool {
	for _, msg := range msgs {
		blocks, ok := blockList(msg.Content)
		if !ok {
			continue
		}
		for _, b := range blocks {
			if isImageBlock(b) {
				return true
			}
		}
	}
	return false
}

// Messages converts the OpenAI message list into backend-native messages.
// Text-only messages pass through; block lists are partitioned into one
// space-joined text field plus the normalized images in document order.
func Messages(ctx context.Context, msgs []InboundMessage, normalizer *Normalizer) ([]models.ChatMessage, error) {
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, msg := range msgs {
		var text string
		if err := json.Unmarshal(msg.Content, &text); err == nil {
			out = append(out, models.ChatMessage{Role: msg.Role, Content: text})
			continue
		}

		blocks, ok := blockList(msg.Content)
		if !ok {
			// Unrecognized content shape: pass it through verbatim
			// rather than reject the whole request.
			out = append(out, models.ChatMessage{Role: msg.Role, Content: string(msg.Content)})
			continue
		}

		var textParts []string
		var images []string
		for _, raw := range blocks {
			var part string
			if err := json.Unmarshal(raw, &part); err == nil {
				textParts = append(textParts, part)
				continue
			}
			var block contentBlock
			if err := json.Unmarshal(raw, &block); err != nil {
				continue
			}
			switch block.Type {
			case "text":
				textParts = append(textParts, block.Text)
			case "image_url":
				ref, ok := imageRef(block.ImageURL)
				if !ok {
					continue
				}
				normalized, err := normalizer.Normalize(ctx, ref)
				if err != nil {
					return nil, err
				}
				images = append(images, normalized)
			}
		}

		out = append(out, models.ChatMessage{
			Role:    msg.Role,
			Content: strings.Join(textParts, " "),
			Images:  images,
		})
	}
	return out, nil
}

func blockList(raw json.RawMessage) ([]json.RawMessage, bool) {
	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

func isImageBlock(raw json.RawMessage) bool {
	var block contentBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return false
	}
	return block.Type == "image_url"
}
