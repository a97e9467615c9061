package provider

import (
	"context"
	"net/http"
	"strings"

	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 2048
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (d *Dispatcher) sendAnthropic(ctx context.Context, model Model, msgs []Message) (string, error) {
	if d.keys.Anthropic == "" {
		return "", notConfigured(Anthropic)
	}

	payload := anthropicRequest{
		Model:     model.Upstream,
		MaxTokens: anthropicMaxTokens,
		System:    d.systemPrompt,
	}
	for _, m := range mergeAlternating(msgs) {
		payload.Messages = append(payload.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	header := http.Header{
		"X-Api-Key":         {d.keys.Anthropic},
		"Anthropic-Version": {anthropicVersion},
	}
	body, err := d.post(ctx, Anthropic, d.anthropicBaseURL+"/v1/messages", header, payload)
	if err != nil {
		return "", err
	}

	var out anthropicResponse
	if err := jsonpkg.Unmarshal(body, &out); err != nil {
		return "", &APIError{Provider: Anthropic, Detail: "unparseable response: " + err.Error()}
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", emptyResponse(Anthropic)
	}
	return text.String(), nil
}

// mergeAlternating collapses consecutive same-role turns into one, joined by
// a blank line. The upstream rejects conversations that do not strictly
// alternate between user and assistant.
func mergeAlternating(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
