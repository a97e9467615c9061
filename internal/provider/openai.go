package provider

import (
	"context"
	"net/http"
	"strings"

	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (d *Dispatcher) sendOpenAI(ctx context.Context, model Model, msgs []Message) (string, error) {
	if d.keys.OpenAI == "" {
		return "", notConfigured(OpenAI)
	}

	payload := openAIRequest{Model: model.Upstream}
	if d.systemPrompt != "" {
		payload.Messages = append(payload.Messages, openAIMessage{Role: "system", Content: d.systemPrompt})
	}
	for _, m := range msgs {
		payload.Messages = append(payload.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	header := http.Header{"Authorization": {"Bearer " + d.keys.OpenAI}}
	body, err := d.post(ctx, OpenAI, d.openAIBaseURL+"/v1/chat/completions", header, payload)
	if err != nil {
		return "", err
	}

	var out openAIResponse
	if err := jsonpkg.Unmarshal(body, &out); err != nil {
		return "", &APIError{Provider: OpenAI, Detail: "unparseable response: " + err.Error()}
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", emptyResponse(OpenAI)
	}
	return out.Choices[0].Message.Content, nil
}
