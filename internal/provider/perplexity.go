package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func (d *Dispatcher) sendPerplexity(ctx context.Context, model Model, msgs []Message) (string, error) {
	if d.keys.Perplexity == "" {
		return "", notConfigured(Perplexity)
	}

	payload := openAIRequest{Model: model.Upstream}
	if d.systemPrompt != "" {
		payload.Messages = append(payload.Messages, openAIMessage{Role: "system", Content: d.systemPrompt})
	}
	for _, m := range msgs {
		payload.Messages = append(payload.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	header := http.Header{"Authorization": {"Bearer " + d.keys.Perplexity}}
	body, err := d.post(ctx, Perplexity, d.perplexityBaseURL+"/chat/completions", header, payload)
	if err != nil {
		return "", err
	}

	var out perplexityResponse
	if err := jsonpkg.Unmarshal(body, &out); err != nil {
		return "", &APIError{Provider: Perplexity, Detail: "unparseable response: " + err.Error()}
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", emptyResponse(Perplexity)
	}
	return appendCitations(out.Choices[0].Message.Content, out.Citations), nil
}

// appendCitations adds the numbered source list when the answer text does not
// already carry one. Citations keep their returned order so the model's [n]
// references stay aligned.
func appendCitations(text string, citations []string) string {
	if len(citations) == 0 || strings.Contains(text, "Sources:") {
		return text
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(text, "\n"))
	b.WriteString("\n\nSources:")
	for i, citation := range citations {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, citation)
	}
	return b.String()
}
