package provider

import (
	"context"
	"net/url"
	"strings"

	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (d *Dispatcher) sendGemini(ctx context.Context, model Model, msgs []Message) (string, error) {
	if d.keys.Gemini == "" {
		return "", notConfigured(Gemini)
	}

	payload := geminiRequest{Contents: toGeminiContents(msgs)}
	if d.systemPrompt != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: d.systemPrompt}}}
	}
	return d.geminiGenerate(ctx, model, payload)
}

// GenerateVision sends one prompt plus an inline base64 image through the
// vision-capable adapter.
func (d *Dispatcher) GenerateVision(ctx context.Context, model Model, prompt, imageType, imageB64 string) (string, error) {
	if d.keys.Gemini == "" {
		return "", notConfigured(Gemini)
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{MimeType: imageType, Data: imageB64}},
			},
		}},
	}
	return d.geminiGenerate(ctx, model, payload)
}

func (d *Dispatcher) geminiGenerate(ctx context.Context, model Model, payload geminiRequest) (string, error) {
	endpoint := d.geminiBaseURL + "/v1beta/models/" + model.Upstream + ":generateContent?key=" + url.QueryEscape(d.keys.Gemini)
	body, err := d.post(ctx, Gemini, endpoint, nil, payload)
	if err != nil {
		return "", err
	}

	var out geminiResponse
	if err := jsonpkg.Unmarshal(body, &out); err != nil {
		return "", &APIError{Provider: Gemini, Detail: "unparseable response: " + err.Error()}
	}
	if len(out.Candidates) == 0 {
		return "", emptyResponse(Gemini)
	}

	var text strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", emptyResponse(Gemini)
	}
	return text.String(), nil
}

// toGeminiContents renames the assistant role to the upstream's "model".
func toGeminiContents(msgs []Message) []geminiContent {
	contents := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return contents
}
