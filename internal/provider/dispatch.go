package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Adamtbull/friction-ai/internal/logger"
	jsonpkg "github.com/Adamtbull/friction-ai/internal/pkg/json"
)

const maxResponseBytes = 4 << 20

// Keys carries the per-provider API keys. An empty key means the provider is
// not deployed here; dispatching to it fails with ErrNotConfigured.
type Keys struct {
	OpenAI     string
	Anthropic  string
	Gemini     string
	Perplexity string
}

type Dispatcher struct {
	client       *http.Client
	keys         Keys
	systemPrompt string

	openAIBaseURL     string
	anthropicBaseURL  string
	geminiBaseURL     string
	perplexityBaseURL string
}

// NewDispatcher builds the shared upstream client. timeout bounds each call
// end to end.
func NewDispatcher(keys Keys, systemPrompt string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Dispatcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
		keys:              keys,
		systemPrompt:      systemPrompt,
		openAIBaseURL:     "https://api.openai.com",
		anthropicBaseURL:  "https://api.anthropic.com",
		geminiBaseURL:     "https://generativelanguage.googleapis.com",
		perplexityBaseURL: "https://api.perplexity.ai",
	}
}

// Send routes msgs to the adapter owning model and returns the generated
// text.
func (d *Dispatcher) Send(ctx context.Context, model Model, msgs []Message) (string, error) {
	switch model.Provider {
	case OpenAI:
		return d.sendOpenAI(ctx, model, msgs)
	case Anthropic:
		return d.sendAnthropic(ctx, model, msgs)
	case Gemini:
		return d.sendGemini(ctx, model, msgs)
	case Perplexity:
		return d.sendPerplexity(ctx, model, msgs)
	default:
		return "", notConfigured(model.Provider)
	}
}

func (d *Dispatcher) post(ctx context.Context, name, url string, header http.Header, payload any) ([]byte, error) {
	body, err := jsonpkg.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &APIError{Provider: name, Detail: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &APIError{Provider: name, Detail: "reading response: " + err.Error()}
	}
	logger.Upstream(name, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, extractAPIError(name, resp.StatusCode, respBody)
	}
	return respBody, nil
}

// extractAPIError pulls a readable message out of the two common upstream
// error shapes, {"error":{"message":...}} and {"error":"..."}.
func extractAPIError(name string, status int, body []byte) *APIError {
	detail := "unknown error"

	var structured struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	var flat struct {
		Error string `json:"error"`
	}
	if jsonpkg.Unmarshal(body, &structured) == nil && structured.Error.Message != "" {
		detail = structured.Error.Message
	} else if jsonpkg.Unmarshal(body, &flat) == nil && flat.Error != "" {
		detail = flat.Error
	} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		detail = trimmed
	}
	if len(detail) > 300 {
		detail = detail[:300]
	}
	return &APIError{Provider: name, Status: status, Detail: detail}
}
