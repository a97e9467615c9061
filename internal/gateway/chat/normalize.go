package chat

import (
	"strings"

	"github.com/Adamtbull/friction-ai/internal/provider"
)

// maxMessageChars caps one turn's content after trimming.
const maxMessageChars = 8000

type rawMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []rawMessage `json:"messages"`
}

// normalizeMessages reduces raw client turns to the conversation the
// adapters accept: user and assistant roles only, string content, trimmed,
// non-empty, clamped. Everything else is dropped silently; whether anything
// usable remains is the handler's call.
func normalizeMessages(raw []rawMessage) []provider.Message {
	out := make([]provider.Message, 0, len(raw))
	for _, m := range raw {
		if m.Role != provider.RoleUser && m.Role != provider.RoleAssistant {
			continue
		}
		content, ok := m.Content.(string)
		if !ok {
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		if runes := []rune(content); len(runes) > maxMessageChars {
			content = string(runes[:maxMessageChars])
		}
		out = append(out, provider.Message{Role: m.Role, Content: content})
	}
	return out
}
