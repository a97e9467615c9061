// Package provider turns a normalized conversation into one outbound LLM
// call. Each upstream vendor gets an adapter that builds its request shape,
// posts it, and extracts plain generated text; every failure mode comes back
// as a typed error the gateway can map to a status code. One inbound request
// costs at most one upstream call. Nothing here retries.
package provider

import (
	"errors"
	"fmt"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the normalized conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

var (
	// ErrNotConfigured marks a dispatch against a provider whose API key is
	// missing from the deployment.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrEmptyResponse marks an upstream 200 whose payload carried no usable
	// text.
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// APIError is a failed upstream call. Transport failures carry Status 0;
// non-200 responses carry the upstream status and a trimmed detail.
type APIError struct {
	Provider string
	Status   int
	Detail   string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Detail)
	}
	return fmt.Sprintf("%s: upstream %d: %s", e.Provider, e.Status, e.Detail)
}

func notConfigured(name string) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, name)
}

func emptyResponse(name string) error {
	return fmt.Errorf("%w: %s", ErrEmptyResponse, name)
}
