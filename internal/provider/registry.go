package provider

// Provider names as they appear in Model entries and error details.
const (
	OpenAI     = "openai"
	Anthropic  = "anthropic"
	Gemini     = "gemini"
	Perplexity = "perplexity"
)

// Model maps a client-facing model id to the adapter and upstream model name
// that serve it. AdminOnly entries are reserved for the admin identity.
type Model struct {
	ID        string
	Provider  string
	Upstream  string
	AdminOnly bool
}

var models = []Model{
	{ID: "gpt-4o-mini", Provider: OpenAI, Upstream: "gpt-4o-mini"},
	{ID: "gpt-4o", Provider: OpenAI, Upstream: "gpt-4o", AdminOnly: true},
	{ID: "claude-haiku", Provider: Anthropic, Upstream: "claude-3-5-haiku-latest"},
	{ID: "claude-sonnet", Provider: Anthropic, Upstream: "claude-sonnet-4-20250514", AdminOnly: true},
	{ID: "gemini-flash", Provider: Gemini, Upstream: "gemini-2.0-flash"},
	{ID: "sonar", Provider: Perplexity, Upstream: "sonar"},
}

var byID = func() map[string]Model {
	m := make(map[string]Model, len(models))
	for _, model := range models {
		m[model.ID] = model
	}
	return m
}()

// Lookup resolves a client-supplied model id.
func Lookup(id string) (Model, bool) {
	m, ok := byID[id]
	return m, ok
}

// VisionDefault is the model used for image-bearing extraction calls.
func VisionDefault() Model {
	return byID["gemini-flash"]
}
