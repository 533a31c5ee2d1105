package llm

import "context"

// Client is a single-shot completion client. The engine only ever needs one
// system prompt and one user prompt per call.
type Client interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
