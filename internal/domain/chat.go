package domain

import "context"

// RoleUser tags the single turn the summarizer sends.
const RoleUser = "user"

// ChatMessage is the provider-agnostic chat message shape used by the
// summarizer and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single chat-completion exchange.
type CompletionRequest struct {
	Model     string
	MaxTokens int
	Messages  []ChatMessage
}

// Choice is one candidate returned by the completion API. Content is nil
// when the provider returned the choice without any text.
type Choice struct {
	Index   int
	Content *string
}

type CompletionResponse struct {
	Choices []Choice
}

// Completer submits an ordered list of role-tagged turns and returns the
// provider's choices in order.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
