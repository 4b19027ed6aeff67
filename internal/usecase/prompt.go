package usecase

import "summarize-gateway/internal/domain"

// SummarizePrefix is prepended verbatim to the submitted text.
const SummarizePrefix = "Summarize the following text:\n\n"

func buildSummaryMessages(text string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleUser, Content: SummarizePrefix + text},
	}
}
