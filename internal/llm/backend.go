package llm

import (
	"context"

	"openai-llm-bridge/internal/models"
)

// Backend is the capability to run the three remote LLM operations. Every error
// returned is an *Error.
type Backend interface {
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
	Show(ctx context.Context, req models.ShowRequest) (*models.ShowResponse, error)
	List(ctx context.Context) (*models.ListResponse, error)
}
