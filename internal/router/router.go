package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"openai-llm-bridge/internal/llm"
	"openai-llm-bridge/internal/models"
)

// Router dispatches translated requests to the LLM backend, bounding every call by
// the inbound request context plus an optional deadline.
type Router struct {
	backend     llm.Backend
	callTimeout time.Duration
	logger      *slog.Logger
}

// New constructs a router over backend. A zero callTimeout leaves calls bounded only
// by the caller's context.
func New(backend llm.Backend, callTimeout time.Duration, logger *slog.Logger) (*Router, error) {
	if backend == nil {
		return nil, errors.New("backend must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		backend:     backend,
		callTimeout: callTimeout,
		logger:      logger,
	}, nil
}

// Chat runs one chat completion.
func (r *Router) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	resp, err := r.backend.Chat(ctx, req)
	if err != nil {
		r.logFailure("chat", err, "model", req.Model, "messages", len(req.Messages))
		return nil, err
	}
	return resp, nil
}

// Show describes a single model.
func (r *Router) Show(ctx context.Context, req models.ShowRequest) (*models.ShowResponse, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	resp, err := r.backend.Show(ctx, req)
	if err != nil {
		r.logFailure("show", err, "model", req.Name)
		return nil, err
	}
	return resp, nil
}

// List returns the models known to the backend.
func (r *Router) List(ctx context.Context) (*models.ListResponse, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	resp, err := r.backend.List(ctx)
	if err != nil {
		r.logFailure("list", err)
		return nil, err
	}
	return resp, nil
}

func (r *Router) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.callTimeout)
}

func (r *Router) logFailure(operation string, err error, attrs ...any) {
	attrs = append(attrs, "operation", operation, "err", err)
	var callErr *llm.Error
	if errors.As(err, &callErr) {
		attrs = append(attrs, "kind", callErr.Kind.String(), "status_code", callErr.StatusCode)
	}
	r.logger.Error("backend call failed", attrs...)
}
