// Package llm adapts the internal LLM call representation to a remote procedure
// call carrying msgpack envelopes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"openai-llm-bridge/internal/models"
	"openai-llm-bridge/internal/rpc"
	"openai-llm-bridge/internal/telemetry"
)

const tracerName = "openai-llm-bridge/internal/llm"

var (
	errMissingReply   = errors.New("reply envelope carries neither Ok nor Err")
	errAmbiguousReply = errors.New("reply envelope carries both Ok and Err")
)

// Client implements Backend on top of an rpc.Invoker.
type Client struct {
	invoker rpc.Invoker
	tracer  trace.Tracer
	metrics *telemetry.Metrics
	marshal func(any) ([]byte, error)
}

var _ Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithMetrics records every call outcome on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// NewClient constructs a Client that sends every call through invoker.
func NewClient(invoker rpc.Invoker, opts ...Option) *Client {
	c := &Client{
		invoker: invoker,
		tracer:  otel.Tracer(tracerName),
		marshal: msgpack.Marshal,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat runs one chat completion on the backend.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	return call[models.ChatResponse](ctx, c, rpc.ProcedureChat, req)
}

// Show describes a single model.
func (c *Client) Show(ctx context.Context, req models.ShowRequest) (*models.ShowResponse, error) {
	return call[models.ShowResponse](ctx, c, rpc.ProcedureShow, req)
}

// List returns the models known to the backend. The call carries an empty payload.
func (c *Client) List(ctx context.Context) (*models.ListResponse, error) {
	return call[models.ListResponse](ctx, c, rpc.ProcedureList, nil)
}

func call[T any](ctx context.Context, c *Client, procedure string, request any) (*T, error) {
	ctx, span := c.tracer.Start(ctx, procedure,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", rpc.FullMethod(procedure))),
	)
	defer span.End()

	start := time.Now()
	resp, callErr := roundTrip[T](ctx, c, procedure, request)

	outcome := "ok"
	if callErr != nil {
		outcome = callErr.Kind.String()
		span.SetAttributes(
			attribute.String("llm.error.kind", outcome),
			attribute.String("llm.error.status", callErr.Status),
			attribute.Int("llm.error.status_code", callErr.StatusCode),
		)
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Message)
	}
	c.metrics.ObserveRPC(procedure, outcome, time.Since(start))

	if callErr != nil {
		return nil, callErr
	}
	return resp, nil
}

// roundTrip performs exactly one invocation. The returned *Error is nil on success.
func roundTrip[T any](ctx context.Context, c *Client, procedure string, request any) (*T, *Error) {
	var payload []byte
	if request != nil {
		encoded, err := c.marshal(request)
		if err != nil {
			return nil, newError(KindPreCallSerialization, fmt.Errorf("encode %s request: %w", procedure, err))
		}
		payload = encoded
	}

	raw, err := c.invoker.Invoke(ctx, procedure, payload)
	if err != nil {
		return nil, newError(KindTransportFailure, err)
	}

	var frame struct {
		Ok  msgpack.RawMessage  `msgpack:"Ok"`
		Err *models.StatusError `msgpack:"Err"`
	}
	if err := msgpack.Unmarshal(raw, &frame); err != nil {
		return nil, newError(KindResponseDeserialization, fmt.Errorf("decode %s reply: %w", procedure, err))
	}

	hasOk := len(frame.Ok) > 0
	switch {
	case hasOk && frame.Err != nil:
		return nil, newError(KindResponseDeserialization, errAmbiguousReply)
	case frame.Err != nil:
		return nil, upstreamError(frame.Err.StatusCode, frame.Err.Status, frame.Err.Error)
	case !hasOk:
		return nil, newError(KindResponseDeserialization, errMissingReply)
	}

	var resp T
	if err := msgpack.Unmarshal(frame.Ok, &resp); err != nil {
		return nil, newError(KindResponseDeserialization, fmt.Errorf("decode %s result: %w", procedure, err))
	}
	return &resp, nil
}
