// Package provider serves the LLM procedures from an Ollama server.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/vmihailenco/msgpack/v5"

	"openai-llm-bridge/internal/models"
	"openai-llm-bridge/internal/rpc"
)

// statusFailedRequest labels Ollama failures that carry no HTTP status of their own.
const statusFailedRequest = "FailedOllamaRequest"

// statusInvalidOption labels a request option whose value cannot be converted.
const statusInvalidOption = "InvalidOption"

// ErrUnknownProcedure indicates the caller asked for a procedure this provider does not serve.
var ErrUnknownProcedure = errors.New("unknown procedure")

// OllamaAdaptor is the subset of the Ollama API the provider needs. *api.Client
// satisfies it.
type OllamaAdaptor interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
	List(ctx context.Context) (*api.ListResponse, error)
	Show(ctx context.Context, req *api.ShowRequest) (*api.ShowResponse, error)
}

var _ OllamaAdaptor = (*api.Client)(nil)

// Provider answers procedure calls with msgpack encoded models.Reply envelopes.
type Provider struct {
	ollama OllamaAdaptor
	logger *slog.Logger
}

var _ rpc.Invoker = (*Provider)(nil)

// New creates a provider backed by adaptor.
func New(adaptor OllamaAdaptor, logger *slog.Logger) (*Provider, error) {
	if adaptor == nil {
		return nil, errors.New("ollama adaptor must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{ollama: adaptor, logger: logger}, nil
}

// Invoke decodes payload for procedure, runs it against Ollama and returns the encoded
// reply. Ollama failures travel inside the reply; only an unknown procedure or an
// undecodable request is returned as an error.
func (p *Provider) Invoke(ctx context.Context, procedure string, payload []byte) ([]byte, error) {
	p.logger.Debug("handle procedure", "procedure", procedure, "payload_bytes", len(payload))

	var reply models.Reply
	switch procedure {
	case rpc.ProcedureChat:
		var req models.ChatRequest
		if err := msgpack.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode %s request: %w", procedure, err)
		}
		reply = p.chat(ctx, req)
	case rpc.ProcedureShow:
		var req models.ShowRequest
		if err := msgpack.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode %s request: %w", procedure, err)
		}
		reply = p.show(ctx, req)
	case rpc.ProcedureList:
		reply = p.list(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcedure, procedure)
	}

	if reply.Err != nil {
		p.logger.Warn("ollama request failed",
			"procedure", procedure,
			"status_code", reply.Err.StatusCode,
			"status", reply.Err.Status,
			"error", reply.Err.Error,
		)
	}

	out, err := msgpack.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("encode %s reply: %w", procedure, err)
	}
	return out, nil
}

func (p *Provider) chat(ctx context.Context, in models.ChatRequest) models.Reply {
	options, err := ollamaOptions(in.Options)
	if err != nil {
		return models.Reply{Err: &models.StatusError{
			StatusCode: http.StatusBadRequest,
			Status:     statusInvalidOption,
			Error:      err.Error(),
		}}
	}

	stream := false
	req := &api.ChatRequest{
		Model:    in.Model,
		Messages: make([]api.Message, 0, len(in.Messages)),
		Stream:   &stream,
		Format:   in.Format,
		Options:  options,
	}
	for _, msg := range in.Messages {
		req.Messages = append(req.Messages, api.Message{Role: msg.Role, Content: msg.Content})
	}

	var (
		out     models.ChatResponse
		content strings.Builder
	)
	err = p.ollama.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		out = models.ChatResponse{
			Model:     resp.Model,
			CreatedAt: unixMillis(resp.CreatedAt.UnixMilli()),
			Message:   models.Message{Role: resp.Message.Role},
			Done:      resp.Done,
			Metrics: models.Metrics{
				TotalDuration:      uint64(resp.TotalDuration.Nanoseconds()),
				LoadDuration:       uint64(resp.LoadDuration.Nanoseconds()),
				PromptEvalCount:    uint32(resp.PromptEvalCount),
				PromptEvalDuration: uint64(resp.PromptEvalDuration.Nanoseconds()),
				EvalCount:          uint32(resp.EvalCount),
				EvalDuration:       uint64(resp.EvalDuration.Nanoseconds()),
			},
		}
		return nil
	})
	if statusErr := toStatusError(err); statusErr != nil {
		return models.Reply{Err: statusErr}
	}

	out.Message.Content = content.String()
	if out.Message.Role == "" {
		out.Message.Role = models.RoleAssistant
	}
	return models.Reply{Ok: out}
}

func (p *Provider) show(ctx context.Context, in models.ShowRequest) models.Reply {
	options, err := ollamaOptions(in.Options)
	if err != nil {
		return models.Reply{Err: &models.StatusError{
			StatusCode: http.StatusBadRequest,
			Status:     statusInvalidOption,
			Error:      err.Error(),
		}}
	}

	model := in.Model
	if model == "" {
		model = in.Name
	}
	resp, err := p.ollama.Show(ctx, &api.ShowRequest{
		Model:    model,
		Name:     in.Name,
		System:   in.System,
		Template: in.Template,
		Options:  options,
	})
	if statusErr := toStatusError(err); statusErr != nil {
		return models.Reply{Err: statusErr}
	}

	return models.Reply{Ok: models.ShowResponse{
		License:    resp.License,
		Modelfile:  resp.Modelfile,
		Parameters: resp.Parameters,
		Template:   resp.Template,
		System:     resp.System,
		Details:    modelDetails(resp.Details),
	}}
}

func (p *Provider) list(ctx context.Context) models.Reply {
	resp, err := p.ollama.List(ctx)
	if statusErr := toStatusError(err); statusErr != nil {
		return models.Reply{Err: statusErr}
	}

	out := models.ListResponse{Models: make([]models.ModelSummary, 0, len(resp.Models))}
	for _, m := range resp.Models {
		out.Models = append(out.Models, models.ModelSummary{
			Name:       m.Name,
			ModifiedAt: unixMillis(m.ModifiedAt.UnixMilli()),
			Size:       uint64(max(m.Size, 0)),
			Digest:     m.Digest,
			Details:    modelDetails(m.Details),
		})
	}
	return models.Reply{Ok: out}
}

func modelDetails(d api.ModelDetails) models.ModelDetails {
	families := d.Families
	if families == nil {
		families = []string{}
	}
	return models.ModelDetails{
		Format:            d.Format,
		Family:            d.Family,
		Families:          families,
		ParameterSize:     d.ParameterSize,
		QuantizationLevel: d.QuantizationLevel,
	}
}

// ollamaOptions converts the string option pairs into Ollama's typed options map.
func ollamaOptions(options []models.Option) (map[string]any, error) {
	if len(options) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(options))
	for _, opt := range options {
		switch opt.Name {
		case "max_tokens":
			n, err := strconv.ParseInt(opt.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("option %s: %w", opt.Name, err)
			}
			out["num_predict"] = n
		case "temperature", "top_p", "frequency_penalty", "presence_penalty":
			f, err := strconv.ParseFloat(opt.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("option %s: %w", opt.Name, err)
			}
			out[opt.Name] = f
		default:
			out[opt.Name] = opt.Value
		}
	}
	return out, nil
}

// toStatusError maps an Ollama client error into the reply failure shape.
func toStatusError(err error) *models.StatusError {
	if err == nil {
		return nil
	}

	var apiErr api.StatusError
	if errors.As(err, &apiErr) {
		return &models.StatusError{
			StatusCode: apiErr.StatusCode,
			Status:     apiErr.Status,
			Error:      apiErr.ErrorMessage,
		}
	}
	return &models.StatusError{
		StatusCode: http.StatusBadGateway,
		Status:     statusFailedRequest,
		Error:      err.Error(),
	}
}

func unixMillis(ms int64) uint64 {
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}
