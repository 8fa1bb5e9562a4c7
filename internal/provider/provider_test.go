package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/vmihailenco/msgpack/v5"

	"openai-llm-bridge/internal/models"
	"openai-llm-bridge/internal/rpc"
)

type fakeOllama struct {
	chatReq   *api.ChatRequest
	chatResps []api.ChatResponse
	showReq   *api.ShowRequest
	showResp  *api.ShowResponse
	listResp  *api.ListResponse
	err       error
}

func (f *fakeOllama) Chat(_ context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	f.chatReq = req
	if f.err != nil {
		return f.err
	}
	for _, resp := range f.chatResps {
		if err := fn(resp); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeOllama) List(context.Context) (*api.ListResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.listResp, nil
}

func (f *fakeOllama) Show(_ context.Context, req *api.ShowRequest) (*api.ShowResponse, error) {
	f.showReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.showResp, nil
}

func newTestProvider(t *testing.T, ollama *fakeOllama) *Provider {
	t.Helper()
	p, err := New(ollama, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

type replyFrame struct {
	Ok  msgpack.RawMessage  `msgpack:"Ok"`
	Err *models.StatusError `msgpack:"Err"`
}

func invoke(t *testing.T, p *Provider, procedure string, req any) replyFrame {
	t.Helper()
	var payload []byte
	if req != nil {
		var err error
		if payload, err = msgpack.Marshal(req); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	raw, err := p.Invoke(context.Background(), procedure, payload)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var frame replyFrame
	if err := msgpack.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return frame
}

func TestNewRejectsNilAdaptor(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestChat(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_123)
	ollama := &fakeOllama{chatResps: []api.ChatResponse{{
		Model:     "llama3",
		CreatedAt: created,
		Message:   api.Message{Role: "assistant", Content: "hello"},
		Done:      true,
		Metrics: api.Metrics{
			TotalDuration:   2 * time.Second,
			PromptEvalCount: 7,
			EvalCount:       9,
			EvalDuration:    1500 * time.Millisecond,
		},
	}}}
	p := newTestProvider(t, ollama)

	stream := false
	frame := invoke(t, p, rpc.ProcedureChat, models.ChatRequest{
		Model:      "llama3",
		Messages:   []models.Message{{Role: "system", Content: "s"}, {Role: "user", Content: "hi"}},
		WithStream: &stream,
		Format:     "json",
		Options: []models.Option{
			{Name: "max_tokens", Value: "64"},
			{Name: "temperature", Value: "0.7"},
		},
	})
	if frame.Err != nil {
		t.Fatalf("unexpected error reply: %+v", frame.Err)
	}

	var resp models.ChatResponse
	if err := msgpack.Unmarshal(frame.Ok, &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if resp.Model != "llama3" || resp.Message.Content != "hello" || !resp.Done {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.CreatedAt != 1_700_000_000_123 {
		t.Fatalf("createdAt = %d", resp.CreatedAt)
	}
	if resp.TotalDuration != uint64(2*time.Second) || resp.EvalDuration != uint64(1500*time.Millisecond) {
		t.Fatalf("durations must be nanoseconds: %+v", resp.Metrics)
	}
	if resp.PromptEvalCount != 7 || resp.EvalCount != 9 {
		t.Fatalf("counts = %+v", resp.Metrics)
	}

	req := ollama.chatReq
	if req.Stream == nil || *req.Stream {
		t.Fatal("chat must not stream")
	}
	if req.Format != "json" || len(req.Messages) != 2 || req.Messages[1].Content != "hi" {
		t.Fatalf("unexpected ollama request: %+v", req)
	}
	wantOptions := map[string]any{"num_predict": int64(64), "temperature": 0.7}
	if !reflect.DeepEqual(req.Options, wantOptions) {
		t.Fatalf("options = %#v, want %#v", req.Options, wantOptions)
	}
}

func TestChatInvalidOption(t *testing.T) {
	ollama := &fakeOllama{}
	p := newTestProvider(t, ollama)

	frame := invoke(t, p, rpc.ProcedureChat, models.ChatRequest{
		Options: []models.Option{{Name: "temperature", Value: "warm"}},
	})
	if frame.Err == nil || frame.Err.StatusCode != http.StatusBadRequest || frame.Err.Status != statusInvalidOption {
		t.Fatalf("unexpected reply: %+v", frame.Err)
	}
	if ollama.chatReq != nil {
		t.Fatal("ollama must not be called with invalid options")
	}
}

func TestShowKeepsTemplateAndParameters(t *testing.T) {
	ollama := &fakeOllama{showResp: &api.ShowResponse{
		License:    "MIT",
		Modelfile:  "FROM llama3",
		Parameters: "stop <|eot|>",
		Template:   "{{ .Prompt }}",
		System:     "sys",
		Details:    api.ModelDetails{Format: "gguf", Family: "llama"},
	}}
	p := newTestProvider(t, ollama)

	frame := invoke(t, p, rpc.ProcedureShow, models.ShowRequest{Name: "llama3"})
	if frame.Err != nil {
		t.Fatalf("unexpected error reply: %+v", frame.Err)
	}
	var resp models.ShowResponse
	if err := msgpack.Unmarshal(frame.Ok, &resp); err != nil {
		t.Fatalf("decode show response: %v", err)
	}
	if resp.Template != "{{ .Prompt }}" || resp.Parameters != "stop <|eot|>" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Details.Families) != 0 {
		t.Fatalf("families = %#v, want empty", resp.Details.Families)
	}
	if ollama.showReq.Model != "llama3" {
		t.Fatalf("model = %q", ollama.showReq.Model)
	}
}

func TestList(t *testing.T) {
	modified := time.UnixMilli(5_000)
	ollama := &fakeOllama{listResp: &api.ListResponse{Models: []api.ListModelResponse{
		{Name: "b:latest", ModifiedAt: modified, Size: 42, Digest: "sha256:b", Details: api.ModelDetails{Families: []string{"llama"}}},
		{Name: "a:latest", ModifiedAt: modified, Size: 7, Digest: "sha256:a"},
	}}}
	p := newTestProvider(t, ollama)

	frame := invoke(t, p, rpc.ProcedureList, nil)
	var resp models.ListResponse
	if err := msgpack.Unmarshal(frame.Ok, &resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(resp.Models) != 2 || resp.Models[0].Name != "b:latest" || resp.Models[1].Name != "a:latest" {
		t.Fatalf("models = %+v", resp.Models)
	}
	if resp.Models[0].ModifiedAt != 5_000 || resp.Models[0].Size != 42 {
		t.Fatalf("first model = %+v", resp.Models[0])
	}
	if !reflect.DeepEqual(resp.Models[0].Details.Families, []string{"llama"}) || len(resp.Models[1].Details.Families) != 0 {
		t.Fatalf("families = %+v", resp.Models)
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.StatusError
	}{
		{
			"ollama status",
			api.StatusError{StatusCode: 404, Status: "404 Not Found", ErrorMessage: "model not found"},
			models.StatusError{StatusCode: 404, Status: "404 Not Found", Error: "model not found"},
		},
		{
			"other failure",
			errors.New("dial tcp: connection refused"),
			models.StatusError{StatusCode: http.StatusBadGateway, Status: "FailedOllamaRequest", Error: "dial tcp: connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, &fakeOllama{err: tt.err})
			frame := invoke(t, p, rpc.ProcedureList, nil)
			if len(frame.Ok) != 0 {
				t.Fatal("error reply must not carry Ok")
			}
			if frame.Err == nil || *frame.Err != tt.want {
				t.Fatalf("err = %+v, want %+v", frame.Err, tt.want)
			}
		})
	}
}

func TestInvokeRejectsUnknownProcedure(t *testing.T) {
	p := newTestProvider(t, &fakeOllama{})
	_, err := p.Invoke(context.Background(), "Llm.Pull", nil)
	if !errors.Is(err, ErrUnknownProcedure) {
		t.Fatalf("expected ErrUnknownProcedure, got %v", err)
	}
}

func TestInvokeRejectsUndecodableRequest(t *testing.T) {
	p := newTestProvider(t, &fakeOllama{})
	if _, err := p.Invoke(context.Background(), rpc.ProcedureChat, []byte{0xc1}); err == nil {
		t.Fatal("expected decode error")
	}
}
