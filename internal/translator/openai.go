package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"openai-llm-bridge/internal/models"
)

const (
	objectChatCompletion = "chat.completion"
	finishReasonStop     = "stop"

	formatJSON = "json"
)

var (
	errEmptyBody        = errors.New("request body is required")
	errMissingMessages  = errors.New("messages is required")
	errInvalidContent   = errors.New("invalid message content")
	errInvalidFormat    = errors.New("unsupported response_format")
	errTrailingJSONData = errors.New("request body must contain a single JSON object")
)

// ParseError reports a chat request that is not valid JSON or violates the
// OpenAI request schema.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "invalid chat request: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ChatCompletionRequest models the OpenAI chat/completions request payload.
type ChatCompletionRequest struct {
	Model            string
	Messages         []ChatMessage
	MaxTokens        *uint64
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	ResponseFormat   *ResponseFormat
}

// ResponseFormat is the OpenAI response_format hint.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ParseChatRequest decodes a fully drained request body. Every failure is a
// *ParseError.
func ParseChatRequest(body []byte) (ChatCompletionRequest, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return ChatCompletionRequest{}, &ParseError{Err: errEmptyBody}
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	var req ChatCompletionRequest
	if err := decoder.Decode(&req); err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return ChatCompletionRequest{}, parseErr
		}
		return ChatCompletionRequest{}, &ParseError{Err: err}
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ChatCompletionRequest{}, &ParseError{Err: errTrailingJSONData}
	}
	return req, nil
}

// UnmarshalJSON enforces the request schema.
func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model            *string         `json:"model"`
		Messages         []ChatMessage   `json:"messages"`
		MaxTokens        *uint64         `json:"max_tokens"`
		Temperature      *float64        `json:"temperature"`
		TopP             *float64        `json:"top_p"`
		FrequencyPenalty *float64        `json:"frequency_penalty"`
		ResponseFormat   *ResponseFormat `json:"response_format"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}
	if raw.Messages == nil {
		return &ParseError{Err: errMissingMessages}
	}
	if raw.ResponseFormat != nil {
		switch raw.ResponseFormat.Type {
		case "text", "json_object":
		default:
			return &ParseError{Err: fmt.Errorf("%w: %q", errInvalidFormat, raw.ResponseFormat.Type)}
		}
	}

	if raw.Model != nil {
		r.Model = *raw.Model
	}
	r.Messages = raw.Messages
	r.MaxTokens = raw.MaxTokens
	r.Temperature = raw.Temperature
	r.TopP = raw.TopP
	r.FrequencyPenalty = raw.FrequencyPenalty
	r.ResponseFormat = raw.ResponseFormat
	return nil
}

// ToInternal converts the OpenAI request into the internal chat call.
func (r ChatCompletionRequest) ToInternal() models.ChatRequest {
	stream := false
	return models.ChatRequest{
		Model:      r.Model,
		Messages:   filterRoles(r.Messages),
		WithStream: &stream,
		Format:     r.format(),
		Options:    r.options(),
	}
}

// filterRoles keeps system, user and assistant messages in order. Messages with any
// other role (tool, function, developer, ...) are dropped rather than rejected.
func filterRoles(messages []ChatMessage) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem, models.RoleUser, models.RoleAssistant:
			out = append(out, models.Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

// options lists the generation parameters that were present, in a fixed order.
func (r ChatCompletionRequest) options() []models.Option {
	options := make([]models.Option, 0, 4)
	if r.MaxTokens != nil {
		options = append(options, models.Option{Name: "max_tokens", Value: strconv.FormatUint(*r.MaxTokens, 10)})
	}
	if r.Temperature != nil {
		options = append(options, models.Option{Name: "temperature", Value: formatFloat(*r.Temperature)})
	}
	if r.TopP != nil {
		options = append(options, models.Option{Name: "top_p", Value: formatFloat(*r.TopP)})
	}
	if r.FrequencyPenalty != nil {
		options = append(options, models.Option{Name: "frequency_penalty", Value: formatFloat(*r.FrequencyPenalty)})
	}
	return options
}

func (r ChatCompletionRequest) format() string {
	if r.ResponseFormat != nil && r.ResponseFormat.Type == "json_object" {
		return formatJSON
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ChatMessage captures a single message within the chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UnmarshalJSON supports string, null and array-of-text content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return &ParseError{Err: err}
	}

	m.Role = raw.Role
	m.Content = content
	return nil
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				return "", fmt.Errorf("%w: segment type %q not supported", errInvalidContent, segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}

// ChatCompletionResponse models the OpenAI-compatible chat response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created uint64       `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   OpenAIUsage  `json:"usage"`
}

// ChatChoice represents a single choice in the response payload.
type ChatChoice struct {
	Index        int                 `json:"index"`
	Message      ChatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

// ChatResponseMessage is the assistant message of a choice.
type ChatResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIUsage mirrors the token usage block in OpenAI responses.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FromInternalChat builds the OpenAI response for a backend reply. Usage is always
// zero and the finish reason is always "stop"; the backend reports neither.
func FromInternalChat(id string, resp *models.ChatResponse) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      id,
		Object:  objectChatCompletion,
		Created: millisToSeconds(resp.CreatedAt),
		Model:   resp.Model,
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: ChatResponseMessage{
					Role:    models.RoleAssistant,
					Content: resp.Message.Content,
				},
				FinishReason: finishReasonStop,
			},
		},
		Usage: OpenAIUsage{},
	}
}

// ErrorResponse is the body written for chat and show failures.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

func millisToSeconds(ms uint64) uint64 {
	return ms / 1000
}
