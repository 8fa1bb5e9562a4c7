package translator

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"openai-llm-bridge/internal/models"
)

func TestParseChatRequestFiltersRoles(t *testing.T) {
	body := `{
		"model": "llama3",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "tool", "content": "ignored"},
			{"role": "user", "content": "hi"},
			{"role": "developer", "content": "ignored"},
			{"role": "assistant", "content": "hello"}
		]
	}`

	req, err := ParseChatRequest([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	internal := req.ToInternal()
	want := []models.Message{
		{Role: models.RoleSystem, Content: "be brief"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	if !reflect.DeepEqual(internal.Messages, want) {
		t.Fatalf("messages = %+v, want %+v", internal.Messages, want)
	}
	if internal.Model != "llama3" {
		t.Fatalf("model = %q", internal.Model)
	}
	if internal.WithStream == nil || *internal.WithStream {
		t.Fatalf("withStream must be explicitly false")
	}
}

func TestParseChatRequestDefaultsModel(t *testing.T) {
	req, err := ParseChatRequest([]byte(`{"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := req.ToInternal().Model; got != "" {
		t.Fatalf("model = %q, want empty", got)
	}
}

func TestOptionsOnlyFromPresentParameters(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   []models.Option
	}{
		{"none", ``, []models.Option{}},
		{"max tokens", `,"max_tokens":128`, []models.Option{{Name: "max_tokens", Value: "128"}}},
		{"temperature", `,"temperature":0.7`, []models.Option{{Name: "temperature", Value: "0.7"}}},
		{"integral float", `,"top_p":1`, []models.Option{{Name: "top_p", Value: "1"}}},
		{
			"all in fixed order",
			`,"frequency_penalty":0.5,"top_p":0.9,"temperature":0,"max_tokens":16`,
			[]models.Option{
				{Name: "max_tokens", Value: "16"},
				{Name: "temperature", Value: "0"},
				{Name: "top_p", Value: "0.9"},
				{Name: "frequency_penalty", Value: "0.5"},
			},
		},
		{
			"null counts as absent",
			`,"temperature":null,"frequency_penalty":-1.5`,
			[]models.Option{{Name: "frequency_penalty", Value: "-1.5"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"messages":[{"role":"user","content":"hi"}]` + tt.params + `}`
			req, err := ParseChatRequest([]byte(body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got := req.ToInternal().Options
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("options = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResponseFormat(t *testing.T) {
	tests := []struct {
		name       string
		format     string
		wantFormat string
		wantErr    bool
	}{
		{"absent", ``, "", false},
		{"text", `,"response_format":{"type":"text"}`, "", false},
		{"json object", `,"response_format":{"type":"json_object"}`, "json", false},
		{"json schema", `,"response_format":{"type":"json_schema"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"messages":[]` + tt.format + `}`
			req, err := ParseChatRequest([]byte(body))
			if tt.wantErr {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("expected ParseError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := req.ToInternal().Format; got != tt.wantFormat {
				t.Fatalf("format = %q, want %q", got, tt.wantFormat)
			}
		})
	}
}

func TestParseChatRequestAllowsTrailingWhitespace(t *testing.T) {
	if _, err := ParseChatRequest([]byte("{\"messages\":[]}\n\t ")); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestRolesMatchExactly(t *testing.T) {
	body := `{"messages":[{"role":" user ","content":"a"},{"role":"User","content":"b"},{"role":"user","content":"c"}]}`
	req, err := ParseChatRequest([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	msgs := req.ToInternal().Messages
	if len(msgs) != 1 || msgs[0].Content != "c" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestMessageContentForms(t *testing.T) {
	body := `{"messages":[
		{"role":"user","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]},
		{"role":"assistant","content":null}
	]}`
	req, err := ParseChatRequest([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	msgs := req.ToInternal().Messages
	if msgs[0].Content != "ab" || msgs[1].Content != "" {
		t.Fatalf("unexpected contents: %+v", msgs)
	}
}

func TestParseChatRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ``},
		{"not json", `hello`},
		{"truncated", `{"messages":[`},
		{"missing messages", `{"model":"llama3"}`},
		{"null messages", `{"messages":null}`},
		{"messages wrong type", `{"messages":"hi"}`},
		{"model wrong type", `{"model":1,"messages":[]}`},
		{"negative max tokens", `{"messages":[],"max_tokens":-1}`},
		{"fractional max tokens", `{"messages":[],"max_tokens":1.5}`},
		{"temperature wrong type", `{"messages":[],"temperature":"hot"}`},
		{"image content", `{"messages":[{"role":"user","content":[{"type":"image_url","image_url":{}}]}]}`},
		{"numeric content", `{"messages":[{"role":"user","content":3}]}`},
		{"trailing data", `{"messages":[]} {"messages":[]}`},
		{"trailing brace", `{"messages":[]} }`},
		{"trailing bracket", `{"messages":[]}]`},
		{"array body", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChatRequest([]byte(tt.body))
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestFromInternalChat(t *testing.T) {
	resp := &models.ChatResponse{
		Model:     "llama3",
		CreatedAt: 1999,
		Message:   models.Message{Role: models.RoleAssistant, Content: "hello"},
		Done:      false,
		Metrics: models.Metrics{
			PromptEvalCount: 12,
			EvalCount:       34,
		},
	}

	out := FromInternalChat("id-1", resp)
	if out.ID != "id-1" || out.Object != "chat.completion" || out.Model != "llama3" {
		t.Fatalf("unexpected header fields: %+v", out)
	}
	if out.Created != 1 {
		t.Fatalf("created = %d, want 1", out.Created)
	}
	if len(out.Choices) != 1 {
		t.Fatalf("choices = %d", len(out.Choices))
	}
	choice := out.Choices[0]
	if choice.Index != 0 || choice.FinishReason != "stop" || choice.Message.Role != "assistant" || choice.Message.Content != "hello" {
		t.Fatalf("unexpected choice: %+v", choice)
	}
	if out.Usage != (OpenAIUsage{}) {
		t.Fatalf("usage must be zero, got %+v", out.Usage)
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, fragment := range []string{
		`"object":"chat.completion"`,
		`"created":1`,
		`"content":"hello"`,
		`"finish_reason":"stop"`,
		`"usage":{"prompt_tokens":0,"completion_tokens":0,"total_tokens":0}`,
	} {
		if !strings.Contains(string(encoded), fragment) {
			t.Fatalf("response %s missing %s", encoded, fragment)
		}
	}
}
