package models

// Roles accepted by the backend. Anything else never reaches a ChatRequest.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single conversational message in the internal schema.
type Message struct {
	Role    string `msgpack:"role"`
	Content string `msgpack:"content"`
}

// Option is one generation parameter, carried as a (name, value) pair.
type Option struct {
	_msgpack struct{} `msgpack:",as_array"`

	Name  string
	Value string
}

// ChatRequest is the internal representation of a chat call.
type ChatRequest struct {
	Model      string    `msgpack:"model"`
	Messages   []Message `msgpack:"messages"`
	WithStream *bool     `msgpack:"withStream"`
	Format     string    `msgpack:"format"`
	Options    []Option  `msgpack:"options"`
}

// ChatResponse captures a backend chat reply in the internal schema.
type ChatResponse struct {
	Model     string  `msgpack:"model"`
	CreatedAt uint64  `msgpack:"createdAt"`
	Message   Message `msgpack:"message"`
	Done      bool    `msgpack:"done"`

	Metrics `msgpack:",inline"`
}

// Metrics holds backend timings (nanoseconds) and evaluation counts.
type Metrics struct {
	TotalDuration      uint64 `msgpack:"totalDuration"`
	LoadDuration       uint64 `msgpack:"loadDuration"`
	PromptEvalCount    uint32 `msgpack:"promptEvalCount"`
	PromptEvalDuration uint64 `msgpack:"promptEvalDuration"`
	EvalCount          uint32 `msgpack:"evalCount"`
	EvalDuration       uint64 `msgpack:"evalDuration"`
}

// ShowRequest asks the backend to describe a single model.
type ShowRequest struct {
	Name     string   `msgpack:"name"`
	Model    string   `msgpack:"model"`
	System   string   `msgpack:"system"`
	Template string   `msgpack:"template"`
	Options  []Option `msgpack:"options"`
}

// ShowResponse describes a single model.
type ShowResponse struct {
	License    string       `msgpack:"license"`
	Modelfile  string       `msgpack:"modelfile"`
	Parameters string       `msgpack:"parameters"`
	Template   string       `msgpack:"template"`
	System     string       `msgpack:"system"`
	Details    ModelDetails `msgpack:"details"`
}

// ListResponse is the reply to a model listing.
type ListResponse struct {
	Models []ModelSummary `msgpack:"models"`
}

// ModelSummary identifies a locally available model.
type ModelSummary struct {
	Name       string       `msgpack:"name"`
	ModifiedAt uint64       `msgpack:"modifiedAt"`
	Size       uint64       `msgpack:"size"`
	Digest     string       `msgpack:"digest"`
	Details    ModelDetails `msgpack:"details"`
}

// ModelDetails is passed through every translation untouched.
type ModelDetails struct {
	Format            string   `msgpack:"format"`
	Family            string   `msgpack:"family"`
	Families          []string `msgpack:"families"`
	ParameterSize     string   `msgpack:"parameterSize"`
	QuantizationLevel string   `msgpack:"quantizationLevel"`
}

// StatusError is a failure reported by the backend itself.
type StatusError struct {
	StatusCode int    `msgpack:"statusCode"`
	Status     string `msgpack:"status"`
	Error      string `msgpack:"error"`
}

// Reply is the discriminated envelope a backend sends back: exactly one of Ok or Err
// is set.
type Reply struct {
	Ok  any          `msgpack:"Ok,omitempty"`
	Err *StatusError `msgpack:"Err,omitempty"`
}
