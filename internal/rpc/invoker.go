// Package rpc carries opaque request payloads to a named remote procedure and
// returns the opaque reply.
package rpc

import (
	"context"
	"strings"
)

// ServiceName is the gRPC service that groups the LLM procedures.
const ServiceName = "ollama.llm.Llm"

// Procedures exposed by an LLM backend.
const (
	ProcedureChat = "Llm.Chat"
	ProcedureShow = "Llm.Show"
	ProcedureList = "Llm.List"
)

// Invoker performs one synchronous remote call. Implementations must not retry.
type Invoker interface {
	Invoke(ctx context.Context, procedure string, payload []byte) ([]byte, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, procedure string, payload []byte) ([]byte, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, procedure string, payload []byte) ([]byte, error) {
	return f(ctx, procedure, payload)
}

// FullMethod converts a procedure name such as "Llm.Chat" into the gRPC method path
// "/ollama.llm.Llm/Chat".
func FullMethod(procedure string) string {
	method := procedure
	if i := strings.LastIndexByte(procedure, '.'); i >= 0 {
		method = procedure[i+1:]
	}
	return "/" + ServiceName + "/" + method
}
