package modelapi

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("model returned an empty response")

const (
	TypeString = "STRING"
	TypeObject = "OBJECT"
	TypeArray  = "ARRAY"
)

// Schema describes the expected JSON answer. Providers that support structured output
// translate it into their own schema type; the rest ignore it.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Required    []string
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	// JSON asks the provider for a JSON-only answer when it supports it.
	// Callers still validate the text they get back.
	JSON bool
	// Schema is optional and only used together with JSON.
	Schema *Schema
}

// Completer is the contract every text generation provider implements.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
