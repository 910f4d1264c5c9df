// Package llm requests schema-constrained completions from a chat model.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pingbase/pingbase/internal/config"
)

var (
	// ErrRateLimited is wrapped when the provider answers HTTP 429.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrSchema is wrapped when the model output does not match the
	// requested schema.
	ErrSchema = errors.New("llm: output does not match schema")
)

// Request is one structured-output completion.
type Request struct {
	Model  string
	System string
	Prompt string
	Schema NamedSchema
}

// NamedSchema is a JSON schema with the name and description the provider
// shows to the model.
type NamedSchema struct {
	Name        string
	Description string
	Schema      Schema
}

// Schema describes the expected JSON object.
type Schema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// Property describes one field. Type is a string, or a two-element slice
// such as ["string","null"] for nullable fields.
type Property struct {
	Type        any      `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *int     `json:"minimum,omitempty"`
	Maximum     *int     `json:"maximum,omitempty"`
}

// Completer returns the raw JSON text produced for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New builds the completer selected by cfg.Provider.
func New(cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout()), nil
	case "ollama":
		return NewOllamaClient(cfg.BaseURL, cfg.Timeout()), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Decode unmarshals model output into v, rejecting unknown fields and
// trailing data. Failures wrap ErrSchema.
func Decode(raw string, v any) error {
	raw = stripFence(raw)
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after object", ErrSchema)
	}
	return nil
}

// stripFence removes a ```json fence some local models wrap output in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func withDefaultTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}
