// Package model defines the contract with the external model collaborator.
// The engine treats the model as opaque: providers own their transport and
// transport-level retries; the loop retries only on malformed output.
package model

import (
	"context"
	"fmt"
	"time"

	"github.com/chronosim/chronosim/types"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role        Role               `json:"role"`
	Content     string             `json:"content"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

type Request struct {
	Messages      []Message `json:"messages"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
	Temperature   float64   `json:"temperature,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response carries the model text plus optional metadata. GenerationTime is
// the provider-measured completion duration; zero means unmeasured, in which
// case the caller falls back to its own wall measurement.
type Response struct {
	Content        string        `json:"content"`
	Usage          Usage         `json:"usage"`
	GenerationTime time.Duration `json:"generation_time,omitempty"`
}

type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// PromptTooLongError is returned by providers when a request exceeds the
// context window, and raised locally by the loop's own token guard.
type PromptTooLongError struct {
	Limit int
	Size  int
}

func (e *PromptTooLongError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("prompt too long: %d tokens over limit %d", e.Size, e.Limit)
	}
	return fmt.Sprintf("prompt too long: %d tokens", e.Size)
}
