package llm

import (
	"context"
	"errors"
)

// GenerateRequest is the orchestration contract with the generative
// text service: a prompt, an output budget, and a temperature. Prompt
// content itself is owned by callers.
type GenerateRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// TextGenerator is the capability interface the pipeline depends on.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Recoverable service failures. Callers log and move on; the pipeline
// re-selects the work on the next pass.
var (
	ErrRateLimited     = errors.New("generative service rate limited")
	ErrInvalidArgument = errors.New("generative service rejected request")
)
