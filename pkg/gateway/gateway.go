// Package gateway provides the model gateway used for every LLM call in the
// arena. Competitor turns, judge evaluations and challenge generation all go
// through the Gateway interface; the production implementation speaks the
// OpenAI-compatible chat completions protocol.
package gateway

import (
	"context"
	"time"
)

// DeltaFunc receives streamed completion fragments in arrival order.
// Implementations must be fast; the gateway invokes it synchronously from the
// stream reader.
type DeltaFunc func(delta string)

// Options control a single model invocation.
type Options struct {
	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string
	// Temperature for sampling. Zero means provider default.
	Temperature float64
	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
	// Deadline bounds the whole call including retries. Zero falls back to
	// the configured request timeout.
	Deadline time.Duration
	// Structured requires the completion to parse as strict JSON and
	// validate against Schema. Validation failures are not retried.
	Structured bool
	// Schema is the JSON Schema document used when Structured is set.
	Schema string
}

// Usage reports provider token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Completion is the final result of an Invoke or Stream call.
type Completion struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Gateway is the single entry point for model invocations. Both methods
// honor context cancellation and return *ModelError on failure.
type Gateway interface {
	// Invoke performs a buffered completion call.
	Invoke(ctx context.Context, modelID, prompt string, opts Options) (*Completion, error)

	// Stream performs a streaming completion call, delivering fragments to
	// onDelta as they arrive. The returned Completion carries the full
	// concatenated text. Transient failures are retried only while no
	// fragment has been delivered; once the consumer has seen output the
	// call fails rather than silently restarting.
	Stream(ctx context.Context, modelID, prompt string, opts Options, onDelta DeltaFunc) (*Completion, error)
}
