package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/intelligence-arena/arena/pkg/config"
)

const (
	chatCompletionsPath = "/chat/completions"
	ssePrefix           = "data: "
	sseDone             = "[DONE]"
)

// Client talks to an OpenAI-compatible chat completions endpoint such as
// OpenRouter. It implements Gateway with retry and backoff on transient
// failures.
type Client struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
}

// NewClient builds a Client from gateway configuration. Per-call deadlines
// come from contexts, so the underlying http.Client carries no timeout of
// its own.
func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Invoke implements Gateway.
func (c *Client) Invoke(ctx context.Context, modelID, prompt string, opts Options) (*Completion, error) {
	ctx, cancel := c.withDeadline(ctx, opts)
	defer cancel()

	var completion *Completion
	err := c.withRetries(ctx, modelID, func() (bool, error) {
		var err error
		completion, err = c.doInvoke(ctx, modelID, prompt, opts)
		return false, err
	})
	if err != nil {
		return nil, err
	}
	if opts.Structured {
		cleaned, err := validateStructured(completion.Text, opts.Schema)
		if err != nil {
			return nil, err
		}
		completion.Text = cleaned
	}
	return completion, nil
}

// Stream implements Gateway. Fragments reach onDelta in arrival order; once
// any fragment has been delivered the call is no longer retried, because the
// consumer may have shown partial output already.
func (c *Client) Stream(ctx context.Context, modelID, prompt string, opts Options, onDelta DeltaFunc) (*Completion, error) {
	ctx, cancel := c.withDeadline(ctx, opts)
	defer cancel()

	var completion *Completion
	err := c.withRetries(ctx, modelID, func() (bool, error) {
		var (
			emitted bool
			err     error
		)
		completion, emitted, err = c.doStream(ctx, modelID, prompt, opts, onDelta)
		return emitted, err
	})
	if err != nil {
		return nil, err
	}
	if opts.Structured {
		cleaned, err := validateStructured(completion.Text, opts.Schema)
		if err != nil {
			return nil, err
		}
		completion.Text = cleaned
	}
	return completion, nil
}

// withDeadline applies the per-call deadline, falling back to the configured
// request timeout.
func (c *Client) withDeadline(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = c.cfg.RequestTimeout
	}
	if deadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, deadline)
}

// withRetries runs attempt until it succeeds, fails permanently, or the retry
// budget is exhausted. attempt reports whether output already reached the
// consumer; such failures are never retried.
func (c *Client) withRetries(ctx context.Context, modelID string, attempt func() (bool, error)) error {
	backoff := c.cfg.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for try := 0; ; try++ {
		emitted, err := attempt()
		if err == nil {
			return nil
		}
		lastErr = err

		me, ok := AsModelError(err)
		if !ok || !me.Retryable() || emitted || try >= c.cfg.MaxRetries {
			return lastErr
		}

		slog.Warn("Retrying model call",
			"model", modelID,
			"attempt", try+1,
			"max_retries", c.cfg.MaxRetries,
			"backoff", backoff.String(),
			"kind", string(me.Kind))

		select {
		case <-ctx.Done():
			return classifyTransport(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if c.cfg.MaxBackoff > 0 && backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// doInvoke performs a single buffered completion request.
func (c *Client) doInvoke(ctx context.Context, modelID, prompt string, opts Options) (*Completion, error) {
	req, err := c.buildRequest(ctx, modelID, prompt, opts, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, NewModelError(KindProviderError, "malformed completion response", err)
	}
	if payload.Error != nil {
		return nil, NewModelError(KindProviderError, payload.Error.Message, nil)
	}
	if len(payload.Choices) == 0 {
		return nil, NewModelError(KindProviderError, "completion response has no choices", nil)
	}

	choice := payload.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, NewModelError(KindContentFiltered, "completion suppressed by provider content filter", nil)
	}

	completion := &Completion{Text: choice.Message.Content}
	if payload.Usage != nil {
		completion.Usage = Usage{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		}
	}
	return completion, nil
}

// doStream performs a single streaming completion request and reports whether
// any fragment reached onDelta.
func (c *Client) doStream(ctx context.Context, modelID, prompt string, opts Options, onDelta DeltaFunc) (*Completion, bool, error) {
	req, err := c.buildRequest(ctx, modelID, prompt, opts, true)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, classifyTransport(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, false, err
	}

	var (
		text     strings.Builder
		usage    Usage
		emitted  bool
		filtered bool
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, emitted, classifyTransport(ctx.Err())
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		data := strings.TrimPrefix(line, ssePrefix)
		if data == sseDone {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Warn("Skipping malformed stream chunk", "model", modelID, "error", err)
			continue
		}
		if chunk.Usage != nil {
			usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason == "content_filter" {
			filtered = true
		}
		if choice.Delta.Content != "" {
			emitted = true
			text.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, emitted, classifyTransport(err)
	}
	if filtered {
		return nil, emitted, NewModelError(KindContentFiltered, "completion suppressed by provider content filter", nil)
	}

	return &Completion{Text: text.String(), Usage: usage}, emitted, nil
}

// buildRequest assembles the chat completions HTTP request.
func (c *Client) buildRequest(ctx context.Context, modelID, prompt string, opts Options, stream bool) (*http.Request, error) {
	messages := make([]chatMessage, 0, 2)
	if opts.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body := chatRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
	if opts.Structured {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, NewModelError(KindInvalid, "encoding completion request", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + chatCompletionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, NewModelError(KindInvalid, "building completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// checkStatus maps non-2xx responses to ModelErrors, consuming enough of the
// body to surface the provider's message.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := providerMessage(snippet)
	if message == "" {
		message = fmt.Sprintf("provider returned status %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewModelError(KindRateLimited, message, nil)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return NewModelError(KindTimeout, message, nil)
	default:
		return NewModelError(KindProviderError, message, nil)
	}
}

// providerMessage extracts the error message from an OpenAI-style error body.
func providerMessage(body []byte) string {
	var payload struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
		return strings.TrimSpace(string(body))
	}
	return payload.Error.Message
}

// Wire types for the OpenAI-compatible chat completions protocol.

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usagePayload `json:"usage"`
	Error *apiError     `json:"error"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usagePayload `json:"usage"`
}
