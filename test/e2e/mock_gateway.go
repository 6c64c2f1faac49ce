package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/intelligence-arena/arena/pkg/gateway"
)

// GatewayScriptEntry is one scripted model completion. Exactly one of
// Chunks, Text or Err should be set; the blocking fields compose with any
// of them.
type GatewayScriptEntry struct {
	// Chunks are delivered one by one through onDelta on streaming calls
	// and concatenated into the completion text.
	Chunks []string
	// Text is shorthand for a single-chunk response.
	Text string
	// Err fails the call instead of responding.
	Err error

	// BlockUntilCancelled parks the call until its context dies and then
	// returns the context error. Used to hold live-match slots open.
	BlockUntilCancelled bool
	// WaitCh, when non-nil, parks the call until the channel is closed and
	// then responds normally.
	WaitCh <-chan struct{}
	// OnBlock receives one signal when the call enters a blocking path, so
	// tests can wait until the arena is genuinely held at the gateway.
	OnBlock chan<- struct{}
}

// GatewayCall records one model invocation for assertions.
type GatewayCall struct {
	ModelID   string
	Prompt    string
	Streaming bool
}

// ScriptedGateway implements gateway.Gateway with per-model scripts.
// The arena routes every call by the agent's model id, so each model
// consumes its entries in order; an exhausted script fails the call,
// which keeps a scenario from silently absorbing extra invocations.
type ScriptedGateway struct {
	mu      sync.Mutex
	scripts map[string][]GatewayScriptEntry
	index   map[string]int
	calls   []GatewayCall
}

// NewScriptedGateway creates an empty gateway. Script entries before use.
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{
		scripts: make(map[string][]GatewayScriptEntry),
		index:   make(map[string]int),
	}
}

// Script appends entries to modelID's script.
func (g *ScriptedGateway) Script(modelID string, entries ...GatewayScriptEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[modelID] = append(g.scripts[modelID], entries...)
}

// Invoke implements gateway.Gateway.
func (g *ScriptedGateway) Invoke(ctx context.Context, modelID, prompt string, _ gateway.Options) (*gateway.Completion, error) {
	return g.run(ctx, modelID, prompt, nil)
}

// Stream implements gateway.Gateway.
func (g *ScriptedGateway) Stream(ctx context.Context, modelID, prompt string, _ gateway.Options, onDelta gateway.DeltaFunc) (*gateway.Completion, error) {
	return g.run(ctx, modelID, prompt, onDelta)
}

func (g *ScriptedGateway) run(ctx context.Context, modelID, prompt string, onDelta gateway.DeltaFunc) (*gateway.Completion, error) {
	g.mu.Lock()
	g.calls = append(g.calls, GatewayCall{ModelID: modelID, Prompt: prompt, Streaming: onDelta != nil})
	entry, err := g.next(modelID)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if entry.BlockUntilCancelled {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if entry.WaitCh != nil {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		select {
		case <-entry.WaitCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if entry.Err != nil {
		return nil, entry.Err
	}

	chunks := entry.Chunks
	if len(chunks) == 0 && entry.Text != "" {
		chunks = []string{entry.Text}
	}
	var text strings.Builder
	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if onDelta != nil {
			onDelta(chunk)
		}
		text.WriteString(chunk)
	}

	return &gateway.Completion{
		Text:  text.String(),
		Usage: gateway.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// next pops modelID's next entry. Caller holds g.mu.
func (g *ScriptedGateway) next(modelID string) (*GatewayScriptEntry, error) {
	entries := g.scripts[modelID]
	idx := g.index[modelID]
	if idx >= len(entries) {
		return nil, fmt.Errorf("scripted gateway: no more entries for model %q (consumed %d)", modelID, idx)
	}
	g.index[modelID] = idx + 1
	return &entries[idx], nil
}

// Calls returns a copy of the recorded invocations in arrival order.
func (g *ScriptedGateway) Calls() []GatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GatewayCall(nil), g.calls...)
}

// CallCount returns how many invocations the gateway has served.
func (g *ScriptedGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
