package match

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/intelligence-arena/arena/pkg/gateway"
	"github.com/intelligence-arena/arena/pkg/models"
)

const (
	// responseMaxTokens bounds a single competitor response.
	responseMaxTokens = 1500

	// Competitor temperature is drawn uniformly from
	// [temperatureFloor, temperatureFloor+temperatureSpread) per response,
	// so repeated pairings do not replay identical games.
	temperatureFloor  = 0.3
	temperatureSpread = 0.6
)

func competitorTemperature() float64 {
	return temperatureFloor + rand.Float64()*temperatureSpread
}

func startResponse(agentID string) *models.AgentResponse {
	return &models.AgentResponse{
		AgentID:     agentID,
		Timestamp:   models.Now(),
		IsStreaming: true,
	}
}

// runDuel streams both competitors' responses in parallel. The first
// stream to fail cancels its peer; a duel has no use for half a match.
func (u *run) runDuel(ctx context.Context, ch *models.Challenge, a1, a2 *models.Agent) error {
	u.mu.Lock()
	u.m.Agent1Response = startResponse(a1.ID)
	u.m.Agent2Response = startResponse(a2.ID)
	u.mu.Unlock()

	prompt := ch.Prompt()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Run's recover does not cover these goroutines, so each converts its
	// own panic into a result.
	results := make(chan error, 2)
	side := func(a *models.Agent, resp *models.AgentResponse) {
		defer func() {
			if p := recover(); p != nil {
				results <- fmt.Errorf("agent %s response panicked: %v", a.ID, p)
			}
		}()
		results <- u.streamSide(ctx, a, prompt, resp)
	}
	go side(a1, u.m.Agent1Response)
	go side(a2, u.m.Agent2Response)

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// streamSide runs one competitor's response generation, appending deltas
// under the run mutex so they interleave consistently with the peer's.
func (u *run) streamSide(ctx context.Context, a *models.Agent, prompt string, resp *models.AgentResponse) error {
	opts := gateway.Options{
		Temperature: competitorTemperature(),
		MaxTokens:   responseMaxTokens,
	}
	started := time.Now()
	completion, err := u.r.gateway.Stream(ctx, a.ModelID, prompt, opts, func(delta string) {
		u.mu.Lock()
		resp.Text += delta
		u.mu.Unlock()
		u.r.publisher.ResponseDelta(u.m.ID, a.ID, delta)
	})
	if err != nil {
		return fmt.Errorf("agent %s response: %w", a.ID, err)
	}

	u.mu.Lock()
	resp.Text = completion.Text
	resp.IsStreaming = false
	resp.ResponseTime = time.Since(started).Seconds()
	done := resp.Clone()
	u.mu.Unlock()
	u.r.publisher.ResponseComplete(u.m.ID, done)
	return nil
}
