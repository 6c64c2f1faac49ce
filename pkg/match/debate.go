package match

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/intelligence-arena/arena/pkg/gateway"
	"github.com/intelligence-arena/arena/pkg/models"
)

// endSentinel lets a debater concede the floor early. It is stripped from
// the stored turn text.
const endSentinel = "<END>"

// runDebate alternates turns between the competitors, feeding each speaker
// the transcript so far. Agent1 opens; stances are drawn at random.
func (u *run) runDebate(ctx context.Context, ch *models.Challenge, a1, a2 *models.Agent) error {
	stances := []string{"for", "against"}
	rand.Shuffle(len(stances), func(i, j int) { stances[i], stances[j] = stances[j], stances[i] })
	stance1, stance2 := stances[0], stances[1]

	names := map[string]string{a1.ID: a1.DisplayName, a2.ID: a2.DisplayName}
	total := u.r.cfg.MaxDebateTurns * 2
	for i := 0; i < total; i++ {
		speaker, stance, opponentStance := a1, stance1, stance2
		if i%2 == 1 {
			speaker, stance, opponentStance = a2, stance2, stance1
		}

		u.mu.Lock()
		prompt := debatePrompt(ch, stance, opponentStance, names, u.m.Transcript)
		u.mu.Unlock()

		turn := models.AgentResponse{
			AgentID:   speaker.ID,
			Timestamp: models.Now(),
		}
		opts := gateway.Options{
			Temperature: competitorTemperature(),
			MaxTokens:   responseMaxTokens,
		}
		started := time.Now()
		completion, err := u.r.gateway.Stream(ctx, speaker.ModelID, prompt, opts, func(delta string) {
			u.r.publisher.ResponseDelta(u.m.ID, speaker.ID, delta)
		})
		if err != nil {
			return fmt.Errorf("agent %s debate turn %d: %w", speaker.ID, i+1, err)
		}

		text := completion.Text
		ended := strings.Contains(text, endSentinel)
		if ended {
			text = strings.TrimSpace(strings.ReplaceAll(text, endSentinel, ""))
		}
		turn.Text = text
		turn.ResponseTime = time.Since(started).Seconds()

		u.mu.Lock()
		u.m.Transcript = append(u.m.Transcript, turn)
		u.mu.Unlock()
		u.r.publisher.DebateTurn(u.m.ID, i, turn.Clone())
		if err := u.persist(ctx); err != nil {
			return err
		}
		if ended {
			u.log.Info("Debate ended early", "turn", i+1, "agent_id", speaker.ID)
			break
		}
	}
	return nil
}

// debatePrompt renders one speaker's turn prompt: the topic, the stances,
// and the transcript so far keyed by display name.
func debatePrompt(ch *models.Challenge, stance, opponentStance string, names map[string]string, transcript []models.AgentResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Debate Topic: %s\n\n", ch.Description)
	fmt.Fprintf(&b, "You are arguing the '%s' position. Your opponent is arguing the '%s' position.\n", stance, opponentStance)
	if len(transcript) > 0 {
		b.WriteString("\n--- Debate History ---\n")
		for _, turn := range transcript {
			fmt.Fprintf(&b, "%s: %s\n", names[turn.AgentID], turn.Text)
		}
		b.WriteString("\n--- Your Turn ---\n")
		b.WriteString("Provide your rebuttal or next argument.")
	} else {
		b.WriteString("Provide your opening statement.")
	}
	return b.String()
}
