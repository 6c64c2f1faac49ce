// Package events provides the in-process publish/subscribe bus that feeds
// real-time match delivery over SSE.
//
// ════════════════════════════════════════════════════════════════
// Topics and delivery guarantees
// ════════════════════════════════════════════════════════════════
//
// Two topic families exist:
//
//	arena/matches   — summarized lifecycle events for every match
//	                  (matchCreated, matchUpdated, matchCompleted)
//	match/{id}      — the full per-match stream (status, responseDelta,
//	                  responseComplete, debateTurn, evaluation, final)
//
// Ordering: events published to one topic are delivered to each subscriber
// in publish order. The per-match runner is the only publisher on its
// match topic, so subscribers observe a linearizable match history.
// No ordering holds across topics.
//
// Lag handling: each subscription buffers a fixed number of undelivered
// events. When a slow consumer overflows its buffer, the bus drops the
// oldest undelivered events and delivers a single coalesced "lagged"
// marker carrying the drop count. The SSE layer reacts by re-reading the
// match and emitting a fresh snapshot, so a lagging client converges on
// current state instead of replaying the gap.
package events

// Event is one bus message: its topic, a type tag, and the typed payload
// the SSE layer serializes as the data frame.
type Event struct {
	// Topic the event was published on; stamped by the bus.
	Topic string `json:"topic"`
	// Type is one of the EventType* constants.
	Type string `json:"type"`
	// Payload is the payload struct matching Type — see payloads.go.
	Payload any `json:"payload"`
}

// Per-match event types (published on match/{id}).
const (
	// EventTypeSnapshot carries the full match document. Sent once on
	// subscribe and again after a lag resync; never routed through the bus.
	EventTypeSnapshot = "snapshot"

	// EventTypeStatus marks a lifecycle transition.
	EventTypeStatus = "status"

	// EventTypeResponseDelta carries one streamed text chunk — high
	// frequency, ephemeral.
	EventTypeResponseDelta = "responseDelta"

	// EventTypeResponseComplete marks one agent's response as final.
	EventTypeResponseComplete = "responseComplete"

	// EventTypeDebateTurn carries one completed debate turn.
	EventTypeDebateTurn = "debateTurn"

	// EventTypeEvaluation carries one judge's completed evaluation.
	EventTypeEvaluation = "evaluation"

	// EventTypeFinal carries the verdict after finalization.
	EventTypeFinal = "final"

	// EventTypeLagged replaces dropped events for a slow consumer.
	EventTypeLagged = "lagged"
)

// Arena-wide event types (published on arena/matches).
const (
	EventTypeMatchCreated   = "matchCreated"
	EventTypeMatchUpdated   = "matchUpdated"
	EventTypeMatchCompleted = "matchCompleted"
)

// TopicArenaMatches is the arena-wide topic carrying summarized lifecycle
// events for every match.
const TopicArenaMatches = "arena/matches"

// MatchTopic returns the topic for a specific match's event stream.
// Format: "match/{match_id}"
func MatchTopic(matchID string) string {
	return "match/" + matchID
}
