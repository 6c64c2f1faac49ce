package api

// CreateAgentRequest is the body for POST /agents.
type CreateAgentRequest struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"displayName"`
	ModelID         string   `json:"modelId"`
	Description     string   `json:"description,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
}

// QuickMatchRequest is the body for POST /matches/quick. Every field is
// optional: empty agent ids pair automatically, an empty division
// defaults to novice, and an empty challengeId samples the corpus.
type QuickMatchRequest struct {
	Division    string `json:"division,omitempty"`
	Agent1ID    string `json:"agent1Id,omitempty"`
	Agent2ID    string `json:"agent2Id,omitempty"`
	ChallengeID string `json:"challengeId,omitempty"`
}
