package models

import (
	"fmt"
	"strings"
	"time"
)

// ChallengeType categorizes what a challenge tests.
type ChallengeType string

const (
	// ChallengeLogicalReasoning tests deduction and inference
	ChallengeLogicalReasoning ChallengeType = "logical_reasoning"
	// ChallengeDebate is an argued topic, played as a debate match
	ChallengeDebate ChallengeType = "debate"
	// ChallengeCreativeProblemSolving tests novel solution finding
	ChallengeCreativeProblemSolving ChallengeType = "creative_problem_solving"
	// ChallengeMathematical tests formal problem solving
	ChallengeMathematical ChallengeType = "mathematical"
	// ChallengeAbstractThinking tests pattern and analogy work
	ChallengeAbstractThinking ChallengeType = "abstract_thinking"
)

// IsValid checks if the challenge type is valid
func (t ChallengeType) IsValid() bool {
	switch t {
	case ChallengeLogicalReasoning,
		ChallengeDebate,
		ChallengeCreativeProblemSolving,
		ChallengeMathematical,
		ChallengeAbstractThinking:
		return true
	default:
		return false
	}
}

// Title renders the type for prompts, e.g. "Logical Reasoning".
func (t ChallengeType) Title() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Difficulty grades a challenge from beginner to master.
type Difficulty string

const (
	// DifficultyBeginner is level 1
	DifficultyBeginner Difficulty = "beginner"
	// DifficultyIntermediate is level 2
	DifficultyIntermediate Difficulty = "intermediate"
	// DifficultyAdvanced is level 3
	DifficultyAdvanced Difficulty = "advanced"
	// DifficultyExpert is level 4
	DifficultyExpert Difficulty = "expert"
	// DifficultyMaster is level 5
	DifficultyMaster Difficulty = "master"
)

// IsValid checks if the difficulty is valid
func (d Difficulty) IsValid() bool {
	return d.Level() != 0
}

// Level returns the 1-5 ordinal of the difficulty, 0 if unknown.
func (d Difficulty) Level() int {
	switch d {
	case DifficultyBeginner:
		return 1
	case DifficultyIntermediate:
		return 2
	case DifficultyAdvanced:
		return 3
	case DifficultyExpert:
		return 4
	case DifficultyMaster:
		return 5
	default:
		return 0
	}
}

// ChallengeSource records where a challenge came from.
type ChallengeSource string

const (
	// SourceSeed marks challenges loaded from the seed corpus
	SourceSeed ChallengeSource = "seed"
	// SourceGenerated marks machine-generated challenges
	SourceGenerated ChallengeSource = "generated"
	// SourceCommunity marks contributed challenges
	SourceCommunity ChallengeSource = "community"
)

// IsValid checks if the challenge source is valid
func (s ChallengeSource) IsValid() bool {
	return s == SourceSeed || s == SourceGenerated || s == SourceCommunity
}

// Example is one worked input/output pair shown in challenge prompts.
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Challenge is a structured prompt with difficulty and type metadata.
type Challenge struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Type        ChallengeType `json:"type"`
	Difficulty  Difficulty    `json:"difficulty"`

	Context            string    `json:"context,omitempty"`
	Constraints        []string  `json:"constraints,omitempty"`
	Examples           []Example `json:"examples,omitempty"`
	EvaluationCriteria []string  `json:"evaluationCriteria,omitempty"`
	ExpectedConcepts   []string  `json:"expectedConcepts,omitempty"`
	// Answer holds the reference solution when one exists; judges get it,
	// competitors never do.
	Answer string `json:"answer,omitempty"`

	Tags   []string        `json:"tags,omitempty"`
	Source ChallengeSource `json:"source"`

	// QualityScore is an EMA of how well the challenge discriminated
	// between agents; maintained by the ranking engine.
	QualityScore float64 `json:"qualityScore"`
	Uses         int     `json:"uses"`

	// Probation holds community contributions out of regular rotation
	// until their first completed match with a non-null result.
	Probation bool `json:"probation"`
	// Retired excludes the challenge from selection permanently.
	Retired bool `json:"retired"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`
}

// DefaultQualityScore is the neutral quality assigned to new challenges.
const DefaultQualityScore = 0.5

// Prompt renders the full challenge prompt shown to competitors.
func (c *Challenge) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Challenge: %s**\n", c.Title)
	fmt.Fprintf(&b, "**Type:** %s\n", c.Type.Title())
	fmt.Fprintf(&b, "**Difficulty:** %s\n\n", strings.ToUpper(string(c.Difficulty)))

	if c.Context != "" {
		fmt.Fprintf(&b, "**Context:**\n%s\n\n", c.Context)
	}

	fmt.Fprintf(&b, "**Challenge:**\n%s\n", c.Description)

	if len(c.Constraints) > 0 {
		b.WriteString("\n**Constraints:**\n")
		for _, constraint := range c.Constraints {
			fmt.Fprintf(&b, "- %s\n", constraint)
		}
	}

	if len(c.Examples) > 0 {
		b.WriteString("\n**Examples:**\n")
		for _, ex := range c.Examples {
			fmt.Fprintf(&b, "Input: %s\nOutput: %s\n", ex.Input, ex.Output)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// Clone returns a deep copy.
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	out := *c
	out.Constraints = append([]string(nil), c.Constraints...)
	out.Examples = append([]Example(nil), c.Examples...)
	out.EvaluationCriteria = append([]string(nil), c.EvaluationCriteria...)
	out.ExpectedConcepts = append([]string(nil), c.ExpectedConcepts...)
	out.Tags = append([]string(nil), c.Tags...)
	return &out
}
