package models

import (
	"time"
)

// ReasoningPass records one completed step of the multi-pass reasoning state
// machine. Appended to the working memory when the pass completes.
type ReasoningPass struct {
	PassNumber int      `json:"pass_number"`
	PassType   PassType `json:"pass_type"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration_ns"`

	InputConfidence  float64 `json:"input_confidence"`
	OutputConfidence float64 `json:"output_confidence"`
	ConfidenceDelta  float64 `json:"confidence_delta"`

	InputHypotheses  int `json:"input_hypotheses"`
	OutputHypotheses int `json:"output_hypotheses"`

	ContextQueries    []string `json:"context_queries"`
	Prompts           []string `json:"prompts"`
	Responses         []string `json:"responses"`
	Insights          []string `json:"insights"`
	QuestionsRaised   []string `json:"questions_raised"`
	EntitiesExtracted []Entity `json:"entities_extracted"`

	Metadata map[string]any `json:"metadata"`
}

// NewReasoningPass starts a pass with the given inputs. CompletedAt stays
// zero until Complete is called.
func NewReasoningPass(number int, passType PassType, inputConfidence float64, inputHypotheses int) *ReasoningPass {
	return &ReasoningPass{
		PassNumber:        number,
		PassType:          passType,
		StartedAt:         time.Now().UTC(),
		InputConfidence:   inputConfidence,
		InputHypotheses:   inputHypotheses,
		ContextQueries:    []string{},
		Prompts:           []string{},
		Responses:         []string{},
		Insights:          []string{},
		QuestionsRaised:   []string{},
		EntitiesExtracted: []Entity{},
		Metadata:          map[string]any{},
	}
}

// Complete records the pass outputs and derives duration and delta.
func (p *ReasoningPass) Complete(outputConfidence float64, outputHypotheses int) {
	p.CompletedAt = time.Now().UTC()
	p.Duration = p.CompletedAt.Sub(p.StartedAt)
	p.OutputConfidence = outputConfidence
	p.OutputHypotheses = outputHypotheses
	p.ConfidenceDelta = outputConfidence - p.InputConfidence
}

// Completed reports whether the pass has finished.
func (p *ReasoningPass) Completed() bool {
	return !p.CompletedAt.IsZero()
}

// ContextItem is one piece of retrieved context attached to a working memory.
type ContextItem struct {
	Source         string    `json:"source"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	RelevanceScore float64   `json:"relevance_score"`
	RetrievedAt    time.Time `json:"retrieved_at"`
}
