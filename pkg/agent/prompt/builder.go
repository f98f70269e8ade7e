// Package prompt builds the text sent to the AI router for each reasoning
// pass. The builder is stateless and thread-safe; all state comes from the
// working memory passed in.
package prompt

import (
	"fmt"
	"strings"

	"github.com/cortexhq/cortex/pkg/memory"
	"github.com/cortexhq/cortex/pkg/models"
)

// maxContextItems bounds how many ranked context items a prompt carries.
const maxContextItems = 8

// responseContract tells the router how to structure its reply. The reasoner
// parses exactly these directives.
const responseContract = `Respond with one directive per line:
CONCLUSION: <your single best interpretation of the event>
CONFIDENCE: <0.0-1.0>
INSIGHT: <anything learned worth keeping> (repeatable)
QUESTION: <an open question you cannot answer from the given material> (repeatable)
RESOLVED: <an earlier open question this material answers> (repeatable)
UNCERTAINTY: <a residual doubt about the conclusion> (repeatable)
Free-form reasoning outside these directives is ignored.`

// Per-pass system instructions.
var passInstructions = map[models.PassType]string{
	models.PassInitialAnalysis: `You are the reasoning core of a personal assistant.
Read the event and form an initial interpretation: what is it, what does it ask of the user,
and what should happen to it (archive, task, reply, review).`,

	models.PassContextEnrichment: `You are refining an interpretation with retrieved context.
Weigh each context item by its relevance score. Revise the conclusion if the context
contradicts it; raise RESOLVED directives for open questions the context answers.`,

	models.PassDeepReasoning: `You are reasoning deeply about a non-obvious event.
Consider competing interpretations, the sender's likely intent, and the cost of acting
wrongly. Prefer a lower confidence over a wrong conclusion.`,

	models.PassValidation: `You are validating a proposed conclusion.
Attack it: list what would have to be true for it to be wrong. Lower the confidence if
the attack lands; otherwise confirm it.`,

	models.PassArbitration: `You are arbitrating between competing interpretations.
Pick exactly one winner, state it as the CONCLUSION, and justify the confidence.`,
}

// Builder assembles per-pass prompts. Stateless.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// BuildPassPrompt returns the system and user messages for one pass.
func (b *Builder) BuildPassPrompt(passType models.PassType, mem *memory.WorkingMemory) (string, string) {
	system := passInstructions[passType]
	if system == "" {
		system = passInstructions[models.PassDeepReasoning]
	}
	system += "\n\n" + responseContract

	var u strings.Builder
	writeEventSection(&u, &mem.Event)
	writeHypothesesSection(&u, mem)
	writeContextSection(&u, mem)
	writeQuestionsSection(&u, mem)

	return system, u.String()
}

func writeEventSection(u *strings.Builder, event *models.PerceivedEvent) {
	fmt.Fprintf(u, "## Event\n")
	fmt.Fprintf(u, "Source: %s\nType: %s\nUrgency: %s\nFrom: %s\nTitle: %s\n",
		event.Source, event.Type, event.Urgency, event.FromPerson, event.Title)
	if event.Content != "" {
		fmt.Fprintf(u, "\n%s\n", event.Content)
	}
	if len(event.Entities) > 0 {
		fmt.Fprintf(u, "\nEntities:\n")
		for _, ent := range event.Entities {
			fmt.Fprintf(u, "- %s: %s (%.2f)\n", ent.Type, ent.Value, ent.Confidence)
		}
	}
	if len(event.Keywords) > 0 {
		fmt.Fprintf(u, "Keywords: %s\n", strings.Join(event.Keywords, ", "))
	}
}

func writeHypothesesSection(u *strings.Builder, mem *memory.WorkingMemory) {
	hyps := mem.Hypotheses()
	if len(hyps) == 0 {
		return
	}
	fmt.Fprintf(u, "\n## Current interpretations\n")
	for _, h := range hyps {
		marker := " "
		if best := mem.Best(); best != nil && best.ID == h.ID {
			marker = "*"
		}
		fmt.Fprintf(u, "%s %s (confidence %.2f): %s\n", marker, h.ID, h.Confidence, h.Description)
	}
}

func writeContextSection(u *strings.Builder, mem *memory.WorkingMemory) {
	ranked := mem.RankedContext()
	if len(ranked) == 0 {
		return
	}
	if len(ranked) > maxContextItems {
		ranked = ranked[:maxContextItems]
	}
	fmt.Fprintf(u, "\n## Retrieved context\n")
	for _, item := range ranked {
		fmt.Fprintf(u, "- [%s/%s relevance %.2f] %s\n", item.Source, item.Type, item.RelevanceScore, item.Content)
	}
}

func writeQuestionsSection(u *strings.Builder, mem *memory.WorkingMemory) {
	questions := mem.OpenQuestions()
	uncertainties := mem.Uncertainties()
	if len(questions) == 0 && len(uncertainties) == 0 {
		return
	}
	fmt.Fprintf(u, "\n## Open questions\n")
	for _, q := range questions {
		fmt.Fprintf(u, "- %s\n", q)
	}
	for _, un := range uncertainties {
		fmt.Fprintf(u, "- (uncertainty) %s\n", un)
	}
}
