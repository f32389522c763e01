package prompt

import (
	"fmt"
	"strings"

	"github.com/grammar-coach/backend/internal/catalog"
)

// Builder renders the evaluator instructions for a learner sentence. It
// is a pure view over the catalog: no I/O, deterministic output.
type Builder struct {
	catalog *catalog.Catalog
}

func NewBuilder(c *catalog.Catalog) *Builder {
	return &Builder{catalog: c}
}

// Build renders the instruction text: the coach header, every catalog
// entry in order, an optional focus directive, and the learner sentence.
// A focusID that is not in the catalog is silently ignored.
func (b *Builder) Build(learnerText string, focusID int) string {
	minID, maxID := b.catalog.IDRange()

	var sb strings.Builder
	sb.WriteString("You are an ESL grammar coach. Analyze the learner's sentence (always assume it should be English).\n")
	sb.WriteString("Reply ONLY in valid JSON with:\n")
	sb.WriteString("- corrected: string\n")
	sb.WriteString("- explanation: string (simple explanation for learner)\n")
	sb.WriteString("- grammar_ok: boolean\n")
	sb.WriteString("- score: integer 0-100\n")
	fmt.Fprintf(&sb, "- matched_grammar_id: integer %d-%d\n", minID, maxID)
	sb.WriteString("- matched_grammar_label: string\n")
	sb.WriteString("\nGrammar Points:\n")

	for _, p := range b.catalog.Points() {
		fmt.Fprintf(&sb, "%d. %s - %s Example: %s\n", p.ID, p.Title, p.Rule, p.Example)
	}

	if point, ok := b.catalog.FindByID(focusID); ok {
		fmt.Fprintf(&sb, "\nFocus on grammar point #%d: %s\n", point.ID, point.Title)
	}

	sb.WriteString("\nLearner sentence (English only expected):\n")
	fmt.Fprintf(&sb, "\"\"\"%s\"\"\"\n", learnerText)

	return sb.String()
}
