package scoring

import (
	"fmt"
	"strings"

	"github.com/pingbase/pingbase/internal/domain"
)

const scorerSystemPrompt = `You are a relevance scorer for a tool that helps founders/brands find posts where they can genuinely engage (share their product, offer advice). Your job is to surface ACTIONABLE signals only.

SCORING CRITERION: ACTIONABILITY
- Actionable means: specific ask + strong direct fit + low promotional risk.
- Non-actionable means: generic discussion, weak fit, no concrete ask, or likely self-promo.

Generic threads in the target's broad domain are usually PARTIAL fit unless the post explicitly asks for the kind of tooling, workflow help or recommendation the target provides.

ALWAYS SCORE LOW (<50) for:
- Daily/weekly discussion threads, sticky posts, "megathreads"
- Generic "what do you think?" or "thoughts on X?" with no specific question
- News articles, announcements, or commentary (not asking for help)
- AutoModerator or bot posts
- Posts where the target tangentially fits but wouldn't solve the poster's actual question

Use the target's name, description, keywords, and exclusions to infer what problem it solves.
Value-first rule: if a helpful reply would require mentioning the product to be useful, classify promoRisk as high and score lower.
Be strict: when in doubt, score lower.`

const validatorSystemPrompt = `You are a strict validator in a precision-first signal pipeline.
Your job is to reject borderline or weakly actionable candidates.
Approve only clearly actionable, value-first opportunities where advice can stand without a hard pitch.`

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

func writeTarget(b *strings.Builder, t domain.Target) {
	fmt.Fprintf(b, "Target name: %s\n", t.Name)
	fmt.Fprintf(b, "Target description: %s\n", t.Description)
	fmt.Fprintf(b, "Keywords: %s\n", listOrNone(t.Keywords))
	fmt.Fprintf(b, "Exclusions: %s\n", listOrNone(t.Exclusions))
	b.WriteString("\n")
}

// BuildScorerPrompt renders the Stage-1 user prompt.
func BuildScorerPrompt(t domain.Target, c domain.Candidate) string {
	var b strings.Builder
	writeTarget(&b, t)

	fmt.Fprintf(&b, "Content type: %s\n", c.Kind)
	fmt.Fprintf(&b, "Community: %s\n", c.Community)
	fmt.Fprintf(&b, "Author: %s\n", orNA(c.Author))
	fmt.Fprintf(&b, "Link flair: %s\n", orNA(c.LinkFlairText))
	fmt.Fprintf(&b, "Post hint: %s\n", orNA(c.PostHint))
	fmt.Fprintf(&b, "Domain: %s\n", orNA(c.Domain))
	fmt.Fprintf(&b, "Stickied: %t\n", c.Stickied)
	fmt.Fprintf(&b, "Locked: %t\n", c.Locked)
	fmt.Fprintf(&b, "Title: %s\n", orNA(c.Title))
	fmt.Fprintf(&b, "Excerpt: %s\n", c.ContentExcerpt)
	b.WriteString(`
Task: Score ACTIONABILITY 0-100.
A signal is actionable only when ALL are true:
1) The poster has a concrete, specific question or need.
2) The target is a strong direct fit for that need.
3) A value-first reply is possible without requiring a hard product pitch.

Field definitions:
- specificAsk: true only if there is a concrete ask/problem.
- fitGrade: strong only when the ask naturally maps to the target's tooling/workflow. Use partial for generic advice where a product mention would be optional.
- promoRisk: low when advice can stand on its own; high when the reply would likely read as promotional.
- confidence: confidence in this judgment (0-100).
- rejectionReason: short reason when not clearly actionable; otherwise null.
- evidenceQuote: short quote from the post that supports your decision; null if none.

Scoring rubric:
- 75-100: specific ask + strong fit + low promo risk.
- 50-74: some usefulness but weak fit or medium promo risk.
- 0-49: non-actionable, generic, weak fit, or likely promotional/spammy.

Be strict. Prefer lower scores for ambiguous cases.
Return only the structured output.`)
	return b.String()
}

// BuildValidatorPrompt renders the Stage-2 user prompt, including the
// guarded Stage-1 judgement.
func BuildValidatorPrompt(t domain.Target, c domain.Candidate, stage1 domain.ScoreResult) string {
	var b strings.Builder
	writeTarget(&b, t)

	fmt.Fprintf(&b, "Community: %s\n", c.Community)
	fmt.Fprintf(&b, "Title: %s\n", orNA(c.Title))
	fmt.Fprintf(&b, "Excerpt: %s\n", c.ContentExcerpt)
	b.WriteString("\nStage-1 result:\n")
	fmt.Fprintf(&b, "- score: %d\n", stage1.Score)
	fmt.Fprintf(&b, "- reason: %s\n", stage1.Reason)
	fmt.Fprintf(&b, "- specificAsk: %t\n", stage1.SpecificAsk)
	fmt.Fprintf(&b, "- fitGrade: %s\n", stage1.FitGrade)
	fmt.Fprintf(&b, "- promoRisk: %s\n", stage1.PromoRisk)
	fmt.Fprintf(&b, "- confidence: %d\n", stage1.Confidence)
	b.WriteString(`
Task: validate this candidate with a strict precision-first bar.
Reject when helpful advice would likely require overt promotion, fit is not truly strong, or ask is not specific enough.
Approve only when this is clearly a high-quality, value-first engagement opportunity.
Set brandMentionNatural to true only if the target could be mentioned in a helpful reply without it reading as a pitch.
Return only structured output.`)
	return b.String()
}
