// Package scoring runs the two model-backed judgements of the funnel and
// the deterministic guards applied to their output.
package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/llm"
)

// Scorer produces the Stage-1 actionability judgement.
type Scorer struct {
	llm   llm.Completer
	model string
}

func NewScorer(c llm.Completer, model string) *Scorer {
	return &Scorer{llm: c, model: model}
}

type scoreWire struct {
	Score           *float64 `json:"score"`
	Reason          *string  `json:"reason"`
	SpecificAsk     *bool    `json:"specificAsk"`
	FitGrade        *string  `json:"fitGrade"`
	PromoRisk       *string  `json:"promoRisk"`
	Confidence      *float64 `json:"confidence"`
	RejectionReason *string  `json:"rejectionReason"`
	EvidenceQuote   *string  `json:"evidenceQuote"`
}

// Score returns the raw (unguarded) Stage-1 result. Output that does not
// match the schema wraps llm.ErrSchema.
func (s *Scorer) Score(ctx context.Context, t domain.Target, c domain.Candidate) (domain.ScoreResult, error) {
	raw, err := s.llm.Complete(ctx, llm.Request{
		Model:  s.model,
		System: scorerSystemPrompt,
		Prompt: BuildScorerPrompt(t, c),
		Schema: relevanceSchema,
	})
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("scoring %s: %w", c.ExternalID, err)
	}

	var w scoreWire
	if err := llm.Decode(raw, &w); err != nil {
		return domain.ScoreResult{}, fmt.Errorf("scoring %s: %w", c.ExternalID, err)
	}
	r, err := w.result()
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("scoring %s: %w", c.ExternalID, err)
	}
	return r, nil
}

func (w scoreWire) result() (domain.ScoreResult, error) {
	switch {
	case w.Score == nil:
		return domain.ScoreResult{}, schemaErr("missing score")
	case w.Reason == nil || strings.TrimSpace(*w.Reason) == "":
		return domain.ScoreResult{}, schemaErr("missing reason")
	case w.SpecificAsk == nil:
		return domain.ScoreResult{}, schemaErr("missing specificAsk")
	case w.FitGrade == nil || !domain.FitGrade(*w.FitGrade).Valid():
		return domain.ScoreResult{}, schemaErr("invalid fitGrade")
	case w.PromoRisk == nil || !domain.PromoRisk(*w.PromoRisk).Valid():
		return domain.ScoreResult{}, schemaErr("invalid promoRisk")
	case w.Confidence == nil || *w.Confidence < 0 || *w.Confidence > 100:
		return domain.ScoreResult{}, schemaErr("confidence out of range")
	}
	return domain.ScoreResult{
		Score:           int(math.Round(math.Max(0, math.Min(100, *w.Score)))),
		Reason:          *w.Reason,
		SpecificAsk:     *w.SpecificAsk,
		FitGrade:        domain.FitGrade(*w.FitGrade),
		PromoRisk:       domain.PromoRisk(*w.PromoRisk),
		Confidence:      int(math.Round(*w.Confidence)),
		RejectionReason: trimmedOrNil(w.RejectionReason),
		EvidenceQuote:   trimmedOrNil(w.EvidenceQuote),
	}, nil
}

func schemaErr(msg string) error {
	return fmt.Errorf("%w: %s", llm.ErrSchema, msg)
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
