package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/llm"
)

// Validator produces the Stage-2 approve/reject judgement.
type Validator struct {
	llm   llm.Completer
	model string
}

func NewValidator(c llm.Completer, model string) *Validator {
	return &Validator{llm: c, model: model}
}

type validationWire struct {
	Decision            *string  `json:"decision"`
	Confidence          *float64 `json:"confidence"`
	Reason              *string  `json:"reason"`
	FailureReason       *string  `json:"failureReason"`
	BrandMentionNatural *bool    `json:"brandMentionNatural"`
}

// Validate returns the raw (unguarded) Stage-2 result for a candidate that
// already cleared Stage-1.
func (v *Validator) Validate(ctx context.Context, t domain.Target, c domain.Candidate, stage1 domain.ScoreResult) (domain.ValidationResult, error) {
	raw, err := v.llm.Complete(ctx, llm.Request{
		Model:  v.model,
		System: validatorSystemPrompt,
		Prompt: BuildValidatorPrompt(t, c, stage1),
		Schema: validationSchema,
	})
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("validating %s: %w", c.ExternalID, err)
	}

	var w validationWire
	if err := llm.Decode(raw, &w); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("validating %s: %w", c.ExternalID, err)
	}
	switch {
	case w.Decision == nil || !domain.Decision(*w.Decision).Valid():
		err = schemaErr("invalid decision")
	case w.Confidence == nil || *w.Confidence < 0 || *w.Confidence > 100:
		err = schemaErr("confidence out of range")
	case w.Reason == nil || strings.TrimSpace(*w.Reason) == "":
		err = schemaErr("missing reason")
	case w.BrandMentionNatural == nil:
		err = schemaErr("missing brandMentionNatural")
	}
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("validating %s: %w", c.ExternalID, err)
	}

	return domain.ValidationResult{
		Decision:            domain.Decision(*w.Decision),
		Confidence:          int(math.Round(*w.Confidence)),
		Reason:              *w.Reason,
		FailureReason:       trimmedOrNil(w.FailureReason),
		BrandMentionNatural: *w.BrandMentionNatural,
	}, nil
}
