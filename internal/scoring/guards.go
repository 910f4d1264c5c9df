package scoring

import "github.com/pingbase/pingbase/internal/domain"

const (
	minScore = 0
	maxScore = 100

	capNoSpecificAsk = 45
	capFitNotStrong  = 69
	capPromoRiskHigh = 59
)

// BrandMentionNotNatural is the failure code set when the validator guard
// forces a rejection and the model gave no code of its own.
const BrandMentionNotNatural = "brand_mention_not_natural"

func clampScore(score int) int {
	return max(minScore, min(maxScore, score))
}

// ApplyScoreGuards clamps the model's score to ceilings implied by its own
// sub-fields. When several caps apply the lowest wins.
func ApplyScoreGuards(r domain.ScoreResult) domain.ScoreResult {
	score := clampScore(r.Score)
	if !r.SpecificAsk {
		score = min(score, capNoSpecificAsk)
	}
	if r.FitGrade != domain.FitStrong {
		score = min(score, capFitNotStrong)
	}
	if r.PromoRisk == domain.PromoHigh {
		score = min(score, capPromoRiskHigh)
	}
	r.Score = score
	return r
}

// ApplyValidatorGuards rejects any result whose brand mention would not
// read naturally, whatever the model decided.
func ApplyValidatorGuards(v domain.ValidationResult) domain.ValidationResult {
	if v.BrandMentionNatural {
		return v
	}
	if v.FailureReason == nil {
		code := BrandMentionNotNatural
		v.FailureReason = &code
	}
	if v.Decision == domain.DecisionApprove {
		v.Reason += " Brand mention is likely forced for this post."
	}
	v.Decision = domain.DecisionReject
	return v
}
