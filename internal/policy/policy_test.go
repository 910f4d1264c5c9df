package policy

import (
	"strings"
	"testing"

	"github.com/pingbase/pingbase/internal/config"
	"github.com/pingbase/pingbase/internal/domain"
)

func decisionPtr(d domain.Decision) *domain.Decision { return &d }
func intPtr(i int) *int { return &i }

func eligibleFields() Fields {
	return Fields{
		Score:               90,
		SpecificAsk:         true,
		FitGrade:            domain.FitStrong,
		PromoRisk:           domain.PromoLow,
		ValidatorDecision:   decisionPtr(domain.DecisionApprove),
		ValidatorConfidence: intPtr(92),
	}
}

func TestEligible(t *testing.T) {
	p := ShowPolicy(config.Default().Signals)

	tests := []struct {
		name string
		mod  func(*Fields)
		want bool
	}{
		{"all rules met", nil, true},
		{"score at threshold", func(f *Fields) { f.Score = 85 }, true},
		{"score below threshold", func(f *Fields) { f.Score = 84 }, false},
		{"no specific ask", func(f *Fields) { f.SpecificAsk = false }, false},
		{"partial fit", func(f *Fields) { f.FitGrade = domain.FitPartial }, false},
		{"medium promo risk", func(f *Fields) { f.PromoRisk = domain.PromoMedium }, false},
		{"validator rejected", func(f *Fields) { f.ValidatorDecision = decisionPtr(domain.DecisionReject) }, false},
		{"validator never ran", func(f *Fields) { f.ValidatorDecision = nil; f.ValidatorConfidence = nil }, false},
		{"confidence at threshold", func(f *Fields) { f.ValidatorConfidence = intPtr(90) }, true},
		{"confidence below threshold", func(f *Fields) { f.ValidatorConfidence = intPtr(89) }, false},
		{"confidence missing", func(f *Fields) { f.ValidatorConfidence = nil }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := eligibleFields()
			if tt.mod != nil {
				tt.mod(&f)
			}
			if got := p.Eligible(f); got != tt.want {
				t.Errorf("Eligible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThresholdsFollowConfig(t *testing.T) {
	cfg := config.Default().Signals
	cfg.MinScoreToShow = 95
	cfg.ValidatorMinConfidenceToShow = 50
	p := ShowPolicy(cfg)

	f := eligibleFields()
	if p.Eligible(f) {
		t.Error("score 90 eligible under min 95")
	}
	f.Score = 96
	f.ValidatorConfidence = intPtr(55)
	if !p.Eligible(f) {
		t.Error("score 96 / confidence 55 not eligible")
	}
}

func TestFieldsOfDefaults(t *testing.T) {
	f := FieldsOf(domain.ScoredSignal{Score: 99})
	if f.SpecificAsk || f.FitGrade != domain.FitNone || f.PromoRisk != domain.PromoHigh {
		t.Errorf("defaults = %+v", f)
	}
	if f.ValidatorDecision != nil || f.ValidatorConfidence != nil {
		t.Errorf("validator defaults = %+v", f)
	}

	s := domain.ScoredSignal{
		Score:     90,
		Stage1:    &domain.ScoreResult{SpecificAsk: true, FitGrade: domain.FitStrong, PromoRisk: domain.PromoLow},
		Validator: &domain.ValidationResult{Decision: domain.DecisionApprove, Confidence: 92},
	}
	if !ShowPolicy(config.Default().Signals).Eligible(FieldsOf(s)) {
		t.Error("fully approved signal not eligible")
	}
}

func TestSQL(t *testing.T) {
	clause, args := ShowPolicy(config.Default().Signals).SQL()

	want := "score >= ? AND specific_ask = ? AND fit_grade = ? AND promo_risk = ? AND validator_decision = ? AND COALESCE(validator_confidence, 0) >= ?"
	if clause != want {
		t.Errorf("clause =\n%s\nwant\n%s", clause, want)
	}
	if strings.Count(clause, "?") != len(args) {
		t.Fatalf("%d placeholders, %d args", strings.Count(clause, "?"), len(args))
	}
	wantArgs := []any{85, true, "strong", "low", "approve", 90}
	for i := range wantArgs {
		if args[i] != wantArgs[i] {
			t.Errorf("args[%d] = %v, want %v", i, args[i], wantArgs[i])
		}
	}
}

func TestEmptyPolicy(t *testing.T) {
	var p Policy
	if !p.Eligible(Fields{}) {
		t.Error("empty policy should accept everything")
	}
	if clause, args := p.SQL(); clause != "1 = 1" || args != nil {
		t.Errorf("SQL() = %q, %v", clause, args)
	}
}
