package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/llm"
)

type mockCompleter struct {
	out  string
	err  error
	reqs []llm.Request
}

func (m *mockCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	m.reqs = append(m.reqs, req)
	return m.out, m.err
}

func strPtr(s string) *string { return &s }

func testTarget() domain.Target {
	return domain.Target{
		ID:          "target-1",
		Name:        "Folio",
		Description: "Net worth tracker that aggregates brokerage accounts.",
		Keywords:    []string{"net worth", "portfolio tracker"},
	}
}

func testCandidate() domain.Candidate {
	return domain.Candidate{
		Platform:       domain.PlatformReddit,
		Kind:           domain.KindPost,
		ExternalID:     "t3_abc",
		Community:      "personalfinance",
		Title:          strPtr("What do you use to track net worth?"),
		ContentExcerpt: "I have 4 brokerages and a 401k.",
		Author:         strPtr("saver42"),
	}
}

func TestScoreDecodes(t *testing.T) {
	m := &mockCompleter{out: `{"score": 81.6, "reason": "Clear ask", "specificAsk": true,
		"fitGrade": "strong", "promoRisk": "low", "confidence": 77,
		"rejectionReason": null, "evidenceQuote": "  What do you use?  "}`}
	s := NewScorer(m, "gpt-5-mini")

	got, err := s.Score(context.Background(), testTarget(), testCandidate())
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got.Score != 82 || !got.SpecificAsk || got.FitGrade != domain.FitStrong || got.PromoRisk != domain.PromoLow || got.Confidence != 77 {
		t.Errorf("got %+v", got)
	}
	if got.RejectionReason != nil {
		t.Errorf("RejectionReason = %v, want nil", got.RejectionReason)
	}
	if got.EvidenceQuote == nil || *got.EvidenceQuote != "What do you use?" {
		t.Errorf("EvidenceQuote = %v", got.EvidenceQuote)
	}

	req := m.reqs[0]
	if req.Model != "gpt-5-mini" || req.Schema.Name != "SignalRelevance" {
		t.Errorf("request model/schema = %q/%q", req.Model, req.Schema.Name)
	}
	if !strings.Contains(req.System, "ACTIONABILITY") {
		t.Errorf("system prompt missing rubric")
	}
	for _, want := range []string{"Target name: Folio", "Keywords: net worth, portfolio tracker", "Exclusions: None", "Author: saver42", "Post hint: N/A", "Stickied: false"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestScoreRejectsNonConformingOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"not json", `score: 90`},
		{"bad enum", `{"score":90,"reason":"r","specificAsk":true,"fitGrade":"great","promoRisk":"low","confidence":80,"rejectionReason":null,"evidenceQuote":null}`},
		{"missing field", `{"score":90,"reason":"r","fitGrade":"strong","promoRisk":"low","confidence":80,"rejectionReason":null,"evidenceQuote":null}`},
		{"empty reason", `{"score":90,"reason":" ","specificAsk":true,"fitGrade":"strong","promoRisk":"low","confidence":80,"rejectionReason":null,"evidenceQuote":null}`},
		{"confidence range", `{"score":90,"reason":"r","specificAsk":true,"fitGrade":"strong","promoRisk":"low","confidence":180,"rejectionReason":null,"evidenceQuote":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(&mockCompleter{out: tt.out}, "m")
			_, err := s.Score(context.Background(), testTarget(), testCandidate())
			if !errors.Is(err, llm.ErrSchema) {
				t.Errorf("err = %v, want ErrSchema", err)
			}
		})
	}
}

func TestScoreClampsOutOfRangeScore(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"1e20", 100},
		{"-1e20", 0},
		{"140", 100},
		{"-3.2", 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			m := &mockCompleter{out: `{"score":` + tt.raw + `,"reason":"r","specificAsk":true,"fitGrade":"strong","promoRisk":"low","confidence":80,"rejectionReason":null,"evidenceQuote":null}`}
			got, err := NewScorer(m, "m").Score(context.Background(), testTarget(), testCandidate())
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if got.Score != tt.want {
				t.Errorf("Score = %d, want %d", got.Score, tt.want)
			}
			if guarded := ApplyScoreGuards(got); guarded.Score != tt.want {
				t.Errorf("guarded = %d, want %d", guarded.Score, tt.want)
			}
		})
	}
}

func TestScorePropagatesTransportError(t *testing.T) {
	s := NewScorer(&mockCompleter{err: context.DeadlineExceeded}, "m")
	_, err := s.Score(context.Background(), testTarget(), testCandidate())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "t3_abc") {
		t.Errorf("err %q should name the item", err)
	}
}

func TestValidateDecodes(t *testing.T) {
	m := &mockCompleter{out: `{"decision":"approve","confidence":92,"reason":"Value-first reply possible.","failureReason":"","brandMentionNatural":true}`}
	v := NewValidator(m, "gpt-5")
	stage1 := domain.ScoreResult{Score: 90, Reason: "Clear ask", SpecificAsk: true, FitGrade: domain.FitStrong, PromoRisk: domain.PromoLow, Confidence: 80}

	got, err := v.Validate(context.Background(), testTarget(), testCandidate(), stage1)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Decision != domain.DecisionApprove || got.Confidence != 92 || !got.BrandMentionNatural {
		t.Errorf("got %+v", got)
	}
	if got.FailureReason != nil {
		t.Errorf("FailureReason = %v, want nil for blank", got.FailureReason)
	}

	req := m.reqs[0]
	if req.Model != "gpt-5" || req.Schema.Name != "SignalValidation" {
		t.Errorf("request model/schema = %q/%q", req.Model, req.Schema.Name)
	}
	if _, ok := req.Schema.Schema.Properties["brandMentionNatural"]; !ok {
		t.Error("validation schema lacks brandMentionNatural")
	}
	for _, want := range []string{"Stage-1 result:", "- score: 90", "- fitGrade: strong"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestValidateRejectsMissingBrandFlag(t *testing.T) {
	v := NewValidator(&mockCompleter{out: `{"decision":"approve","confidence":92,"reason":"ok","failureReason":null}`}, "m")
	_, err := v.Validate(context.Background(), testTarget(), testCandidate(), domain.ScoreResult{})
	if !errors.Is(err, llm.ErrSchema) {
		t.Errorf("err = %v, want ErrSchema", err)
	}
}

func TestSchemasRequireEveryProperty(t *testing.T) {
	for _, s := range []llm.NamedSchema{relevanceSchema, validationSchema} {
		if len(s.Schema.Required) != len(s.Schema.Properties) {
			t.Errorf("%s: %d required vs %d properties", s.Name, len(s.Schema.Required), len(s.Schema.Properties))
		}
		for _, k := range s.Schema.Required {
			if _, ok := s.Schema.Properties[k]; !ok {
				t.Errorf("%s: required %q has no property", s.Name, k)
			}
		}
	}
}
