// Package policy defines which scored signals are shown to users. One rule
// list drives both the in-memory check used during ingestion and the SQL
// filter used by read paths.
package policy

import (
	"fmt"
	"strings"

	"github.com/pingbase/pingbase/internal/config"
	"github.com/pingbase/pingbase/internal/domain"
)

// Field names a signal attribute together with its store column.
type Field string

const (
	FieldScore               Field = "score"
	FieldSpecificAsk         Field = "specific_ask"
	FieldFitGrade            Field = "fit_grade"
	FieldPromoRisk           Field = "promo_risk"
	FieldValidatorDecision   Field = "validator_decision"
	FieldValidatorConfidence Field = "validator_confidence"
)

type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
)

// Rule compares one field against a fixed value. Gte rules take int
// values; Eq rules take bool or string values.
type Rule struct {
	Field Field
	Op    Op
	Value any
}

// Policy is satisfied only when every rule holds.
type Policy struct {
	Rules []Rule
}

// ShowPolicy is the strict display bar.
func ShowPolicy(cfg config.SignalsConfig) Policy {
	return Policy{Rules: []Rule{
		{FieldScore, OpGte, cfg.MinScoreToShow},
		{FieldSpecificAsk, OpEq, true},
		{FieldFitGrade, OpEq, string(domain.FitStrong)},
		{FieldPromoRisk, OpEq, string(domain.PromoLow)},
		{FieldValidatorDecision, OpEq, string(domain.DecisionApprove)},
		{FieldValidatorConfidence, OpGte, cfg.ValidatorMinConfidenceToShow},
	}}
}

// Fields are the inputs of the policy. Nil validator fields mean Stage-2
// never ran.
type Fields struct {
	Score               int
	SpecificAsk         bool
	FitGrade            domain.FitGrade
	PromoRisk           domain.PromoRisk
	ValidatorDecision   *domain.Decision
	ValidatorConfidence *int
}

// FieldsOf maps a scored signal, substituting the most conservative values
// when a stage did not run.
func FieldsOf(s domain.ScoredSignal) Fields {
	f := Fields{
		Score:     s.Score,
		FitGrade:  domain.FitNone,
		PromoRisk: domain.PromoHigh,
	}
	if s.Stage1 != nil {
		f.SpecificAsk = s.Stage1.SpecificAsk
		f.FitGrade = s.Stage1.FitGrade
		f.PromoRisk = s.Stage1.PromoRisk
	}
	if s.Validator != nil {
		d := s.Validator.Decision
		c := s.Validator.Confidence
		f.ValidatorDecision = &d
		f.ValidatorConfidence = &c
	}
	return f
}

// nullable columns compare as NULL for Eq and as 0 for Gte on both sides.
func (f Fields) value(field Field) (any, bool) {
	switch field {
	case FieldScore:
		return f.Score, true
	case FieldSpecificAsk:
		return f.SpecificAsk, true
	case FieldFitGrade:
		return string(f.FitGrade), true
	case FieldPromoRisk:
		return string(f.PromoRisk), true
	case FieldValidatorDecision:
		if f.ValidatorDecision == nil {
			return nil, false
		}
		return string(*f.ValidatorDecision), true
	case FieldValidatorConfidence:
		if f.ValidatorConfidence == nil {
			return 0, true
		}
		return *f.ValidatorConfidence, true
	}
	return nil, false
}

func nullable(field Field) bool {
	return field == FieldValidatorDecision || field == FieldValidatorConfidence
}

// Eligible evaluates the policy in memory.
func (p Policy) Eligible(f Fields) bool {
	for _, r := range p.Rules {
		v, ok := f.value(r.Field)
		if !ok {
			return false
		}
		switch r.Op {
		case OpEq:
			if v != r.Value {
				return false
			}
		case OpGte:
			n, _ := v.(int)
			threshold, _ := r.Value.(int)
			if n < threshold {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// SQL compiles the policy into a WHERE fragment with "?" placeholders and
// its arguments, in rule order.
func (p Policy) SQL() (string, []any) {
	clauses := make([]string, 0, len(p.Rules))
	args := make([]any, 0, len(p.Rules))
	for _, r := range p.Rules {
		col := string(r.Field)
		if r.Op == OpGte && nullable(r.Field) {
			col = fmt.Sprintf("COALESCE(%s, 0)", col)
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", col, r.Op))
		args = append(args, r.Value)
	}
	if len(clauses) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(clauses, " AND "), args
}
