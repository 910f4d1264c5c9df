package ingestion

import (
	"context"

	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/storage"
)

// SignalWriter is the write half of the service store used by persistence.
type SignalWriter interface {
	UpsertSignals(ctx context.Context, rows []storage.SignalRow) (int, error)
}

// Persist stores the signals scoring at least minScore and returns how
// many rows were new. Rows already present are left untouched.
func Persist(ctx context.Context, w SignalWriter, t domain.Target, scored []domain.ScoredSignal, minScore int) (int, error) {
	rows := make([]storage.SignalRow, 0, len(scored))
	for _, s := range scored {
		if s.Score >= minScore {
			rows = append(rows, RowFromSignal(t, s))
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return w.UpsertSignals(ctx, rows)
}

// RowFromSignal maps a scored signal to its stored form. A missing stage
// stores the same defaults the show policy assumes.
func RowFromSignal(t domain.Target, s domain.ScoredSignal) storage.SignalRow {
	row := storage.SignalRow{
		TargetID:       t.ID,
		UserID:         t.UserID,
		Platform:       s.Platform,
		Kind:           s.Kind,
		URL:            s.URL,
		ExternalID:     s.ExternalID,
		Community:      s.Community,
		Title:          s.Title,
		ContentExcerpt: s.ContentExcerpt,
		DatePosted:     s.DatePosted,
		Score:          s.Score,
		Reason:         s.Reason,
		FitGrade:       domain.FitNone,
		PromoRisk:      domain.PromoHigh,
		ScoreVersion:   domain.ScoreVersion,
		Status:         domain.StatusNew,
		RawPayload:     s.RawPayload,
	}
	if st := s.Stage1; st != nil {
		score := st.Score
		row.SpecificAsk = st.SpecificAsk
		row.FitGrade = st.FitGrade
		row.PromoRisk = st.PromoRisk
		row.ScorerConfidence = st.Confidence
		row.RejectionReason = st.RejectionReason
		row.EvidenceQuote = st.EvidenceQuote
		row.Stage1Score = &score
	}
	if v := s.Validator; v != nil {
		decision, confidence, reason := v.Decision, v.Confidence, v.Reason
		row.ValidatorDecision = &decision
		row.ValidatorConfidence = &confidence
		row.ValidatorReason = &reason
	}
	return row
}
