package ingestion

import (
	"time"

	"github.com/pingbase/pingbase/internal/domain"
)

// Cutoff is the posting time a candidate must beat to be considered new.
// A target that has never been scanned looks back from its creation time.
func Cutoff(t domain.Target, lookback time.Duration) time.Time {
	if t.LastScannedAt != nil {
		return *t.LastScannedAt
	}
	return t.CreatedAt.Add(-lookback)
}

// FilterFresh keeps candidates posted strictly after cutoff.
func FilterFresh(cands []domain.Candidate, cutoff time.Time) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.DatePosted.After(cutoff) {
			out = append(out, c)
		}
	}
	return out
}
