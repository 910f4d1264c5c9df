// Package ingestion turns a target into stored, scored signals: fetch,
// freshness, prefilter, two-stage scoring, persistence and the scan cursor.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pingbase/pingbase/internal/config"
	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/policy"
	"github.com/pingbase/pingbase/internal/prefilter"
)

// Fetcher returns normalized, deduplicated candidates for a target.
type Fetcher interface {
	FetchCandidates(ctx context.Context, t domain.Target) ([]domain.Candidate, error)
}

// SignalStore is what a pipeline needs from the service store.
type SignalStore interface {
	SignalWriter
	AdvanceLastScanned(ctx context.Context, id string, at time.Time) error
}

// Stats are the per-target counters. Coordinator sums them across targets.
type Stats struct {
	Inserted          int                      `json:"inserted"`
	Fetched           int                      `json:"fetched"`
	Fresh             int                      `json:"fresh"`
	PrefilterAccepted int                      `json:"prefilter_accepted"`
	PrefilterRejected int                      `json:"prefilter_rejected"`
	PrefilterReasons  map[prefilter.Reason]int `json:"prefilter_reject_reasons"`
	Scored            int                      `json:"scored"`
	Validated         int                      `json:"validated"`
	ValidatorRejected int                      `json:"validator_rejected"`
	ShowEligible      int                      `json:"show_eligible"`
	ScoreFailed       int                      `json:"score_failed"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Inserted += o.Inserted
	s.Fetched += o.Fetched
	s.Fresh += o.Fresh
	s.PrefilterAccepted += o.PrefilterAccepted
	s.PrefilterRejected += o.PrefilterRejected
	s.Scored += o.Scored
	s.Validated += o.Validated
	s.ValidatorRejected += o.ValidatorRejected
	s.ShowEligible += o.ShowEligible
	s.ScoreFailed += o.ScoreFailed
	if len(o.PrefilterReasons) > 0 && s.PrefilterReasons == nil {
		s.PrefilterReasons = make(map[prefilter.Reason]int, len(o.PrefilterReasons))
	}
	for r, n := range o.PrefilterReasons {
		s.PrefilterReasons[r] += n
	}
}

type Pipeline struct {
	fetcher  Fetcher
	batch    *BatchRunner
	store    SignalStore
	show     policy.Policy
	lookback time.Duration
	minStore int
	now      func() time.Time
	logger   *slog.Logger
}

func NewPipeline(fetcher Fetcher, scorer StageScorer, validator StageValidator, store SignalStore, cfg config.Config) *Pipeline {
	return &Pipeline{
		fetcher:  fetcher,
		batch:    NewBatchRunner(scorer, validator, cfg.Ingestion),
		store:    store,
		show:     policy.ShowPolicy(cfg.Signals),
		lookback: cfg.Ingestion.InitialLookback(),
		minStore: cfg.Ingestion.MinScoreToStore,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// Evaluate fetches and scores a target without writing anything.
func (p *Pipeline) Evaluate(ctx context.Context, t domain.Target) ([]domain.ScoredSignal, Stats, error) {
	scored, stats, _, err := p.evaluate(ctx, t)
	return scored, stats, err
}

// evaluate also reports the posting time of the oldest candidate whose
// scoring failed, or the zero time when none did.
func (p *Pipeline) evaluate(ctx context.Context, t domain.Target) ([]domain.ScoredSignal, Stats, time.Time, error) {
	var stats Stats
	var oldestFailed time.Time

	cands, err := p.fetcher.FetchCandidates(ctx, t)
	if err != nil {
		return nil, stats, oldestFailed, fmt.Errorf("fetching candidates for %s: %w", t.ID, err)
	}
	stats.Fetched = len(cands)

	fresh := FilterFresh(cands, Cutoff(t, p.lookback))
	stats.Fresh = len(fresh)

	filtered := prefilter.Apply(t, fresh)
	stats.PrefilterAccepted = len(filtered.Accepted)
	stats.PrefilterRejected = len(filtered.Rejected)
	stats.PrefilterReasons = filtered.Reasons

	results, err := p.batch.Run(ctx, t, filtered.Accepted)
	if err != nil {
		return nil, stats, oldestFailed, fmt.Errorf("scoring candidates for %s: %w", t.ID, err)
	}

	scored := make([]domain.ScoredSignal, 0, len(results))
	var firstErr error
	for i, r := range results {
		if r.Err != nil {
			c := filtered.Accepted[i]
			stats.ScoreFailed++
			if firstErr == nil {
				firstErr = r.Err
			}
			if oldestFailed.IsZero() || c.DatePosted.Before(oldestFailed) {
				oldestFailed = c.DatePosted
			}
			p.logger.Warn("candidate scoring failed", "target_id", t.ID, "external_id", c.ExternalID, "error", r.Err)
			continue
		}
		sig := r.Signal
		stats.Scored++
		if sig.Validator != nil {
			stats.Validated++
			if sig.Validator.Decision == domain.DecisionReject {
				stats.ValidatorRejected++
			}
		}
		if p.show.Eligible(policy.FieldsOf(sig)) {
			stats.ShowEligible++
		}
		scored = append(scored, sig)
	}

	if len(results) > 0 && stats.ScoreFailed == len(results) {
		return nil, stats, oldestFailed, fmt.Errorf("scoring candidates for %s: all %d failed: %w", t.ID, len(results), firstErr)
	}
	return scored, stats, oldestFailed, nil
}

// IngestTarget runs the full pipeline for one target. The scan cursor is
// advanced to the second the scan started, and only after the signals were
// stored. When some candidates failed scoring the cursor stops just before
// the oldest of them, so the next run fetches them again; rows that were
// already stored keep their first write.
func (p *Pipeline) IngestTarget(ctx context.Context, t domain.Target) (Stats, error) {
	scanStarted := p.now().UTC().Truncate(time.Second)

	scored, stats, oldestFailed, err := p.evaluate(ctx, t)
	if err != nil {
		return stats, err
	}

	inserted, err := Persist(ctx, p.store, t, scored, p.minStore)
	if err != nil {
		return stats, fmt.Errorf("persisting signals for %s: %w", t.ID, err)
	}
	stats.Inserted = inserted

	cursor := scanStarted
	if !oldestFailed.IsZero() {
		if retry := oldestFailed.Add(-time.Second); retry.Before(cursor) {
			cursor = retry
		}
	}
	if err := p.store.AdvanceLastScanned(ctx, t.ID, cursor); err != nil {
		return stats, fmt.Errorf("advancing scan cursor for %s: %w", t.ID, err)
	}
	return stats, nil
}
