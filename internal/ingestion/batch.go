package ingestion

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pingbase/pingbase/internal/config"
	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/scoring"
)

// StageScorer produces the raw Stage-1 judgement for a candidate.
type StageScorer interface {
	Score(ctx context.Context, t domain.Target, c domain.Candidate) (domain.ScoreResult, error)
}

// StageValidator produces the raw Stage-2 judgement for a candidate.
type StageValidator interface {
	Validate(ctx context.Context, t domain.Target, c domain.Candidate, stage1 domain.ScoreResult) (domain.ValidationResult, error)
}

// ItemResult is the outcome for one candidate. Exactly one of Signal or
// Err is meaningful.
type ItemResult struct {
	Signal domain.ScoredSignal
	Err    error
}

// BatchRunner scores candidates in sequential chunks whose members run
// concurrently.
type BatchRunner struct {
	scorer    StageScorer
	validator StageValidator
	chunkSize int
	minVerify int
	rejectMax int
}

func NewBatchRunner(scorer StageScorer, validator StageValidator, cfg config.IngestionConfig) *BatchRunner {
	chunk := cfg.LLMConcurrency
	if chunk < 1 {
		chunk = 1
	}
	return &BatchRunner{
		scorer:    scorer,
		validator: validator,
		chunkSize: chunk,
		minVerify: cfg.MinScoreForValidation,
		rejectMax: cfg.ValidatorRejectMaxScore,
	}
}

// Run returns one result per candidate in input order. A failed item does
// not affect its siblings; only cancellation of ctx aborts the batch.
func (b *BatchRunner) Run(ctx context.Context, t domain.Target, cands []domain.Candidate) ([]ItemResult, error) {
	results := make([]ItemResult, len(cands))

	for start := 0; start < len(cands); start += b.chunkSize {
		end := min(start+b.chunkSize, len(cands))

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(end - start)
		for i := start; i < end; i++ {
			g.Go(func() error {
				sig, err := b.scoreOne(gCtx, t, cands[i])
				if err != nil && ctx.Err() != nil {
					return ctx.Err()
				}
				results[i] = ItemResult{Signal: sig, Err: err}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (b *BatchRunner) scoreOne(ctx context.Context, t domain.Target, c domain.Candidate) (domain.ScoredSignal, error) {
	raw, err := b.scorer.Score(ctx, t, c)
	if err != nil {
		return domain.ScoredSignal{}, err
	}
	stage1 := scoring.ApplyScoreGuards(raw)

	sig := domain.ScoredSignal{
		Candidate: c,
		Score:     stage1.Score,
		Reason:    stage1.Reason,
		Stage1:    &stage1,
	}
	if stage1.Score < b.minVerify {
		return sig, nil
	}

	rawVerdict, err := b.validator.Validate(ctx, t, c, stage1)
	if err != nil {
		return domain.ScoredSignal{}, fmt.Errorf("stage-2 for %s: %w", c.ExternalID, err)
	}
	verdict := scoring.ApplyValidatorGuards(rawVerdict)
	sig.Validator = &verdict

	if verdict.Decision == domain.DecisionReject {
		sig.Score = min(sig.Score, b.rejectMax)
		sig.Reason = sig.Reason + " Validator: " + verdict.Reason
	}
	return sig, nil
}
