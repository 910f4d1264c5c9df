package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pingbase/pingbase/internal/domain"
	"github.com/pingbase/pingbase/internal/runlock"
)

// TargetLister returns every target regardless of owner.
type TargetLister interface {
	ListAllTargets(ctx context.Context) ([]domain.Target, error)
}

// TargetIngester runs the pipeline for one target.
type TargetIngester interface {
	IngestTarget(ctx context.Context, t domain.Target) (Stats, error)
}

type TargetError struct {
	TargetID string `json:"target_id"`
	Error    string `json:"error"`
}

type RunResult struct {
	TargetsProcessed int           `json:"targets_processed"`
	Totals           Stats         `json:"totals"`
	Errors           []TargetError `json:"errors"`
	Duration         time.Duration `json:"duration"`
}

// Coordinator runs ingestion over all targets, one at a time.
type Coordinator struct {
	targets  TargetLister
	pipeline TargetIngester
	lock     runlock.Locker
	now      func() time.Time
	logger   *slog.Logger
}

func NewCoordinator(targets TargetLister, pipeline TargetIngester, lock runlock.Locker) *Coordinator {
	return &Coordinator{
		targets:  targets,
		pipeline: pipeline,
		lock:     lock,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// Run ingests every target. A failing target is recorded in the result and
// does not stop the others. Run returns runlock.ErrHeld if another run is
// in progress.
func (c *Coordinator) Run(ctx context.Context) (RunResult, error) {
	release, err := c.lock.Acquire(ctx)
	if err != nil {
		return RunResult{}, err
	}
	defer c.release(release)
	return c.run(ctx)
}

// Start takes the run lock and ingests in the background, calling done
// (if set) with the outcome. It fails fast with runlock.ErrHeld.
func (c *Coordinator) Start(ctx context.Context, done func(RunResult, error)) error {
	release, err := c.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	go func() {
		defer c.release(release)
		res, err := c.run(ctx)
		if done != nil {
			done(res, err)
		}
	}()
	return nil
}

func (c *Coordinator) release(release func() error) {
	if err := release(); err != nil {
		c.logger.Warn("releasing run lock failed", "error", err)
	}
}

func (c *Coordinator) run(ctx context.Context) (RunResult, error) {
	started := c.now()
	targets, err := c.targets.ListAllTargets(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("listing targets: %w", err)
	}

	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	c.logger.Info("ingestion run started", "target_count", len(targets), "target_ids", ids)

	res := RunResult{TargetsProcessed: len(targets), Errors: []TargetError{}}
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		stats, err := c.pipeline.IngestTarget(ctx, t)
		if err != nil {
			res.Errors = append(res.Errors, TargetError{TargetID: t.ID, Error: err.Error()})
			c.logger.Error("target ingestion failed", "target_id", t.ID, "error", err)
			continue
		}
		res.Totals.Add(stats)
	}
	res.Duration = c.now().Sub(started)

	tot := res.Totals
	c.logger.Info("ingestion run completed",
		"duration", res.Duration.Round(100*time.Millisecond).String(),
		"targets_processed", res.TargetsProcessed,
		"inserted", tot.Inserted,
		"errors", len(res.Errors),
		"fetched", tot.Fetched,
		"fresh", tot.Fresh,
		"prefilter_accepted", tot.PrefilterAccepted,
		"prefilter_rejected", tot.PrefilterRejected,
		"scored", tot.Scored,
		"validated", tot.Validated,
		"validator_rejected", tot.ValidatorRejected,
		"show_eligible", tot.ShowEligible,
		"score_failed", tot.ScoreFailed,
		"prefilter_reject_reasons", tot.PrefilterReasons,
	)
	return res, nil
}
