// Package retention deletes signals that have aged out.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SignalDeleter removes signals posted before a cutoff.
type SignalDeleter interface {
	DeleteSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Result struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

type Sweeper struct {
	store  SignalDeleter
	days   int
	now    func() time.Time
	logger *slog.Logger
}

// NewSweeper keeps signals posted within the last days days.
func NewSweeper(store SignalDeleter, days int) *Sweeper {
	return &Sweeper{store: store, days: days, now: time.Now, logger: slog.Default()}
}

func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.days)
	deleted, err := s.store.DeleteSignalsBefore(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("retention sweep: %w", err)
	}
	s.logger.Info("retention sweep completed", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	return Result{Deleted: deleted, Cutoff: cutoff}, nil
}
