package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pingbase/pingbase/internal/domain"
)

const insertSignal = `
	INSERT INTO signals (
		id, target_id, user_id, platform, type, url, external_id, community,
		title, content_excerpt, date_posted, score, reason, specific_ask,
		fit_grade, promo_risk, scorer_confidence, rejection_reason,
		evidence_quote, stage1_score, validator_decision, validator_confidence,
		validator_reason, score_version, status, raw_payload, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (target_id, platform, external_id) DO NOTHING`

// UpsertSignals inserts rows in one transaction, skipping any row whose
// (target_id, platform, external_id) already exists. It returns the number
// of rows actually inserted. On error nothing is written.
func (s *Store) UpsertSignals(ctx context.Context, rows []SignalRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning signal upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(insertSignal))
	if err != nil {
		return 0, fmt.Errorf("preparing signal upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	inserted := 0
	for _, r := range rows {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = r.CreatedAt
		}
		if r.Status == "" {
			r.Status = domain.StatusNew
		}
		payload := "{}"
		if len(r.RawPayload) > 0 {
			payload = string(r.RawPayload)
		}

		res, err := stmt.ExecContext(ctx,
			r.ID, r.TargetID, r.UserID, r.Platform, string(r.Kind), r.URL, r.ExternalID, r.Community,
			r.Title, r.ContentExcerpt, s.dialect.timeArg(r.DatePosted), r.Score, r.Reason, r.SpecificAsk,
			string(r.FitGrade), string(r.PromoRisk), r.ScorerConfidence, r.RejectionReason,
			r.EvidenceQuote, r.Stage1Score, decisionArg(r.ValidatorDecision), r.ValidatorConfidence,
			r.ValidatorReason, r.ScoreVersion, string(r.Status), payload,
			s.dialect.timeArg(r.CreatedAt), s.dialect.timeArg(r.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("upserting signal %s/%s: %w", r.TargetID, r.ExternalID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("upserting signal %s/%s: %w", r.TargetID, r.ExternalID, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing signal upsert: %w", err)
	}
	return inserted, nil
}

func decisionArg(d *domain.Decision) any {
	if d == nil {
		return nil
	}
	return string(*d)
}

// DeleteSignalsBefore removes every signal posted strictly before cutoff.
func (s *Store) DeleteSignalsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM signals WHERE date_posted < ?`), s.dialect.timeArg(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting signals before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return res.RowsAffected()
}

// Filter narrows owner reads to the rows a user may see. policy.Policy
// implements it.
type Filter interface {
	SQL() (clause string, args []any)
}

// OwnerView is a read-only view of one user's targets and signals.
type OwnerView struct {
	s      *Store
	userID string
	show   Filter
}

// ForOwner scopes reads to userID. Signals are further restricted by show.
func (s *Store) ForOwner(userID string, show Filter) *OwnerView {
	return &OwnerView{s: s, userID: userID, show: show}
}

// ListTargets returns the owner's targets, newest first.
func (v *OwnerView) ListTargets(ctx context.Context) ([]domain.Target, error) {
	return v.s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets WHERE user_id = ? ORDER BY created_at DESC, id ASC`, v.userID)
}

// GetTarget returns ErrNotFound for targets owned by someone else.
func (v *OwnerView) GetTarget(ctx context.Context, id string) (domain.Target, error) {
	t, err := v.s.GetTarget(ctx, id)
	if err != nil {
		return domain.Target{}, err
	}
	if t.UserID != v.userID {
		return domain.Target{}, ErrNotFound
	}
	return t, nil
}

// DefaultPageSize applies when a caller passes a page size below one.
const DefaultPageSize = 20

// ListSignals returns one page of the target's visible signals, most
// recently posted first.
func (v *OwnerView) ListSignals(ctx context.Context, targetID string, page, pageSize int) (SignalPage, error) {
	if _, err := v.GetTarget(ctx, targetID); err != nil {
		return SignalPage{}, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	where, args := v.where("target_id = ?", targetID)

	var total int
	if err := v.s.db.QueryRowContext(ctx, v.s.dialect.rebind(`SELECT COUNT(*) FROM signals WHERE `+where), args...).Scan(&total); err != nil {
		return SignalPage{}, fmt.Errorf("counting signals: %w", err)
	}

	query := `SELECT id, platform, type, community, title, content_excerpt, url, score, reason, status, date_posted
		FROM signals WHERE ` + where + ` ORDER BY date_posted DESC, id ASC LIMIT ? OFFSET ?`
	rows, err := v.s.db.QueryContext(ctx, v.s.dialect.rebind(query), append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return SignalPage{}, fmt.Errorf("listing signals: %w", err)
	}
	defer rows.Close()

	signals := []SignalSummary{}
	for rows.Next() {
		var sig SignalSummary
		var posted dbTime
		if err := rows.Scan(&sig.ID, &sig.Platform, &sig.Type, &sig.Community, &sig.Title, &sig.ContentExcerpt,
			&sig.URL, &sig.Score, &sig.Reason, &sig.Status, &posted); err != nil {
			return SignalPage{}, fmt.Errorf("scanning signal: %w", err)
		}
		sig.DatePosted = posted.Time
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return SignalPage{}, err
	}

	pageCount := (total + pageSize - 1) / pageSize
	if pageCount < 1 {
		pageCount = 1
	}
	return SignalPage{
		Signals:         signals,
		Total:           total,
		Page:            page,
		PageSize:        pageSize,
		PageCount:       pageCount,
		HasNextPage:     total > 0 && page < pageCount,
		HasPreviousPage: total > 0 && page > 1,
	}, nil
}

// SignalCounts tallies visible signals per target. Every requested id gets
// an entry; targets the owner does not have simply count zero.
func (v *OwnerView) SignalCounts(ctx context.Context, targetIDs []string) (map[string]SignalCount, error) {
	counts := make(map[string]SignalCount, len(targetIDs))
	if len(targetIDs) == 0 {
		return counts, nil
	}
	ids := make([]any, 0, len(targetIDs))
	for _, id := range targetIDs {
		if _, ok := counts[id]; ok {
			continue
		}
		counts[id] = SignalCount{}
		ids = append(ids, id)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	where, args := v.where("target_id IN ("+placeholders+")", ids...)
	rows, err := v.s.db.QueryContext(ctx, v.s.dialect.rebind(
		`SELECT target_id, status, COUNT(*) FROM signals WHERE `+where+` GROUP BY target_id, status`), args...)
	if err != nil {
		return nil, fmt.Errorf("counting signals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var status domain.Status
		var n int
		if err := rows.Scan(&id, &status, &n); err != nil {
			return nil, fmt.Errorf("scanning signal count: %w", err)
		}
		c := counts[id]
		c.Total += n
		if status == domain.StatusNew {
			c.New += n
		}
		counts[id] = c
	}
	return counts, rows.Err()
}

// where builds the owner and visibility predicate around cond. Args of cond
// come first after the user id, then the filter's.
func (v *OwnerView) where(cond string, condArgs ...any) (string, []any) {
	args := append([]any{v.userID}, condArgs...)
	clause := "user_id = ? AND " + cond
	if v.show != nil {
		showClause, showArgs := v.show.SQL()
		clause += " AND (" + showClause + ")"
		args = append(args, showArgs...)
	}
	return clause, args
}
