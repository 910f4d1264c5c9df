package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pingbase/pingbase/internal/domain"
)

const targetColumns = `id, user_id, name, description, keywords, exclusions, subreddits, created_at, last_scanned_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(r rowScanner) (domain.Target, error) {
	var t domain.Target
	var keywords, exclusions, subreddits stringList
	var createdAt, lastScanned dbTime
	if err := r.Scan(&t.ID, &t.UserID, &t.Name, &t.Description, &keywords, &exclusions, &subreddits, &createdAt, &lastScanned); err != nil {
		return domain.Target{}, err
	}
	t.Keywords = []string(keywords)
	t.Exclusions = []string(exclusions)
	t.Subreddits = []string(subreddits)
	t.CreatedAt = createdAt.Time
	t.LastScannedAt = lastScanned.ptr()
	return t, nil
}

func (s *Store) queryTargets(ctx context.Context, query string, args ...any) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListAllTargets returns every target, oldest first.
func (s *Store) ListAllTargets(ctx context.Context) ([]domain.Target, error) {
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY created_at ASC, id ASC`)
}

func (s *Store) GetTarget(ctx context.Context, id string) (domain.Target, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+targetColumns+` FROM targets WHERE id = ?`), id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Target{}, ErrNotFound
	}
	if err != nil {
		return domain.Target{}, fmt.Errorf("getting target %s: %w", id, err)
	}
	return t, nil
}

// SaveTarget inserts a target or updates its descriptive fields. The scan
// cursor and creation time of an existing target are left alone. A missing
// ID or creation time is filled in.
func (s *Store) SaveTarget(ctx context.Context, t domain.Target) (domain.Target, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.UserID == "" {
		return domain.Target{}, fmt.Errorf("target %s: user id is required", t.ID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO targets (`+targetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			description = excluded.description,
			keywords = excluded.keywords,
			exclusions = excluded.exclusions,
			subreddits = excluded.subreddits`),
		t.ID, t.UserID, t.Name, t.Description,
		stringList(t.Keywords), stringList(t.Exclusions), stringList(t.Subreddits),
		s.dialect.timeArg(t.CreatedAt), s.dialect.nullTimeArg(t.LastScannedAt),
	)
	if err != nil {
		return domain.Target{}, fmt.Errorf("saving target %s: %w", t.ID, err)
	}
	return s.GetTarget(ctx, t.ID)
}

// AdvanceLastScanned moves the target's scan cursor to at. The cursor never
// moves backwards; an older at is a no-op.
func (s *Store) AdvanceLastScanned(ctx context.Context, id string, at time.Time) error {
	arg := s.dialect.timeArg(at)
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE targets SET last_scanned_at = ?
		WHERE id = ? AND (last_scanned_at IS NULL OR last_scanned_at < ?)`),
		arg, id, arg,
	)
	if err != nil {
		return fmt.Errorf("advancing last_scanned_at for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.GetTarget(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
