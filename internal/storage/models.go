package storage

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pingbase/pingbase/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SignalRow is one persisted signal. Nullable columns are pointers.
type SignalRow struct {
	ID                  string
	TargetID            string
	UserID              string
	Platform            string
	Kind                domain.Kind
	URL                 string
	ExternalID          string
	Community           string
	Title               *string
	ContentExcerpt      string
	DatePosted          time.Time
	Score               int
	Reason              string
	SpecificAsk         bool
	FitGrade            domain.FitGrade
	PromoRisk           domain.PromoRisk
	ScorerConfidence    int
	RejectionReason     *string
	EvidenceQuote       *string
	Stage1Score         *int
	ValidatorDecision   *domain.Decision
	ValidatorConfidence *int
	ValidatorReason     *string
	ScoreVersion        string
	Status              domain.Status
	RawPayload          json.RawMessage
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SignalSummary is the display projection returned by read paths.
type SignalSummary struct {
	ID             string        `json:"id"`
	Platform       string        `json:"platform"`
	Type           domain.Kind   `json:"type"`
	Community      string        `json:"community"`
	Title          *string       `json:"title"`
	ContentExcerpt string        `json:"content_excerpt"`
	URL            string        `json:"url"`
	Score          int           `json:"score"`
	Reason         string        `json:"reason"`
	Status         domain.Status `json:"status"`
	DatePosted     time.Time     `json:"date_posted"`
}

type SignalPage struct {
	Signals         []SignalSummary `json:"signals"`
	Total           int             `json:"total"`
	Page            int             `json:"page"`
	PageSize        int             `json:"page_size"`
	PageCount       int             `json:"page_count"`
	HasNextPage     bool            `json:"has_next_page"`
	HasPreviousPage bool            `json:"has_previous_page"`
}

// SignalCount holds per-target tallies of show-eligible signals.
type SignalCount struct {
	New   int `json:"new"`
	Total int `json:"total"`
}

// stringList is a []string stored as a JSON array.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *stringList) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("scanning string list from %T", src)
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("decoding string list: %w", err)
	}
	*l = out
	return nil
}
