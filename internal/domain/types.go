// Package domain holds the types shared by the ingestion pipeline, the
// store and the read paths.
package domain

import (
	"encoding/json"
	"time"
)

// Target is a user's monitoring configuration.
type Target struct {
	ID            string
	UserID        string
	Name          string
	Description   string
	Keywords      []string
	Exclusions    []string
	Subreddits    []string
	CreatedAt     time.Time
	LastScannedAt *time.Time
}

type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

const PlatformReddit = "reddit"

// Candidate is a normalized external item before scoring.
type Candidate struct {
	Platform       string
	Kind           Kind
	URL            string
	ExternalID     string
	Community      string
	Title          *string
	ContentExcerpt string
	DatePosted     time.Time
	Author         *string
	Stickied       bool
	Locked         bool
	Distinguished  *string
	LinkFlairText  *string
	PostHint       *string
	IsSelf         bool
	Domain         *string
	RawTextLength  int
	RawPayload     json.RawMessage
}

type FitGrade string

const (
	FitNone    FitGrade = "none"
	FitPartial FitGrade = "partial"
	FitStrong  FitGrade = "strong"
)

func (g FitGrade) Valid() bool {
	return g == FitNone || g == FitPartial || g == FitStrong
}

type PromoRisk string

const (
	PromoLow    PromoRisk = "low"
	PromoMedium PromoRisk = "medium"
	PromoHigh   PromoRisk = "high"
)

func (r PromoRisk) Valid() bool {
	return r == PromoLow || r == PromoMedium || r == PromoHigh
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ScoreResult is the Stage-1 actionability judgement.
type ScoreResult struct {
	Score           int       `json:"score"`
	Reason          string    `json:"reason"`
	SpecificAsk     bool      `json:"specificAsk"`
	FitGrade        FitGrade  `json:"fitGrade"`
	PromoRisk       PromoRisk `json:"promoRisk"`
	Confidence      int       `json:"confidence"`
	RejectionReason *string   `json:"rejectionReason"`
	EvidenceQuote   *string   `json:"evidenceQuote"`
}

// ValidationResult is the Stage-2 approve/reject judgement.
type ValidationResult struct {
	Decision            Decision `json:"decision"`
	Confidence          int      `json:"confidence"`
	Reason              string   `json:"reason"`
	FailureReason       *string  `json:"failureReason"`
	BrandMentionNatural bool     `json:"brandMentionNatural"`
}

// ScoredSignal is a candidate with its final score. It is never stored as
// is; the persistence layer maps it to a row.
type ScoredSignal struct {
	Candidate
	Score     int
	Reason    string
	Stage1    *ScoreResult
	Validator *ValidationResult
}

type Status string

const (
	StatusNew     Status = "new"
	StatusIgnored Status = "ignored"
	StatusReplied Status = "replied"
)

// ScoreVersion tags rows written by the current scoring funnel.
const ScoreVersion = "v2"
