// Package prefilter rejects structurally low-value candidates before any
// model call.
package prefilter

import (
	"regexp"
	"strings"

	"github.com/pingbase/pingbase/internal/domain"
)

type Reason string

const (
	ReasonAutomoderator      Reason = "automoderator"
	ReasonStickied           Reason = "stickied"
	ReasonMegathread         Reason = "megathread"
	ReasonLowContextLinkPost Reason = "low_context_link_post"
	ReasonNoMeaningfulText   Reason = "no_meaningful_text"
	ReasonExcludedTerm       Reason = "excluded_term"
)

const (
	minTextLength        = 25
	minLinkContextLength = 80
)

var megathreadPattern = regexp.MustCompile(`(?i)\b(daily|weekly|monthly|megathread|discussion thread|general discussion|what are you buying|weekend discussion)\b`)

var lowContextHints = map[string]bool{
	"image":        true,
	"link":         true,
	"hosted:video": true,
	"rich:video":   true,
}

type Rejected struct {
	Candidate domain.Candidate
	Reason    Reason
}

// Result partitions the input: every candidate lands in exactly one of
// Accepted or Rejected.
type Result struct {
	Accepted []domain.Candidate
	Rejected []Rejected
	Reasons  map[Reason]int
}

// NormalizeTerms trims and lowercases exclusion terms, dropping blanks.
func NormalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// RejectReason returns the first matching rule. exclusions must already be
// normalized.
func RejectReason(c domain.Candidate, exclusions []string) (Reason, bool) {
	if c.Author != nil && strings.ToLower(*c.Author) == "automoderator" {
		return ReasonAutomoderator, true
	}
	if c.Stickied {
		return ReasonStickied, true
	}
	if c.Title != nil && megathreadPattern.MatchString(*c.Title) {
		return ReasonMegathread, true
	}
	if c.Kind == domain.KindPost && c.PostHint != nil &&
		lowContextHints[strings.ToLower(*c.PostHint)] &&
		c.RawTextLength < minLinkContextLength {
		return ReasonLowContextLinkPost, true
	}
	if c.RawTextLength < minTextLength && !strings.Contains(c.ContentExcerpt, "?") {
		return ReasonNoMeaningfulText, true
	}
	if hasExcludedTerm(c, exclusions) {
		return ReasonExcludedTerm, true
	}
	return "", false
}

func hasExcludedTerm(c domain.Candidate, exclusions []string) bool {
	if len(exclusions) == 0 {
		return false
	}
	title := ""
	if c.Title != nil {
		title = *c.Title
	}
	text := strings.ToLower(title + "\n" + c.ContentExcerpt)
	for _, term := range exclusions {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// Apply runs the rules over every candidate in order.
func Apply(target domain.Target, cands []domain.Candidate) Result {
	exclusions := NormalizeTerms(target.Exclusions)
	res := Result{
		Accepted: make([]domain.Candidate, 0, len(cands)),
		Reasons:  make(map[Reason]int),
	}
	for _, c := range cands {
		if reason, rejected := RejectReason(c, exclusions); rejected {
			res.Rejected = append(res.Rejected, Rejected{Candidate: c, Reason: reason})
			res.Reasons[reason]++
			continue
		}
		res.Accepted = append(res.Accepted, c)
	}
	return res
}
