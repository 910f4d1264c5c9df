package reddit

import (
	"context"
	"fmt"
	"strings"

	"github.com/pingbase/pingbase/internal/domain"
)

// FetchCandidates pulls the newest items for a target. With subreddits it
// reads each listing in order and dedupes the concatenation; without, it
// runs one search built from the target's keywords.
func (c *Client) FetchCandidates(ctx context.Context, target domain.Target) ([]domain.Candidate, error) {
	var subs []string
	for _, s := range target.Subreddits {
		if strings.TrimSpace(s) != "" {
			subs = append(subs, s)
		}
	}

	if len(subs) > 0 {
		var all []domain.Candidate
		for _, sub := range subs {
			cands, err := c.SubredditNew(ctx, sub, c.perSubLimit)
			if err != nil {
				return nil, fmt.Errorf("fetching r/%s: %w", sub, err)
			}
			all = append(all, cands...)
		}
		return Dedupe(all), nil
	}

	query := BuildSearchQuery(target)
	if query == "" {
		return nil, nil
	}
	cands, err := c.Search(ctx, query, "new", c.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	return cands, nil
}

// Dedupe keeps the first candidate for each external id, preserving order.
func Dedupe(cands []domain.Candidate) []domain.Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]domain.Candidate, 0, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.ExternalID]; ok {
			continue
		}
		seen[c.ExternalID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// BuildSearchQuery joins the non-empty keywords with spaces, falling back
// to the target name.
func BuildSearchQuery(target domain.Target) string {
	var parts []string
	for _, k := range target.Keywords {
		if k != "" {
			parts = append(parts, k)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, target.Name)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
