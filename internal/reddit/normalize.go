package reddit

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pingbase/pingbase/internal/domain"
)

const canonicalBase = "https://www.reddit.com"

type listing struct {
	Data struct {
		Children []json.RawMessage `json:"children"`
		After    string            `json:"after"`
	} `json:"data"`
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Subreddit     string  `json:"subreddit"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	Body          string  `json:"body"`
	CreatedUTC    float64 `json:"created_utc"`
	Permalink     string  `json:"permalink"`
	Author        *string `json:"author"`
	Stickied      bool    `json:"stickied"`
	Locked        bool    `json:"locked"`
	Distinguished *string `json:"distinguished"`
	LinkFlairText *string `json:"link_flair_text"`
	PostHint      *string `json:"post_hint"`
	IsSelf        bool    `json:"is_self"`
	Domain        *string `json:"domain"`
}

func (c *Client) parseListing(l listing) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(l.Data.Children))
	for _, raw := range l.Data.Children {
		var t thing
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		cand, ok := toCandidate(t, raw, c.excerptMax, c.now())
		if ok {
			out = append(out, cand)
		}
	}
	return out
}

// toCandidate normalizes one listing child. Unknown kinds and items without
// any identifier are dropped.
func toCandidate(t thing, raw json.RawMessage, excerptMax int, now time.Time) (domain.Candidate, bool) {
	var kind domain.Kind
	switch t.Kind {
	case "t3":
		kind = domain.KindPost
	case "t1":
		kind = domain.KindComment
	default:
		return domain.Candidate{}, false
	}
	d := t.Data

	externalID := d.Name
	if externalID == "" {
		externalID = d.ID
	}
	if externalID == "" {
		return domain.Candidate{}, false
	}

	community := d.Subreddit
	if community == "" {
		community = "unknown"
	}

	permalink := d.Permalink
	if permalink == "" {
		permalink = "/" + community + "/comments/" + d.ID
	}
	link := permalink
	if !strings.HasPrefix(permalink, "http") {
		if !strings.HasPrefix(permalink, "/") {
			permalink = "/" + permalink
		}
		link = canonicalBase + permalink
	}

	var title *string
	body := d.Body
	if kind == domain.KindPost {
		if d.Title != "" {
			postTitle := d.Title
			title = &postTitle
		}
		body = d.Selftext
	}
	body = strings.TrimSpace(body)

	source := body
	if source == "" && title != nil {
		source = *title
	}
	excerpt := truncate(source, excerptMax)
	if excerpt == "" {
		excerpt = "(no content)"
	}

	posted := now.UTC()
	if d.CreatedUTC > 0 {
		posted = time.Unix(int64(d.CreatedUTC), 0).UTC()
	}

	return domain.Candidate{
		Platform:       domain.PlatformReddit,
		Kind:           kind,
		URL:            link,
		ExternalID:     externalID,
		Community:      community,
		Title:          title,
		ContentExcerpt: excerpt,
		DatePosted:     posted,
		Author:         d.Author,
		Stickied:       d.Stickied,
		Locked:         d.Locked,
		Distinguished:  d.Distinguished,
		LinkFlairText:  d.LinkFlairText,
		PostHint:       d.PostHint,
		IsSelf:         d.IsSelf,
		Domain:         d.Domain,
		RawTextLength:  utf8.RuneCountInString(body),
		RawPayload:     append(json.RawMessage(nil), raw...),
	}, true
}

func truncate(text string, limit int) string {
	trimmed := strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
