// Package aggregate computes hashtag and mention frequencies over a batch of
// tweets.
package aggregate

import "github.com/justmadeid/social-services/internal/models"

// Counter counts token occurrences and remembers first-seen order.
type Counter struct {
	order  []string
	counts map[string]int
	total  int
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Add records one occurrence of each token.
func (c *Counter) Add(tokens ...string) {
	for _, t := range tokens {
		if _, ok := c.counts[t]; !ok {
			c.order = append(c.order, t)
		}
		c.counts[t]++
		c.total++
	}
}

// Total returns the number of occurrences recorded.
func (c *Counter) Total() int {
	return c.total
}

// Stat is one token's count and share of the total.
type Stat struct {
	Token      string
	Count      int
	Percentage float64
}

// Stats returns per-token counts in first-seen order. Percentages are
// count/total*100, or 0 when nothing was counted.
func (c *Counter) Stats() []Stat {
	out := make([]Stat, 0, len(c.order))
	for _, t := range c.order {
		n := c.counts[t]
		pct := 0.0
		if c.total > 0 {
			pct = float64(n) * 100 / float64(c.total)
		}
		out = append(out, Stat{Token: t, Count: n, Percentage: pct})
	}
	return out
}

// Tally counts the hashtags and mentions carried by tweets.
func Tally(tweets []models.TweetRecord) ([]models.HashtagStat, []models.MentionStat) {
	hashtags := NewCounter()
	mentions := NewCounter()
	for _, t := range tweets {
		hashtags.Add(t.Hashtags...)
		mentions.Add(t.Mentions...)
	}

	hs := make([]models.HashtagStat, 0, len(hashtags.order))
	for _, s := range hashtags.Stats() {
		hs = append(hs, models.HashtagStat{Hashtag: s.Token, Count: s.Count, Percentage: s.Percentage})
	}
	ms := make([]models.MentionStat, 0, len(mentions.order))
	for _, s := range mentions.Stats() {
		ms = append(ms, models.MentionStat{Mention: s.Token, Count: s.Count, Percentage: s.Percentage})
	}
	return hs, ms
}
