package browser

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// tweetsPerPass is roughly how many timeline entries one scroll loads.
const tweetsPerPass = 20

// PlanPasses returns the scroll budget for a timeline of count tweets:
// ceil(count/20) when count lies within [minCount, maxCount], else a single pass.
func PlanPasses(count, minCount, maxCount int) int {
	if count < minCount || count > maxCount || count <= 0 {
		return 1
	}
	return (count + tweetsPerPass - 1) / tweetsPerPass
}

// MatchesPattern reports whether a response URL belongs to the operation
// named by pattern. GraphQL URLs are matched on their operation segment,
// anything else by substring.
func MatchesPattern(rawURL, pattern string) bool {
	if pattern == "" {
		return false
	}
	if u, err := url.Parse(rawURL); err == nil && strings.Contains(u.Path, "/graphql/") {
		segments := strings.Split(strings.TrimSuffix(u.Path, "/"), "/")
		return segments[len(segments)-1] == pattern
	}
	return strings.Contains(rawURL, pattern)
}

// Scroller is the part of a page pagination needs.
type Scroller interface {
	ScrollToBottom() error
	Height() (float64, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Paginate scrolls until the document height stops growing or maxPasses
// scrolls have been made. Each pass scrolls, waits settle, then compares
// heights; interval is waited between passes. It returns the passes made.
func Paginate(ctx context.Context, s Scroller, maxPasses int, settle, interval time.Duration, sleep SleepFunc) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}

	last, err := s.Height()
	if err != nil {
		return 0, err
	}

	passes := 0
	for passes < maxPasses {
		if err := s.ScrollToBottom(); err != nil {
			return passes, err
		}
		passes++

		if err := sleep(ctx, settle); err != nil {
			return passes, err
		}

		h, err := s.Height()
		if err != nil {
			return passes, err
		}
		if h == last {
			break
		}
		last = h

		if passes < maxPasses {
			if err := sleep(ctx, interval); err != nil {
				return passes, err
			}
		}
	}
	return passes, nil
}

type pageScroller struct {
	page *rod.Page
}

func (p pageScroller) ScrollToBottom() error {
	_, err := p.page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (p pageScroller) Height() (float64, error) {
	res, err := p.page.Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}
