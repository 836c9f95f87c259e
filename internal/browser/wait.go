package browser

import (
	"time"

	"github.com/go-rod/rod"
)

// withTimeout runs fn against page bounded by timeout and releases the timer
// as soon as fn returns.
func withTimeout(page *rod.Page, timeout time.Duration, fn func(*rod.Page) error) error {
	p := page.Timeout(timeout)
	defer p.CancelTimeout()
	return fn(p)
}

// findWithin waits up to timeout for the element find returns. The element
// is rebound to page's own context, so actions on it are not cut short by
// the wait's deadline.
func findWithin(page *rod.Page, timeout time.Duration, find func(*rod.Page) (*rod.Element, error)) (*rod.Element, error) {
	var el *rod.Element
	err := withTimeout(page, timeout, func(p *rod.Page) error {
		var err error
		el, err = find(p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return el.Context(page.GetContext()), nil
}

func bySelector(selector string) func(*rod.Page) (*rod.Element, error) {
	return func(p *rod.Page) (*rod.Element, error) {
		return p.Element(selector)
	}
}

func firstOf(selectors ...string) func(*rod.Page) (*rod.Element, error) {
	return func(p *rod.Page) (*rod.Element, error) {
		race := p.Race()
		for _, s := range selectors {
			race = race.Element(s)
		}
		return race.Do()
	}
}
