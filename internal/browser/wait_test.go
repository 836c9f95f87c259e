package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"
)

func detachedPage() *rod.Page {
	return (&rod.Page{}).Context(context.Background())
}

func TestWithTimeoutReleasesTimer(t *testing.T) {
	page := detachedPage()

	var bounded context.Context
	err := withTimeout(page, time.Hour, func(p *rod.Page) error {
		bounded = p.GetContext()
		if _, ok := bounded.Deadline(); !ok {
			t.Error("fn ran without a deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withTimeout: %v", err)
	}
	if !errors.Is(bounded.Err(), context.Canceled) {
		t.Errorf("timeout context err = %v, want Canceled once fn returns", bounded.Err())
	}
	if page.GetContext().Err() != nil {
		t.Errorf("page context err = %v, want live page", page.GetContext().Err())
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	err := withTimeout(detachedPage(), 20*time.Millisecond, func(p *rod.Page) error {
		<-p.GetContext().Done()
		return p.GetContext().Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestFindWithinRebindsElement(t *testing.T) {
	page := detachedPage()

	el, err := findWithin(page, time.Hour, func(p *rod.Page) (*rod.Element, error) {
		return (&rod.Element{}).Context(p.GetContext()), nil
	})
	if err != nil {
		t.Fatalf("findWithin: %v", err)
	}
	if el.GetContext() != page.GetContext() {
		t.Error("element still bound to the wait's context")
	}
	if el.GetContext().Err() != nil {
		t.Errorf("element context err = %v, want usable after the wait", el.GetContext().Err())
	}
}

func TestFindWithinPropagatesError(t *testing.T) {
	want := errors.New("element not found")
	el, err := findWithin(detachedPage(), time.Hour, func(*rod.Page) (*rod.Element, error) {
		return nil, want
	})
	if !errors.Is(err, want) || el != nil {
		t.Errorf("findWithin = %v, %v; want nil, %v", el, err, want)
	}
}
