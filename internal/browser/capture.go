package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/justmadeid/social-services/internal/config"
	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/models"
)

var (
	// ErrPageLoadTimeout is returned when the ready selector never appears.
	ErrPageLoadTimeout = errors.New("page load timeout")
	// ErrNoResponse is returned when no matching response arrives in time.
	ErrNoResponse = errors.New("no matching response captured")
)

// BlockedError reports a page that rendered something other than the
// requested content.
type BlockedError struct {
	Block Block
	URL   string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("page blocked (%s): %s", e.Block, e.URL)
}

// Mode selects how many responses a capture waits for.
type Mode int

const (
	// ModeSingle stops at the first matching response.
	ModeSingle Mode = iota
	// ModePaginated scrolls and keeps every matching response.
	ModePaginated
)

// CaptureRequest describes one navigation and the responses to keep.
type CaptureRequest struct {
	Operation        models.Operation
	URL              string
	InterceptPattern string
	ReadySelector    string
	MaxPasses        int
	Mode             Mode
	Viewport         Viewport
	Cookies          []models.Cookie
}

// Capture holds the raw response bodies of one capture, in arrival order.
type Capture struct {
	Payloads [][]byte
	Passes   int
}

// Session runs captures, each in its own browser process.
type Session struct {
	launcher *Launcher
	cfg      *config.Config
	logger   *slog.Logger
}

// NewSession creates a capture session runner.
func NewSession(l *Launcher, cfg *config.Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{launcher: l, cfg: cfg, logger: logger.With("component", "capture")}
}

// Capture navigates to req.URL and returns the bodies of matching network
// responses. The browser is closed on every path and any error discards
// what was captured so far.
func (s *Session) Capture(ctx context.Context, req CaptureRequest) (*Capture, error) {
	logger := logging.FromContext(ctx, s.logger).With("operation", req.Operation)
	start := time.Now()

	inst, err := s.launcher.Launch(ctx, req.Viewport)
	if err != nil {
		return nil, err
	}
	defer inst.Close()

	page, err := CreatePage(inst.Browser, DefaultUserAgent, req.Viewport)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	page = page.Context(pctx)

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, fmt.Errorf("failed to enable network domain: %w", err)
	}
	if err := SetCookies(page, req.Cookies); err != nil {
		return nil, fmt.Errorf("failed to seed cookies: %w", err)
	}

	col := newCollector(pageBodies{page: page}, req.InterceptPattern, logger)
	col.listen(page)

	logger.Debug("navigating", "url", req.URL, "browser", inst.ID)
	if err := page.Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}
	if err := s.waitReady(ctx, page, req.ReadySelector); err != nil {
		return nil, err
	}
	dismissConsent(page, 2*time.Second, logger)

	result := &Capture{}
	switch req.Mode {
	case ModePaginated:
		if err := Sleep(pctx, s.cfg.PostLoadDelay); err != nil {
			return nil, err
		}
		maxPasses := req.MaxPasses
		if maxPasses < 1 {
			maxPasses = 1
		}
		passes, err := Paginate(pctx, pageScroller{page: page}, maxPasses, s.cfg.ScrollSettle, s.cfg.ScrollInterval, Sleep)
		if err != nil {
			return nil, fmt.Errorf("pagination failed after %d passes: %w", passes, err)
		}
		result.Passes = passes
		payloads, err := col.drain(pctx, s.cfg.ResponseTimeout, s.cfg.ScrollSettle)
		if err != nil {
			return nil, err
		}
		result.Payloads = payloads
	default:
		payload, err := col.first(pctx, s.cfg.ResponseTimeout)
		if err != nil {
			return nil, err
		}
		result.Payloads = [][]byte{payload}
	}

	logger.Info("capture complete",
		"payloads", len(result.Payloads),
		"passes", result.Passes,
		"duration", time.Since(start),
	)
	return result, nil
}

func (s *Session) waitReady(ctx context.Context, page *rod.Page, selector string) error {
	err := withTimeout(page, s.cfg.PageReadyTimeout, func(p *rod.Page) error {
		if selector == "" {
			return p.WaitLoad()
		}
		_, err := p.Element(selector)
		return err
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if block := detectBlock(page); block != BlockNone {
		info, _ := page.Info()
		u := ""
		if info != nil {
			u = info.URL
		}
		return &BlockedError{Block: block, URL: u}
	}
	return fmt.Errorf("%w: waiting for %q: %w", ErrPageLoadTimeout, selector, err)
}

// bodyReader fetches the body of a finished network request.
type bodyReader interface {
	Body(id proto.NetworkRequestID) ([]byte, error)
}

// pageBodies reads response bodies through the page's CDP session.
type pageBodies struct {
	page *rod.Page
}

func (b pageBodies) Body(id proto.NetworkRequestID) ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(b.page)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if !res.Base64Encoded {
		return []byte(res.Body), nil
	}
	body, err := base64.StdEncoding.DecodeString(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return body, nil
}

// collector records matching responses from CDP events. Event handlers only
// bookkeep; bodies are fetched on a separate goroutine because CDP calls
// cannot be made from inside an event handler.
type collector struct {
	bodies  bodyReader
	pattern string
	logger  *slog.Logger

	// touched only by the event handlers, which run on one goroutine
	matched map[proto.NetworkRequestID]bool

	ids    chan proto.NetworkRequestID
	notify chan struct{}

	mu       sync.Mutex
	payloads [][]byte
	pending  int
	err      error
}

func newCollector(bodies bodyReader, pattern string, logger *slog.Logger) *collector {
	return &collector{
		bodies:  bodies,
		pattern: pattern,
		logger:  logger,
		matched: make(map[proto.NetworkRequestID]bool),
		ids:     make(chan proto.NetworkRequestID, 1024),
		notify:  make(chan struct{}, 1),
	}
}

// listen subscribes to page's network events until the page context ends.
func (c *collector) listen(page *rod.Page) {
	wait := page.EachEvent(c.onResponse, c.onFinished, c.onFailed)

	go func() {
		wait()
		close(c.ids)
	}()
	go c.fetch()
}

func (c *collector) onResponse(e *proto.NetworkResponseReceived) {
	if e.Type != proto.NetworkResourceTypeXHR && e.Type != proto.NetworkResourceTypeFetch {
		return
	}
	if e.Response == nil || !MatchesPattern(e.Response.URL, c.pattern) {
		return
	}
	c.matched[e.RequestID] = true
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()
}

func (c *collector) onFinished(e *proto.NetworkLoadingFinished) {
	if !c.matched[e.RequestID] {
		return
	}
	delete(c.matched, e.RequestID)
	c.ids <- e.RequestID
}

func (c *collector) onFailed(e *proto.NetworkLoadingFailed) {
	if !c.matched[e.RequestID] {
		return
	}
	delete(c.matched, e.RequestID)
	c.logger.Warn("matched response failed to load", "error", e.ErrorText, "canceled", e.Canceled)
	c.mu.Lock()
	c.pending--
	c.mu.Unlock()
	c.signal()
}

func (c *collector) fetch() {
	for id := range c.ids {
		body, err := c.bodies.Body(id)

		c.mu.Lock()
		c.pending--
		if err != nil {
			if c.err == nil {
				c.err = err
			}
		} else {
			c.payloads = append(c.payloads, body)
		}
		c.mu.Unlock()
		c.signal()
	}
}

func (c *collector) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *collector) snapshot() (payloads [][]byte, pending int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.payloads...), c.pending, c.err
}

// first waits for one matching body.
func (c *collector) first(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		payloads, _, err := c.snapshot()
		if err != nil {
			return nil, err
		}
		if len(payloads) > 0 {
			return payloads[0], nil
		}
		select {
		case <-c.notify:
		case <-timer.C:
			return nil, ErrNoResponse
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// drain waits for in-flight matched bodies after pagination, settling once
// for late responses triggered by the last scroll.
func (c *collector) drain(ctx context.Context, timeout, settle time.Duration) ([][]byte, error) {
	if err := Sleep(ctx, settle); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		payloads, pending, err := c.snapshot()
		if err != nil {
			return nil, err
		}
		if pending <= 0 && len(payloads) > 0 {
			return payloads, nil
		}
		select {
		case <-c.notify:
		case <-timer.C:
			if len(payloads) == 0 {
				return nil, ErrNoResponse
			}
			c.logger.Warn("responses still in flight after drain timeout", "pending", pending, "payloads", len(payloads))
			return payloads, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
