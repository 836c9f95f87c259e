// Package scraper runs the scrape operations: it validates requests, serves
// cached results, keeps the session logged in, captures platform responses
// and turns them into records.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/justmadeid/social-services/internal/aggregate"
	"github.com/justmadeid/social-services/internal/browser"
	"github.com/justmadeid/social-services/internal/cache"
	"github.com/justmadeid/social-services/internal/config"
	"github.com/justmadeid/social-services/internal/extract"
	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/models"
)

const baseURL = "https://x.com"

// Response interception patterns, one per GraphQL operation.
const (
	patternSearch    = "SearchTimeline"
	patternFollowing = "Following"
	patternFollowers = "Followers"
	patternTweets    = "UserTweets"
)

const (
	selectorCell  = "[data-testid='cellInnerDiv']"
	selectorTweet = "[data-testid='tweet']"
)

// timelineViewport is used for the timeline scroll loop.
var timelineViewport = browser.Viewport{Width: 1800, Height: 1080}

// Sessions is the part of session.Store the engine uses.
type Sessions interface {
	EnsureValid(ctx context.Context, explicit *models.Credentials) error
	Load() (*models.SessionState, error)
	Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error)
	ResolveCredentials(ctx context.Context, explicit *models.Credentials) (models.Credentials, error)
	ResolveNamed(ctx context.Context, name string) (models.Credentials, error)
	Status(ctx context.Context) models.LoginStatus
	Clear() error
}

// Capturer runs one browser capture.
type Capturer interface {
	Capture(ctx context.Context, req browser.CaptureRequest) (*browser.Capture, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Config   *config.Config
	Cache    *cache.Cache
	Sessions Sessions
	Capturer Capturer
	// Credentials, when complete, are preferred over stored ones for
	// automatic logins.
	Credentials *models.Credentials
	Logger      *slog.Logger
}

// Engine runs scrape operations.
type Engine struct {
	cfg      *config.Config
	cache    *cache.Cache
	sessions Sessions
	capturer Capturer
	explicit *models.Credentials
	parser   *extract.Parser
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an engine.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      d.Config,
		cache:    d.Cache,
		sessions: d.Sessions,
		capturer: d.Capturer,
		explicit: d.Credentials,
		parser:   extract.New(logger),
		logger:   logger.With("component", "scraper"),
		now:      time.Now,
	}
}

// SearchUser finds accounts matching a free-text query.
func (e *Engine) SearchUser(ctx context.Context, req models.SearchRequest) (*models.UsersResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, invalid(models.OpSearchUser, "query must not be empty")
	}
	limit, err := e.userLimit(models.OpSearchUser, req.Limit)
	if err != nil {
		return nil, err
	}
	req.Limit = limit

	key := cache.Key(models.OpSearchUser, req.Params())
	lookup := e.now()
	var cached models.UsersResult
	if e.cache.Get(ctx, key, &cached) {
		// a hit reports the cost of the lookup, not of the original capture
		cached.Metadata.ExecutionTime = e.since(lookup)
		return &cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScrapingTimeout)
	defer cancel()
	start := e.now()

	payloads, err := e.capture(ctx, browser.CaptureRequest{
		Operation:        models.OpSearchUser,
		URL:              fmt.Sprintf("%s/search?q=%s&src=typed_query&f=user", baseURL, url.QueryEscape(req.Query)),
		InterceptPattern: patternSearch,
		ReadySelector:    selectorCell,
		Mode:             browser.ModeSingle,
		Viewport:         browser.CaptureViewport,
	})
	if err != nil {
		return nil, err
	}
	users, err := e.parser.SearchUsers(payloads[0], req.Limit)
	if err != nil {
		return nil, classify(models.OpSearchUser, err)
	}

	result := &models.UsersResult{
		Users: nonNil(users),
		Metadata: models.Metadata{
			Query:         req.Query,
			Limit:         req.Limit,
			TotalResults:  len(users),
			ExecutionTime: e.since(start),
		},
	}
	e.cache.Set(context.WithoutCancel(ctx), key, result, e.cache.TTLFor(models.OpSearchUser))
	return result, nil
}

// Following lists the accounts a user follows.
func (e *Engine) Following(ctx context.Context, req models.GraphRequest) (*models.UsersResult, error) {
	return e.graph(ctx, models.OpFollowing, patternFollowing, "following", req)
}

// Followers lists the accounts following a user.
func (e *Engine) Followers(ctx context.Context, req models.GraphRequest) (*models.UsersResult, error) {
	return e.graph(ctx, models.OpFollowers, patternFollowers, "followers", req)
}

func (e *Engine) graph(ctx context.Context, op models.Operation, pattern, path string, req models.GraphRequest) (*models.UsersResult, error) {
	username, err := normalizeUsername(op, req.Username)
	if err != nil {
		return nil, err
	}
	req.Username = username
	limit, err := e.userLimit(op, req.Limit)
	if err != nil {
		return nil, err
	}
	req.Limit = limit

	key := cache.Key(op, req.Params())
	lookup := e.now()
	var cached models.UsersResult
	if e.cache.Get(ctx, key, &cached) {
		// a hit reports the cost of the lookup, not of the original capture
		cached.Metadata.ExecutionTime = e.since(lookup)
		return &cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScrapingTimeout)
	defer cancel()
	start := e.now()

	payloads, err := e.capture(ctx, browser.CaptureRequest{
		Operation:        op,
		URL:              fmt.Sprintf("%s/%s/%s", baseURL, url.PathEscape(username), path),
		InterceptPattern: pattern,
		ReadySelector:    selectorCell,
		Mode:             browser.ModeSingle,
		Viewport:         browser.CaptureViewport,
	})
	if err != nil {
		return nil, err
	}
	users, err := e.parser.FollowGraph(payloads[0], req.Limit)
	if err != nil {
		return nil, classify(op, err)
	}

	result := &models.UsersResult{
		Users: nonNil(users),
		Metadata: models.Metadata{
			Username:      username,
			Limit:         req.Limit,
			TotalResults:  len(users),
			ExecutionTime: e.since(start),
		},
	}
	e.cache.SetForSubject(context.WithoutCancel(ctx), username, key, result, e.cache.TTLFor(op))
	return result, nil
}

// Timeline collects the recent tweets of a user and tallies their hashtags
// and mentions. The cached entry always carries the analysis; it is dropped
// from the returned value when the request opts out.
func (e *Engine) Timeline(ctx context.Context, req models.TimelineRequest) (*models.TimelineResult, error) {
	username, err := normalizeUsername(models.OpTimeline, req.Username)
	if err != nil {
		return nil, err
	}
	req.Username = username
	switch {
	case req.Count < 0:
		return nil, invalid(models.OpTimeline, fmt.Sprintf("count must not be negative, got %d", req.Count))
	case req.Count == 0:
		req.Count = e.cfg.DefaultTweetCount
	}

	key := cache.Key(models.OpTimeline, req.Params())
	lookup := e.now()
	var cached models.TimelineResult
	if e.cache.Get(ctx, key, &cached) {
		// a hit reports the cost of the lookup, not of the original capture
		cached.Metadata.ExecutionTime = e.since(lookup)
		return present(&cached, req.WantsAnalysis()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScrapingTimeout)
	defer cancel()
	start := e.now()

	payloads, err := e.capture(ctx, browser.CaptureRequest{
		Operation:        models.OpTimeline,
		URL:              fmt.Sprintf("%s/%s", baseURL, url.PathEscape(username)),
		InterceptPattern: patternTweets,
		ReadySelector:    selectorTweet,
		MaxPasses:        browser.PlanPasses(req.Count, e.cfg.MinTweetCount, e.cfg.MaxTweetCount),
		Mode:             browser.ModePaginated,
		Viewport:         timelineViewport,
	})
	if err != nil {
		return nil, err
	}

	tweets := e.parser.Timeline(payloads, username)
	if len(tweets) > req.Count {
		tweets = tweets[:req.Count]
	}
	hashtags, mentions := aggregate.Tally(tweets)

	result := &models.TimelineResult{
		Timelines: nonNil(tweets),
		Hashtags:  hashtags,
		Mentions:  mentions,
		Metadata: models.Metadata{
			Username:       username,
			TotalTweets:    len(tweets),
			AnalysisPeriod: e.now().Format("2006-01-02T15:04:05.000000"),
			ExecutionTime:  e.since(start),
		},
	}
	e.cache.SetForSubject(context.WithoutCancel(ctx), username, key, result, e.cache.TTLFor(models.OpTimeline))
	return present(result, req.WantsAnalysis()), nil
}

// Login authenticates and replaces the persisted session. Explicit
// username/password win over a named credential; with neither, the engine's
// configured or stored credentials are used.
func (e *Engine) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	var (
		creds models.Credentials
		err   error
	)
	switch {
	case req.Username != "" || req.Password != "":
		creds = models.Credentials{Username: req.Username, Password: req.Password, TOTPSecret: req.TOTPSecret}
		if !creds.Complete() {
			return nil, invalid(models.OpLogin, "username and password are both required")
		}
	case req.CredentialName != "":
		creds, err = e.sessions.ResolveNamed(ctx, req.CredentialName)
	default:
		creds, err = e.sessions.ResolveCredentials(ctx, e.explicit)
	}
	if err != nil {
		return nil, classify(models.OpLogin, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScrapingTimeout)
	defer cancel()

	res, err := e.sessions.Login(ctx, creds)
	if err != nil {
		return nil, classify(models.OpLogin, err)
	}
	return res, nil
}

// LoginStatus reports on the persisted session.
func (e *Engine) LoginStatus(ctx context.Context) models.LoginStatus {
	return e.sessions.Status(ctx)
}

// ClearSession deletes the persisted session.
func (e *Engine) ClearSession() error {
	return e.sessions.Clear()
}

// InvalidateUser drops the cached following, followers and timeline results
// of username and returns how many entries were removed.
func (e *Engine) InvalidateUser(ctx context.Context, username string) (int, error) {
	username, err := normalizeUsername("", username)
	if err != nil {
		return 0, err
	}
	n, err := e.cache.InvalidateForSubject(ctx, username)
	if err != nil {
		return n, &Error{Kind: KindCacheUnavailable, Message: "cache invalidation failed", Cause: err}
	}
	return n, nil
}

// CacheHealth reports on the result cache.
func (e *Engine) CacheHealth(ctx context.Context) cache.HealthStatus {
	return e.cache.Health(ctx)
}

// capture makes sure the session is valid, then runs req with the session
// cookies. It returns at least one payload on success.
func (e *Engine) capture(ctx context.Context, req browser.CaptureRequest) ([][]byte, error) {
	logger := logging.FromContext(ctx, e.logger).With("operation", req.Operation)

	if err := e.sessions.EnsureValid(ctx, e.explicit); err != nil {
		return nil, classify(req.Operation, err)
	}
	state, err := e.sessions.Load()
	if err != nil {
		return nil, classify(req.Operation, fmt.Errorf("failed to load session: %w", err))
	}
	req.Cookies = state.Cookies

	res, err := e.capturer.Capture(ctx, req)
	if err != nil {
		logger.Warn("capture failed", "url", req.URL, "error", err)
		return nil, classify(req.Operation, err)
	}
	if len(res.Payloads) == 0 {
		return nil, classify(req.Operation, browser.ErrNoResponse)
	}
	logger.Debug("captured", "payloads", len(res.Payloads), "passes", res.Passes)
	return res.Payloads, nil
}

func (e *Engine) userLimit(op models.Operation, limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, invalid(op, fmt.Sprintf("limit must not be negative, got %d", limit))
	case limit == 0:
		return e.cfg.DefaultUserLimit, nil
	case limit > e.cfg.MaxUserLimit:
		return 0, invalid(op, fmt.Sprintf("limit %d exceeds maximum %d", limit, e.cfg.MaxUserLimit))
	}
	return limit, nil
}

func (e *Engine) since(start time.Time) float64 {
	return e.now().Sub(start).Seconds()
}

// normalizeUsername strips whitespace and a leading @.
func normalizeUsername(op models.Operation, username string) (string, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return "", invalid(op, "username must not be empty")
	}
	if strings.ContainsAny(username, "/?# ") {
		return "", invalid(op, fmt.Sprintf("invalid username %q", username))
	}
	return username, nil
}

// present returns r as the caller asked for it.
func present(r *models.TimelineResult, analysis bool) *models.TimelineResult {
	if analysis {
		return r
	}
	out := *r
	out.Hashtags = nil
	out.Mentions = nil
	return &out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
