package scraper

import (
	"errors"

	"github.com/justmadeid/social-services/internal/browser"
	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/session"
)

// Kind classifies engine failures. The string value is what task records and
// API responses report as the error type.
type Kind string

const (
	KindNoCredentials    Kind = "NoCredentialsAvailable"
	KindLoginFailed      Kind = "LoginFailed"
	KindPageLoadTimeout  Kind = "PageLoadTimeout"
	KindScrapingFailed   Kind = "ScrapingFailed"
	KindCacheUnavailable Kind = "CacheUnavailable"
	KindInvalidRequest   Kind = "InvalidRequest"
)

// Sentinel errors for matching with errors.Is.
var (
	ErrNoCredentials    = &Error{Kind: KindNoCredentials, Message: "no credentials available"}
	ErrLoginFailed      = &Error{Kind: KindLoginFailed, Message: "login failed"}
	ErrPageLoadTimeout  = &Error{Kind: KindPageLoadTimeout, Message: "page load timeout"}
	ErrScrapingFailed   = &Error{Kind: KindScrapingFailed, Message: "scraping failed"}
	ErrCacheUnavailable = &Error{Kind: KindCacheUnavailable, Message: "cache unavailable"}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
)

// Error is the engine's error type.
type Error struct {
	Kind    Kind
	Op      models.Operation
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = string(e.Op) + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindScrapingFailed for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindScrapingFailed
}

func invalid(op models.Operation, msg string) error {
	return &Error{Kind: KindInvalidRequest, Op: op, Message: msg}
}

// classify maps errors from the session and browser layers onto the engine's
// kinds.
func classify(op models.Operation, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	var blocked *browser.BlockedError
	switch {
	case errors.Is(err, session.ErrNoCredentials):
		return &Error{Kind: KindNoCredentials, Op: op, Message: "no credentials available", Cause: err}
	case errors.Is(err, session.ErrLoginFailed), errors.Is(err, session.ErrCredentialInactive):
		return &Error{Kind: KindLoginFailed, Op: op, Message: "login failed", Cause: err}
	case errors.Is(err, browser.ErrPageLoadTimeout):
		return &Error{Kind: KindPageLoadTimeout, Op: op, Message: "page load timeout", Cause: err}
	case errors.As(err, &blocked):
		return &Error{Kind: KindScrapingFailed, Op: op, Message: "page blocked: " + string(blocked.Block), Cause: err}
	}
	return &Error{Kind: KindScrapingFailed, Op: op, Message: "scraping failed", Cause: err}
}
