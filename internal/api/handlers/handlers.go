// Package handlers exposes the task queue and the session and cache
// controls over HTTP with huma.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/justmadeid/social-services/internal/cache"
	"github.com/justmadeid/social-services/internal/http/mw"
	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/scraper"
	"github.com/justmadeid/social-services/internal/tasks"
)

// TaskQueue is the submission side of the task system.
type TaskQueue interface {
	Submit(ctx context.Context, op models.Operation, params any) (string, error)
	Poll(ctx context.Context, id string) (*tasks.Task, error)
	Cancel(ctx context.Context, id string) (*tasks.Task, error)
}

// Controls are the synchronous engine operations served directly.
type Controls interface {
	LoginStatus(ctx context.Context) models.LoginStatus
	ClearSession() error
	InvalidateUser(ctx context.Context, username string) (int, error)
	CacheHealth(ctx context.Context) cache.HealthStatus
}

var (
	_ TaskQueue = (*tasks.Queue)(nil)
	_ Controls  = (*scraper.Engine)(nil)
)

// Handler serves every route of the API.
type Handler struct {
	queue    TaskQueue
	controls Controls
	logger   *slog.Logger
}

// New creates a handler.
func New(queue TaskQueue, controls Controls, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{queue: queue, controls: controls, logger: logger.With("component", "api")}
}

// Register adds all routes to api.
func Register(api huma.API, h *Handler) {
	mw.PublicGet(api, "/health", h.Health,
		mw.WithOperationID("health"), mw.WithSummary("Health check"), mw.WithTags("Health"))

	mw.ProtectedPost(api, "/v1/scrape/search", h.SubmitSearch,
		mw.WithOperationID("scrapeSearch"), mw.WithSummary("Queue a user search"),
		mw.WithTags("Scrape"), mw.WithStatus(http.StatusAccepted))
	mw.ProtectedPost(api, "/v1/scrape/following", h.SubmitFollowing,
		mw.WithOperationID("scrapeFollowing"), mw.WithSummary("Queue a following list scrape"),
		mw.WithTags("Scrape"), mw.WithStatus(http.StatusAccepted))
	mw.ProtectedPost(api, "/v1/scrape/followers", h.SubmitFollowers,
		mw.WithOperationID("scrapeFollowers"), mw.WithSummary("Queue a followers list scrape"),
		mw.WithTags("Scrape"), mw.WithStatus(http.StatusAccepted))
	mw.ProtectedPost(api, "/v1/scrape/timeline", h.SubmitTimeline,
		mw.WithOperationID("scrapeTimeline"), mw.WithSummary("Queue a timeline scrape"),
		mw.WithTags("Scrape"), mw.WithStatus(http.StatusAccepted))

	mw.ProtectedGet(api, "/v1/tasks/{id}", h.GetTask,
		mw.WithOperationID("getTask"), mw.WithSummary("Get task status"), mw.WithTags("Tasks"))
	mw.ProtectedDelete(api, "/v1/tasks/{id}", h.CancelTask,
		mw.WithOperationID("cancelTask"), mw.WithSummary("Cancel a task"), mw.WithTags("Tasks"))

	mw.ProtectedGet(api, "/v1/session", h.SessionStatus,
		mw.WithOperationID("getSession"), mw.WithSummary("Login status"), mw.WithTags("Session"))
	mw.ProtectedPost(api, "/v1/session/login", h.SubmitLogin,
		mw.WithOperationID("login"), mw.WithSummary("Queue a login"),
		mw.WithTags("Session"), mw.WithStatus(http.StatusAccepted))
	mw.ProtectedDelete(api, "/v1/session", h.ClearSession,
		mw.WithOperationID("clearSession"), mw.WithSummary("Clear the saved session"), mw.WithTags("Session"))

	mw.ProtectedDelete(api, "/v1/cache/users/{username}", h.InvalidateUser,
		mw.WithOperationID("invalidateUser"), mw.WithSummary("Drop cached results for a user"), mw.WithTags("Cache"))
}

// toHTTPError maps domain errors onto status codes.
func (h *Handler) toHTTPError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return huma.Error404NotFound("task not found")
	case errors.Is(err, tasks.ErrTaskFinished):
		return huma.Error409Conflict("task already finished")
	case errors.Is(err, scraper.ErrInvalidRequest):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, scraper.ErrCacheUnavailable):
		return huma.Error503ServiceUnavailable("cache unavailable")
	}
	logging.FromContext(ctx, h.logger).Error("request failed", "error", err)
	return huma.Error500InternalServerError("internal error")
}
