package handlers

import (
	"context"

	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/tasks"
)

// SubmitResponse identifies a queued task.
type SubmitResponse struct {
	TaskID string       `json:"task_id" doc:"Poll GET /v1/tasks/{task_id} for the result"`
	Status tasks.Status `json:"status"`
}

// SubmitOutput is the output wrapper for every queueing endpoint.
type SubmitOutput struct {
	Body SubmitResponse
}

// SearchInput is the body of POST /v1/scrape/search.
type SearchInput struct {
	Body models.SearchRequest
}

// GraphInput is the body of the following and followers endpoints.
type GraphInput struct {
	Body models.GraphRequest
}

// TimelineInput is the body of POST /v1/scrape/timeline.
type TimelineInput struct {
	Body models.TimelineRequest
}

// LoginInput is the body of POST /v1/session/login.
type LoginInput struct {
	Body struct {
		CredentialName string `json:"credential_name,omitempty" doc:"Stored credential to use; omitted tries every active credential"`
	}
}

// SubmitSearch queues a user search.
func (h *Handler) SubmitSearch(ctx context.Context, input *SearchInput) (*SubmitOutput, error) {
	return h.submit(ctx, models.OpSearchUser, input.Body)
}

// SubmitFollowing queues a following list scrape.
func (h *Handler) SubmitFollowing(ctx context.Context, input *GraphInput) (*SubmitOutput, error) {
	return h.submit(ctx, models.OpFollowing, input.Body)
}

// SubmitFollowers queues a followers list scrape.
func (h *Handler) SubmitFollowers(ctx context.Context, input *GraphInput) (*SubmitOutput, error) {
	return h.submit(ctx, models.OpFollowers, input.Body)
}

// SubmitTimeline queues a timeline scrape.
func (h *Handler) SubmitTimeline(ctx context.Context, input *TimelineInput) (*SubmitOutput, error) {
	return h.submit(ctx, models.OpTimeline, input.Body)
}

// SubmitLogin queues a login with a stored credential.
func (h *Handler) SubmitLogin(ctx context.Context, input *LoginInput) (*SubmitOutput, error) {
	return h.submit(ctx, models.OpLogin, models.LoginRequest{CredentialName: input.Body.CredentialName})
}

func (h *Handler) submit(ctx context.Context, op models.Operation, params any) (*SubmitOutput, error) {
	id, err := h.queue.Submit(ctx, op, params)
	if err != nil {
		return nil, h.toHTTPError(ctx, err)
	}
	logging.FromContext(ctx, h.logger).Debug("queued", "operation", op, "task_id", id)
	return &SubmitOutput{Body: SubmitResponse{TaskID: id, Status: tasks.StatusPending}}, nil
}
