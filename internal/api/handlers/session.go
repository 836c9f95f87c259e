package handlers

import (
	"context"

	"github.com/justmadeid/social-services/internal/models"
)

// SessionOutput wraps the login status.
type SessionOutput struct {
	Body models.LoginStatus
}

// SessionStatus reports on the saved session state.
func (h *Handler) SessionStatus(ctx context.Context, _ *struct{}) (*SessionOutput, error) {
	return &SessionOutput{Body: h.controls.LoginStatus(ctx)}, nil
}

// MessageOutput is a plain acknowledgement.
type MessageOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// ClearSession deletes the saved session state.
func (h *Handler) ClearSession(ctx context.Context, _ *struct{}) (*MessageOutput, error) {
	if err := h.controls.ClearSession(); err != nil {
		return nil, h.toHTTPError(ctx, err)
	}
	out := &MessageOutput{}
	out.Body.Message = "session cleared"
	return out, nil
}

// InvalidateInput names the user whose cache entries are dropped.
type InvalidateInput struct {
	Username string `path:"username" doc:"Account handle"`
}

// InvalidateOutput reports how many cache entries were removed.
type InvalidateOutput struct {
	Body struct {
		Username string `json:"username"`
		Removed  int    `json:"removed"`
	}
}

// InvalidateUser drops the cached following, followers and timeline results
// of a user.
func (h *Handler) InvalidateUser(ctx context.Context, input *InvalidateInput) (*InvalidateOutput, error) {
	n, err := h.controls.InvalidateUser(ctx, input.Username)
	if err != nil {
		return nil, h.toHTTPError(ctx, err)
	}
	out := &InvalidateOutput{}
	out.Body.Username = input.Username
	out.Body.Removed = n
	return out, nil
}
