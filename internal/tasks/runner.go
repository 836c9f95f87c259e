package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/scraper"
)

// Engine is the part of scraper.Engine the runner dispatches to.
type Engine interface {
	SearchUser(ctx context.Context, req models.SearchRequest) (*models.UsersResult, error)
	Following(ctx context.Context, req models.GraphRequest) (*models.UsersResult, error)
	Followers(ctx context.Context, req models.GraphRequest) (*models.UsersResult, error)
	Timeline(ctx context.Context, req models.TimelineRequest) (*models.TimelineResult, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
}

var _ Engine = (*scraper.Engine)(nil)

// ProgressFunc reports intermediate progress of a running task.
type ProgressFunc func(progress int, message string)

// Outcome is what a finished task produced.
type Outcome struct {
	Result  any
	Summary string
	// Size is the number of records in Result.
	Size int
}

// Runner decodes task parameters and calls the engine.
type Runner struct {
	engine Engine
}

// NewRunner creates a runner over engine.
func NewRunner(engine Engine) *Runner {
	return &Runner{engine: engine}
}

// Run executes op with the JSON-encoded params.
func (r *Runner) Run(ctx context.Context, op models.Operation, params json.RawMessage, progress ProgressFunc) (*Outcome, error) {
	if progress == nil {
		progress = func(int, string) {}
	}

	switch op {
	case models.OpSearchUser:
		var req models.SearchRequest
		if err := decode(op, params, &req); err != nil {
			return nil, err
		}
		progress(30, "Searching for users: "+req.Query)
		res, err := r.engine.SearchUser(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Outcome{Result: res, Size: len(res.Users), Summary: fmt.Sprintf("Found %d users", len(res.Users))}, nil

	case models.OpFollowing:
		var req models.GraphRequest
		if err := decode(op, params, &req); err != nil {
			return nil, err
		}
		progress(30, "Getting following list for @"+req.Username)
		res, err := r.engine.Following(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Outcome{Result: res, Size: len(res.Users), Summary: fmt.Sprintf("Retrieved %d following users", len(res.Users))}, nil

	case models.OpFollowers:
		var req models.GraphRequest
		if err := decode(op, params, &req); err != nil {
			return nil, err
		}
		progress(30, "Getting followers list for @"+req.Username)
		res, err := r.engine.Followers(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Outcome{Result: res, Size: len(res.Users), Summary: fmt.Sprintf("Retrieved %d followers", len(res.Users))}, nil

	case models.OpTimeline:
		var req models.TimelineRequest
		if err := decode(op, params, &req); err != nil {
			return nil, err
		}
		progress(30, "Getting timeline for @"+req.Username)
		res, err := r.engine.Timeline(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Result:  res,
			Size:    len(res.Timelines),
			Summary: fmt.Sprintf("Retrieved %d tweets, %d hashtags, %d mentions", len(res.Timelines), len(res.Hashtags), len(res.Mentions)),
		}, nil

	case models.OpLogin:
		var req models.LoginRequest
		if err := decode(op, params, &req); err != nil {
			return nil, err
		}
		progress(30, "Attempting login")
		res, err := r.engine.Login(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Outcome{Result: res, Summary: "Login completed successfully"}, nil
	}

	return nil, &scraper.Error{Kind: scraper.KindInvalidRequest, Op: op, Message: "unknown operation"}
}

func decode(op models.Operation, params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return &scraper.Error{Kind: scraper.KindInvalidRequest, Op: op, Message: "invalid parameters", Cause: err}
	}
	return nil
}
