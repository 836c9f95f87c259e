package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/justmadeid/social-services/internal/cache"
	"github.com/justmadeid/social-services/internal/database"
	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/scraper"
	"github.com/justmadeid/social-services/internal/tasks"
)

type fakeControls struct {
	cacheStatus string
	cleared     bool
	invalidated string
	invalidErr  error
}

func (f *fakeControls) LoginStatus(context.Context) models.LoginStatus {
	return models.LoginStatus{StateFilePath: "/tmp/state.json", CookiesCount: 3, Assessment: "valid"}
}

func (f *fakeControls) ClearSession() error {
	f.cleared = true
	return nil
}

func (f *fakeControls) InvalidateUser(_ context.Context, username string) (int, error) {
	f.invalidated = username
	if f.invalidErr != nil {
		return 0, f.invalidErr
	}
	return 2, nil
}

func (f *fakeControls) CacheHealth(context.Context) cache.HealthStatus {
	return cache.HealthStatus{Status: f.cacheStatus, Backend: "badger"}
}

func newTestAPI(t *testing.T) (humatest.TestAPI, *tasks.SQLiteStore, *fakeControls) {
	t.Helper()

	db, isMemory, err := database.Open(database.Memory)
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	store, err := tasks.NewSQLiteStore(db, isMemory, logging.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	controls := &fakeControls{cacheStatus: "healthy"}
	_, api := humatest.New(t)
	Register(api, New(tasks.NewQueue(store, logging.Discard()), controls, logging.Discard()))
	return api, store, controls
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	api, _, controls := newTestAPI(t)

	resp := api.Get("/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	body := decode[HealthResponse](t, resp.Body.Bytes())
	if body.Status != "healthy" {
		t.Errorf("Status = %q, want %q", body.Status, "healthy")
	}
	if body.Session.CookiesCount != 3 {
		t.Errorf("Session.CookiesCount = %d, want 3", body.Session.CookiesCount)
	}

	controls.cacheStatus = "unhealthy"
	body = decode[HealthResponse](t, api.Get("/health").Body.Bytes())
	if body.Status != "degraded" {
		t.Errorf("Status with cache down = %q, want %q", body.Status, "degraded")
	}
}

func TestSubmitAndPoll(t *testing.T) {
	api, store, _ := newTestAPI(t)

	tests := []struct {
		name string
		path string
		body map[string]any
		op   models.Operation
	}{
		{"search", "/v1/scrape/search", map[string]any{"q": "golang", "limit": 5}, models.OpSearchUser},
		{"following", "/v1/scrape/following", map[string]any{"username": "alice"}, models.OpFollowing},
		{"followers", "/v1/scrape/followers", map[string]any{"username": "alice", "limit": 10}, models.OpFollowers},
		{"timeline", "/v1/scrape/timeline", map[string]any{"username": "alice", "count": 40, "include_analysis": false}, models.OpTimeline},
		{"login", "/v1/session/login", map[string]any{"credential_name": "main"}, models.OpLogin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.Post(tt.path, tt.body)
			if resp.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want 202: %s", resp.Code, resp.Body.String())
			}
			sub := decode[SubmitResponse](t, resp.Body.Bytes())
			if sub.TaskID == "" || sub.Status != tasks.StatusPending {
				t.Fatalf("submit response = %+v", sub)
			}

			stored, err := store.Get(context.Background(), sub.TaskID)
			if err != nil {
				t.Fatalf("store.Get() error = %v", err)
			}
			if stored.Operation != tt.op {
				t.Errorf("Operation = %q, want %q", stored.Operation, tt.op)
			}

			poll := api.Get("/v1/tasks/" + sub.TaskID)
			if poll.Code != http.StatusOK {
				t.Fatalf("poll status = %d, want 200", poll.Code)
			}
			task := decode[tasks.Task](t, poll.Body.Bytes())
			if task.Status != tasks.StatusPending || task.Message != "Task queued" {
				t.Errorf("polled task = %+v", task)
			}
		})
	}
}

func TestSubmit_TimelineParamsRoundTrip(t *testing.T) {
	api, store, _ := newTestAPI(t)

	resp := api.Post("/v1/scrape/timeline", map[string]any{"username": "alice", "count": 40, "include_analysis": false})
	sub := decode[SubmitResponse](t, resp.Body.Bytes())

	stored, err := store.Get(context.Background(), sub.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	req := decode[models.TimelineRequest](t, stored.Params)
	if req.Username != "alice" || req.Count != 40 || req.WantsAnalysis() {
		t.Errorf("params = %+v, want alice/40/no analysis", req)
	}
}

func TestSubmit_Validation(t *testing.T) {
	api, _, _ := newTestAPI(t)

	tests := []struct {
		name string
		path string
		body map[string]any
	}{
		{"empty query", "/v1/scrape/search", map[string]any{"q": ""}},
		{"limit too high", "/v1/scrape/search", map[string]any{"q": "go", "limit": 1000}},
		{"missing username", "/v1/scrape/timeline", map[string]any{"count": 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.Post(tt.path, tt.body)
			if resp.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", resp.Code)
			}
		})
	}
}

func TestTask_NotFound(t *testing.T) {
	api, _, _ := newTestAPI(t)

	if resp := api.Get("/v1/tasks/missing"); resp.Code != http.StatusNotFound {
		t.Errorf("GET status = %d, want 404", resp.Code)
	}
	if resp := api.Delete("/v1/tasks/missing"); resp.Code != http.StatusNotFound {
		t.Errorf("DELETE status = %d, want 404", resp.Code)
	}
}

func TestCancelTask(t *testing.T) {
	api, _, _ := newTestAPI(t)

	sub := decode[SubmitResponse](t, api.Post("/v1/scrape/search", map[string]any{"q": "go"}).Body.Bytes())

	resp := api.Delete("/v1/tasks/" + sub.TaskID)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	task := decode[tasks.Task](t, resp.Body.Bytes())
	if task.Status != tasks.StatusRevoked {
		t.Errorf("Status = %q, want %q", task.Status, tasks.StatusRevoked)
	}

	if resp := api.Delete("/v1/tasks/" + sub.TaskID); resp.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", resp.Code)
	}
}

func TestSession(t *testing.T) {
	api, _, controls := newTestAPI(t)

	status := decode[models.LoginStatus](t, api.Get("/v1/session").Body.Bytes())
	if status.StateFilePath != "/tmp/state.json" {
		t.Errorf("StateFilePath = %q", status.StateFilePath)
	}

	if resp := api.Delete("/v1/session"); resp.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", resp.Code)
	}
	if !controls.cleared {
		t.Error("ClearSession not called")
	}
}

func TestInvalidateUser(t *testing.T) {
	api, _, controls := newTestAPI(t)

	resp := api.Delete("/v1/cache/users/Alice")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	body := decode[map[string]any](t, resp.Body.Bytes())
	if body["removed"] != float64(2) {
		t.Errorf("removed = %v, want 2", body["removed"])
	}
	if controls.invalidated != "Alice" {
		t.Errorf("invalidated = %q, want Alice", controls.invalidated)
	}

	controls.invalidErr = &scraper.Error{Kind: scraper.KindCacheUnavailable, Message: "down", Cause: errors.New("badger closed")}
	if resp := api.Delete("/v1/cache/users/alice"); resp.Code != http.StatusServiceUnavailable {
		t.Errorf("status with cache down = %d, want 503", resp.Code)
	}

	controls.invalidErr = &scraper.Error{Kind: scraper.KindInvalidRequest, Message: "invalid username"}
	if resp := api.Delete("/v1/cache/users/alice"); resp.Code != http.StatusBadRequest {
		t.Errorf("status with bad username = %d, want 400", resp.Code)
	}
}
