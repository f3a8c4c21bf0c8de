package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/task"
)

const testTaskID = "7b0c5f7e-2f55-4c3e-9d55-0a1f8f4a9b10"

// taskRouter はTaskHandlerを認証済みコンテキストで呼び出すchi.Routerを返す。
func taskRouter(svc TaskServiceInterface, accountID string) http.Handler {
	h := NewTaskHandler(svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if accountID != "" {
				r = r.WithContext(middleware.ContextWithAccountID(r.Context(), accountID))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/api/todos", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/", h.CreateTask)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTask)
			r.Put("/", h.UpdateTask)
			r.Delete("/", h.DeleteTask)
			r.Patch("/toggle", h.ToggleTask)
		})
	})
	return r
}

func sampleTask(owner string) *model.Task {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &model.Task{
		ID:        testTaskID,
		OwnerID:   owner,
		Title:     "牛乳を買う",
		Priority:  model.TaskPriorityMedium,
		Status:    model.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestTaskHandler_ListTasks_PassesOwnerAndFilter(t *testing.T) {
	svc := &mockTaskService{
		listFn: func(ctx context.Context, ownerID, filter string) ([]*model.Task, error) {
			if ownerID != "acc-1" {
				t.Errorf("ownerID = %q, want acc-1", ownerID)
			}
			if filter != "active" {
				t.Errorf("filter = %q, want active", filter)
			}
			return []*model.Task{sampleTask(ownerID)}, nil
		},
	}

	w := httptest.NewRecorder()
	taskRouter(svc, "acc-1").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/todos?filter=active", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}
	var body []map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("len = %d, want 1", len(body))
	}
	if body[0]["id"] != testTaskID || body[0]["title"] != "牛乳を買う" {
		t.Errorf("body = %v", body[0])
	}
	if _, ok := body[0]["owner_id"]; ok {
		t.Error("owner_id should not be exposed")
	}
	if v, ok := body[0]["due_date"]; !ok || v != nil {
		t.Errorf("due_date = %v, want null", v)
	}
}

func TestTaskHandler_ListTasks_EmptyIsArray(t *testing.T) {
	svc := &mockTaskService{
		listFn: func(ctx context.Context, ownerID, filter string) ([]*model.Task, error) {
			return []*model.Task{}, nil
		},
	}
	w := httptest.NewRecorder()
	taskRouter(svc, "acc-1").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/todos", nil))

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestTaskHandler_CreateTask_DecodesBody(t *testing.T) {
	var got task.Input
	svc := &mockTaskService{
		createFn: func(ctx context.Context, ownerID string, in task.Input) (*model.Task, error) {
			got = in
			return sampleTask(ownerID), nil
		},
	}

	body := `{"title":"報告書","description":"月次","due_date":"2026-04-01","priority":"high","status":"in progress"}`
	req := httptest.NewRequest(http.MethodPost, "/api/todos", strings.NewReader(body))
	w := httptest.NewRecorder()
	taskRouter(svc, "acc-1").ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Result().StatusCode)
	}
	if got.Title != "報告書" || got.Description != "月次" {
		t.Errorf("title/description = %q/%q", got.Title, got.Description)
	}
	if !got.DueDateSet || got.DueDate == nil || !got.DueDate.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("due date = %v (set=%v)", got.DueDate, got.DueDateSet)
	}
	if got.Priority == nil || *got.Priority != model.TaskPriorityHigh {
		t.Errorf("priority = %v", got.Priority)
	}
	if got.Status == nil || *got.Status != model.TaskStatusInProgress {
		t.Errorf("status = %v", got.Status)
	}
	if got.Completed != nil {
		t.Errorf("completed = %v, want nil when absent", *got.Completed)
	}
}

func TestTaskHandler_UpdateTask_DueDatePresence(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantSet bool
		wantNil bool
	}{
		{"absent", `{"title":"x"}`, false, true},
		{"null", `{"title":"x","due_date":null}`, true, true},
		{"rfc3339", `{"title":"x","due_date":"2026-04-01T09:00:00+09:00"}`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got task.Input
			svc := &mockTaskService{
				updateFn: func(ctx context.Context, ownerID, id string, in task.Input) (*model.Task, error) {
					got = in
					return sampleTask(ownerID), nil
				},
			}
			req := httptest.NewRequest(http.MethodPut, "/api/todos/"+testTaskID, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			taskRouter(svc, "acc-1").ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Result().StatusCode)
			}
			if got.DueDateSet != tt.wantSet || (got.DueDate == nil) != tt.wantNil {
				t.Errorf("DueDateSet=%v DueDate=%v", got.DueDateSet, got.DueDate)
			}
			if tt.name == "rfc3339" && !got.DueDate.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("DueDate = %v, want 2026-04-01T00:00:00Z", got.DueDate)
			}
		})
	}
}

func TestTaskHandler_BadBodies(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"not_json", `{title`, model.ErrCodeInvalidRequest},
		{"wrong_type", `{"title":42}`, model.ErrCodeInvalidRequest},
		{"bad_due_date", `{"title":"x","due_date":"next week"}`, model.ErrCodeValidation},
		{"numeric_due_date", `{"title":"x","due_date":20260401}`, model.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockTaskService{
				createFn: func(ctx context.Context, ownerID string, in task.Input) (*model.Task, error) {
					t.Fatal("service must not be called")
					return nil, nil
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/api/todos", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			taskRouter(svc, "acc-1").ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Result().StatusCode)
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestTaskHandler_ServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not_found", model.NewTaskNotFoundError(testTaskID), http.StatusNotFound},
		{"validation", model.NewValidationError("タイトルは必須です。"), http.StatusBadRequest},
		{"invalid_filter", model.NewInvalidFilterError("x"), http.StatusBadRequest},
		{"storage", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockTaskService{
				getFn: func(ctx context.Context, ownerID, id string) (*model.Task, error) {
					return nil, tt.err
				},
			}
			w := httptest.NewRecorder()
			taskRouter(svc, "acc-1").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/todos/"+testTaskID, nil))

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusInternalServerError {
				if body := decodeError(t, w); strings.Contains(body.Message, "connection reset") {
					t.Error("internal error detail must not leak")
				}
			}
		})
	}
}

func TestTaskHandler_ToggleAndDelete(t *testing.T) {
	svc := &mockTaskService{
		toggleFn: func(ctx context.Context, ownerID, id string) (*model.Task, error) {
			tk := sampleTask(ownerID)
			tk.Completed = true
			return tk, nil
		},
		deleteFn: func(ctx context.Context, ownerID, id string) error {
			if id != testTaskID {
				t.Errorf("id = %q", id)
			}
			return nil
		},
	}
	router := taskRouter(svc, "acc-1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/todos/"+testTaskID+"/toggle", nil))
	var toggled map[string]any
	json.NewDecoder(w.Result().Body).Decode(&toggled)
	if w.Result().StatusCode != http.StatusOK || toggled["completed"] != true {
		t.Errorf("toggle: status=%d body=%v", w.Result().StatusCode, toggled)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/todos/"+testTaskID, nil))
	var deleted map[string]string
	json.NewDecoder(w.Result().Body).Decode(&deleted)
	if w.Result().StatusCode != http.StatusOK || deleted["message"] != "Todo deleted" {
		t.Errorf("delete: status=%d body=%v", w.Result().StatusCode, deleted)
	}
}

func TestTaskHandler_NoAccount_Returns401(t *testing.T) {
	w := httptest.NewRecorder()
	taskRouter(&mockTaskService{}, "").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/todos", nil))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}
