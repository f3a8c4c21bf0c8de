package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/task"
)

// maxTaskBodyBytes はタスクリクエストボディの上限。
const maxTaskBodyBytes = 64 << 10

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
// 全ての操作は認証済みアカウントIDを所有者として受け取る。
type TaskServiceInterface interface {
	List(ctx context.Context, ownerID, filter string) ([]*model.Task, error)
	Get(ctx context.Context, ownerID, id string) (*model.Task, error)
	Create(ctx context.Context, ownerID string, in task.Input) (*model.Task, error)
	Update(ctx context.Context, ownerID, id string, in task.Input) (*model.Task, error)
	Toggle(ctx context.Context, ownerID, id string) (*model.Task, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// taskResponse はタスクのAPIレスポンス。
type taskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// taskRequest はタスク作成・更新リクエストのボディ。
// due_dateはキーの有無とnullを区別するためRawMessageで受ける。
type taskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	DueDate     json.RawMessage `json:"due_date"`
	Priority    *string         `json:"priority"`
	Status      *string         `json:"status"`
	Completed   *bool           `json:"completed"`
}

// toInput はリクエストをサービス層の入力に変換する。
func (req *taskRequest) toInput() (task.Input, error) {
	in := task.Input{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	}
	if req.Priority != nil {
		p := model.TaskPriority(*req.Priority)
		in.Priority = &p
	}
	if req.Status != nil {
		s := model.TaskStatus(*req.Status)
		in.Status = &s
	}
	if len(req.DueDate) > 0 {
		in.DueDateSet = true
		if !bytes.Equal(req.DueDate, []byte("null")) {
			due, err := parseDueDate(req.DueDate)
			if err != nil {
				return task.Input{}, err
			}
			in.DueDate = &due
		}
	}
	return in, nil
}

// parseDueDate はRFC3339または YYYY-MM-DD 形式の期日を解析する。
func parseDueDate(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, model.NewValidationError("期日は文字列で指定してください。")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, model.NewValidationError("期日は YYYY-MM-DD または RFC3339 形式で指定してください。")
}

// ListTasks は自分のタスク一覧を取得する。
// GET /api/todos?filter=all|active|completed
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	tasks, err := h.service.List(r.Context(), ownerID, r.URL.Query().Get("filter"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = toTaskResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTask はタスクを作成する。
// POST /api/todos
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	in, ok := decodeTaskInput(w, r)
	if !ok {
		return
	}

	created, err := h.service.Create(r.Context(), ownerID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(created))
}

// GetTask はタスクを1件取得する。
// GET /api/todos/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// UpdateTask はタスクを更新する。
// PUT /api/todos/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	in, ok := decodeTaskInput(w, r)
	if !ok {
		return
	}

	updated, err := h.service.Update(r.Context(), ownerID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(updated))
}

// ToggleTask はタスクの完了状態を切り替える。
// PATCH /api/todos/{id}/toggle
func (h *TaskHandler) ToggleTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	toggled, err := h.service.Toggle(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(toggled))
}

// DeleteTask はタスクを削除する。
// DELETE /api/todos/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Todo deleted"})
}

// ownerFromRequest は認証済みアカウントIDを取り出す。取れなければ401を書き込む。
func ownerFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return "", false
	}
	return accountID, true
}

// decodeTaskInput はリクエストボディを解析する。失敗時は400を書き込む。
func decodeTaskInput(w http.ResponseWriter, r *http.Request) (task.Input, bool) {
	var req taskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTaskBodyBytes)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return task.Input{}, false
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, err)
		return task.Input{}, false
	}
	return in, true
}
