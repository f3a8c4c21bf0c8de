// Package task はアカウント単位に隔離されたタスク管理のドメインロジックを提供する。
package task

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
)

// 入力値の上限（文字数）。
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

// Input はタスク作成・更新の入力値。
// ポインタのフィールドはnilのとき未指定として扱う。
type Input struct {
	Title       string
	Description string
	// DueDateSet がtrueのときだけDueDateを適用する。DueDateがnilなら期日を消去する。
	DueDate    *time.Time
	DueDateSet bool
	Priority   *model.TaskPriority
	Status     *model.TaskStatus
	Completed  *bool
}

// Service はタスク管理のサービス層。
// 全ての操作は所有者アカウントIDで絞り込み、他アカウントのタスクは存在しないものとして扱う。
type Service struct {
	tasks     repository.TaskRepository
	sanitizer *security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(tasks repository.TaskRepository) *Service {
	return &Service{
		tasks:     tasks,
		sanitizer: security.NewTextSanitizer(),
		now:       time.Now,
	}
}

// List は所有者のタスク一覧を新しい順に返す。
// filterは "" / all / active / completed のいずれか。
func (s *Service) List(ctx context.Context, ownerID, filter string) ([]*model.Task, error) {
	f, ok := model.ParseTaskFilter(filter)
	if !ok {
		return nil, model.NewInvalidFilterError(filter)
	}

	tasks, err := s.tasks.ListByOwner(ctx, ownerID, f)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return tasks, nil
}

// Get は所有者のタスクを1件返す。
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.Task, error) {
	return s.find(ctx, ownerID, id)
}

// Create はタスクを作成する。
// 優先度の既定値はmedium、状態の既定値はpending。
func (s *Service) Create(ctx context.Context, ownerID string, in Input) (*model.Task, error) {
	title, description, err := s.cleanText(in)
	if err != nil {
		return nil, err
	}
	if err := validateEnums(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	task := &model.Task{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Priority:    model.TaskPriorityMedium,
		Status:      model.TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.DueDateSet {
		task.DueDate = in.DueDate
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.Status != nil {
		task.Status = *in.Status
	}
	// 作成時のcompletedは常にfalse

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return task, nil
}

// Update はタスクを更新する。
// タイトルと説明は常に置き換え、それ以外は指定された項目だけを適用する。
func (s *Service) Update(ctx context.Context, ownerID, id string, in Input) (*model.Task, error) {
	title, description, err := s.cleanText(in)
	if err != nil {
		return nil, err
	}
	if err := validateEnums(in); err != nil {
		return nil, err
	}

	task, err := s.find(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	task.Title = title
	task.Description = description
	if in.Completed != nil {
		task.Completed = *in.Completed
	}
	if in.DueDateSet {
		task.DueDate = in.DueDate
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.Status != nil {
		task.Status = *in.Status
	}

	return s.save(ctx, task)
}

// Toggle はタスクの完了フラグを反転する。
func (s *Service) Toggle(ctx context.Context, ownerID, id string) (*model.Task, error) {
	task, err := s.find(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	task.Completed = !task.Completed
	return s.save(ctx, task)
}

// Delete はタスクを削除する。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if !isTaskID(id) {
		return model.NewTaskNotFoundError(id)
	}
	deleted, err := s.tasks.DeleteByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewTaskNotFoundError(id)
	}
	return nil
}

func (s *Service) find(ctx context.Context, ownerID, id string) (*model.Task, error) {
	if !isTaskID(id) {
		return nil, model.NewTaskNotFoundError(id)
	}

	task, err := s.tasks.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError(id)
	}
	return task, nil
}

// isTaskID はUUID形式かどうかを返す。形式外のIDはクエリを発行せずに未検出とする。
func isTaskID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Service) save(ctx context.Context, task *model.Task) (*model.Task, error) {
	task.UpdatedAt = s.now().UTC()
	updated, err := s.tasks.Update(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	// 取得から更新までの間に削除された
	if !updated {
		return nil, model.NewTaskNotFoundError(task.ID)
	}
	return task, nil
}

// cleanText はタイトルと説明からHTMLを除去し、長さを検証する。
func (s *Service) cleanText(in Input) (string, string, error) {
	title := s.sanitizer.Clean(in.Title)
	if title == "" {
		return "", "", model.NewValidationError("タイトルは必須です。")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", "", model.NewValidationError(fmt.Sprintf("タイトルは%d文字以内で入力してください。", MaxTitleLength))
	}

	description := s.sanitizer.Clean(in.Description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", "", model.NewValidationError(fmt.Sprintf("説明は%d文字以内で入力してください。", MaxDescriptionLength))
	}
	return title, description, nil
}

func validateEnums(in Input) error {
	if in.Priority != nil && !in.Priority.Valid() {
		return model.NewValidationError("優先度には low、medium、high のいずれかを指定してください。")
	}
	if in.Status != nil && !in.Status.Valid() {
		return model.NewValidationError("状態には pending、in progress、completed のいずれかを指定してください。")
	}
	return nil
}
