package model

import "time"

// TaskPriority はタスクの優先度を表す。
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Valid は定義済みの優先度かどうかを返す。
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	default:
		return false
	}
}

// TaskStatus はタスクの進捗状態を表す。
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Valid は定義済みの状態かどうかを返す。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// TaskFilter はタスク一覧の絞り込み条件を表す。
type TaskFilter string

const (
	TaskFilterAll       TaskFilter = "all"
	TaskFilterActive    TaskFilter = "active"
	TaskFilterCompleted TaskFilter = "completed"
)

// ParseTaskFilter はクエリ文字列からTaskFilterを解析する。
// 空文字列はTaskFilterAllとして扱う。
func ParseTaskFilter(s string) (TaskFilter, bool) {
	switch TaskFilter(s) {
	case "", TaskFilterAll:
		return TaskFilterAll, true
	case TaskFilterActive:
		return TaskFilterActive, true
	case TaskFilterCompleted:
		return TaskFilterCompleted, true
	default:
		return "", false
	}
}

// Task はアカウントが所有するタスク（ToDo）を表す。
// OwnerIDは認証済みアカウントIDであり、全ての読み書きはこの値で絞り込まれる。
type Task struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	DueDate     *time.Time
	Priority    TaskPriority
	Status      TaskStatus
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
