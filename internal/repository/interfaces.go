// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrIdentityConflict は (provider, provider_user_id) のバインディングが既に存在するため
// アカウント作成が一意制約違反になったことを示す。
// 呼び出し側はバインディングの検索をやり直すこと。
var ErrIdentityConflict = errors.New("identity binding already exists")

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// CreateWithIdentity はアカウントとidentityを同一トランザクションで作成する。
	// バインディングが既に存在する場合はErrIdentityConflictを返す。
	CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// ListByAccountID はアカウントに紐付くidentityを作成順に返す。
	ListByAccountID(ctx context.Context, accountID string) ([]*model.Identity, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
// 全てのメソッドは所有者アカウントIDを必須とし、他アカウントのタスクには一切触れない。
type TaskRepository interface {
	// ListByOwner は所有者のタスク一覧をcreated_at降順で返す。
	ListByOwner(ctx context.Context, ownerID string, filter model.TaskFilter) ([]*model.Task, error)

	// FindByIDAndOwner はIDと所有者でタスクを取得する。
	// 存在しない場合も他アカウントの所有である場合もnilを返す。
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Task, error)

	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// Update はタスクを上書き更新する。
	// 対象が存在しない、または所有者が異なる場合はfalseを返す。
	Update(ctx context.Context, task *model.Task) (bool, error)

	// DeleteByIDAndOwner はタスクを削除する。
	// 対象が存在しない、または所有者が異なる場合はfalseを返す。
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error)
}
