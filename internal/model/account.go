// Package model はドメインモデルを定義する。
package model

import "time"

// Account はサービス利用者のローカルアカウントを表す。
// 初回ログイン時に作成され、本システムから削除されることはない。
type Account struct {
	ID          string
	DisplayName string
	Email       string // IdPが提供しない場合は空文字列
	AvatarURL   string // IdPが提供しない場合は空文字列
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Identity は外部IdPとの紐付け情報（バインディング）を表す。
// (Provider, ProviderUserID) の組は全アカウントを通して一意。
// 1つのアカウントが複数IdPのバインディングを持つことができる。
type Identity struct {
	ID             string
	AccountID      string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// ProviderProfile はOAuthコールバック1回分だけ存在するIdPのプロフィール。
// 永続化はされず、アカウント解決に使われた後に破棄される。
type ProviderProfile struct {
	Provider    string // "google", "github", "facebook"
	SubjectID   string // IdPが発行する安定したユーザー識別子
	DisplayName string
	Email       string
	AvatarURL   string
}
