package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// ErrUnauthenticated はリクエストを認証できなかったことを表す。
// 原因（欠落・署名不正・期限切れ・アカウント消失・ストレージ障害）は区別しない。
var ErrUnauthenticated = errors.New("unauthenticated")

// Service はベアラートークンを認証済みアカウントに変換する。
type Service struct {
	secret   []byte
	accounts repository.AccountRepository
	recorder metrics.Recorder
	now      func() time.Time
}

// NewService はServiceを生成する。secretはTokenIssuerと同じ鍵を渡すこと。
// recorderはnilでもよい。
func NewService(secret []byte, accounts repository.AccountRepository, recorder metrics.Recorder, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{secret: secret, accounts: accounts, recorder: recorder, now: now}
}

// Authenticate はトークンを検証し、対応するアカウントを返す。
// 署名検証自体はI/Oを伴わず、I/Oはアカウントの読み込みのみ。
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*model.Account, error) {
	claims, err := VerifyToken(rawToken, s.secret, s.now())
	if err != nil {
		slog.Debug("token rejected", slog.String("reason", rejectReason(err)))
		s.reject()
		return nil, ErrUnauthenticated
	}

	account, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil {
		slog.Error("failed to load account for token",
			slog.String("account_id", claims.AccountID),
			slog.String("error", err.Error()),
		)
		return nil, ErrUnauthenticated
	}
	if account == nil {
		slog.Info("token refers to missing account", slog.String("account_id", claims.AccountID))
		s.reject()
		return nil, ErrUnauthenticated
	}
	return account, nil
}

// GetAccount はIDでアカウントを取得する。見つからない場合はnilを返す。
func (s *Service) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.accounts.FindByID(ctx, id)
}

func (s *Service) reject() {
	if s.recorder != nil {
		s.recorder.RecordTokenRejected()
	}
}

func rejectReason(err error) string {
	if errors.Is(err, ErrTokenExpired) {
		return "expired"
	}
	return "invalid"
}
