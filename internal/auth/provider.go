// Package auth はIdP連携ログイン、アカウント解決、セッショントークンの発行と検証を提供する。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrProviderExchange は認可コード交換またはプロフィール取得の失敗を表す。
var ErrProviderExchange = errors.New("provider exchange failed")

// maxProfileBytes はプロフィールAPI応答の読み取り上限。
const maxProfileBytes = 1 << 20

// ProfileMapper はプロフィールAPIの応答本文をProviderProfileに変換する。
// 返却値のProviderは呼び出し側で設定する。
type ProfileMapper func(body []byte) (*model.ProviderProfile, error)

// ProviderDescriptor はIdPごとに異なる部分をまとめた定義。
type ProviderDescriptor struct {
	Name          string
	Endpoint      oauth2.Endpoint
	DefaultScopes []string
	ProfileURL    string
	// EmailsURL はプロフィールにメールが含まれない場合の補助エンドポイント（GitHubのみ）。
	EmailsURL  string
	MapProfile ProfileMapper
}

// GoogleDescriptor はGoogleの定義を返す。
func GoogleDescriptor() ProviderDescriptor {
	return ProviderDescriptor{
		Name:          "google",
		Endpoint:      google.Endpoint,
		DefaultScopes: []string{"openid", "email", "profile"},
		ProfileURL:    "https://www.googleapis.com/oauth2/v3/userinfo",
		MapProfile:    mapGoogleProfile,
	}
}

// GitHubDescriptor はGitHubの定義を返す。
func GitHubDescriptor() ProviderDescriptor {
	return ProviderDescriptor{
		Name:          "github",
		Endpoint:      github.Endpoint,
		DefaultScopes: []string{"read:user", "user:email"},
		ProfileURL:    "https://api.github.com/user",
		EmailsURL:     "https://api.github.com/user/emails",
		MapProfile:    mapGitHubProfile,
	}
}

// FacebookDescriptor はFacebookの定義を返す。
func FacebookDescriptor() ProviderDescriptor {
	return ProviderDescriptor{
		Name:          "facebook",
		Endpoint:      facebook.Endpoint,
		DefaultScopes: []string{"email", "public_profile"},
		ProfileURL:    "https://graph.facebook.com/me?fields=id,name,email,picture.type(large)",
		MapProfile:    mapFacebookProfile,
	}
}

// builtinDescriptors は対応しているIdPの一覧。
func builtinDescriptors() map[string]ProviderDescriptor {
	return map[string]ProviderDescriptor{
		"google":   GoogleDescriptor(),
		"github":   GitHubDescriptor(),
		"facebook": FacebookDescriptor(),
	}
}

func mapGoogleProfile(body []byte) (*model.ProviderProfile, error) {
	var raw struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse google profile: %w", err)
	}
	return &model.ProviderProfile{
		SubjectID:   raw.Sub,
		DisplayName: raw.Name,
		Email:       raw.Email,
		AvatarURL:   raw.Picture,
	}, nil
}

func mapGitHubProfile(body []byte) (*model.ProviderProfile, error) {
	var raw struct {
		ID        json.Number `json:"id"`
		Login     string      `json:"login"`
		Name      string      `json:"name"`
		Email     string      `json:"email"`
		AvatarURL string      `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse github profile: %w", err)
	}
	name := raw.Name
	if name == "" {
		name = raw.Login
	}
	return &model.ProviderProfile{
		SubjectID:   raw.ID.String(),
		DisplayName: name,
		Email:       raw.Email,
		AvatarURL:   raw.AvatarURL,
	}, nil
}

func mapFacebookProfile(body []byte) (*model.ProviderProfile, error) {
	var raw struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL          string `json:"url"`
				IsSilhouette bool   `json:"is_silhouette"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse facebook profile: %w", err)
	}
	avatar := raw.Picture.Data.URL
	if raw.Picture.Data.IsSilhouette {
		avatar = ""
	}
	return &model.ProviderProfile{
		SubjectID:   raw.ID,
		DisplayName: raw.Name,
		Email:       raw.Email,
		AvatarURL:   avatar,
	}, nil
}

// Provider は設定済みのIdP1件を表す。構築後は読み取り専用。
type Provider struct {
	descriptor ProviderDescriptor
	oauth      *oauth2.Config
	client     *http.Client
}

// Name はIdP名を返す。
func (p *Provider) Name() string {
	return p.descriptor.Name
}

// AuthCodeURL はIdPの認可画面URLを生成する。
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange は認可コードをアクセストークンに交換し、プロフィールを取得する。
// 失敗は全てErrProviderExchangeでラップされる。
func (p *Provider) Exchange(ctx context.Context, code string) (*model.ProviderProfile, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: %s: empty authorization code", ErrProviderExchange, p.Name())
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: token exchange: %w", ErrProviderExchange, p.Name(), err)
	}

	client := p.oauth.Client(ctx, token)
	body, err := fetchJSON(ctx, client, p.descriptor.ProfileURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: fetch profile: %w", ErrProviderExchange, p.Name(), err)
	}

	profile, err := p.descriptor.MapProfile(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderExchange, p.Name(), err)
	}
	profile.Provider = p.Name()
	profile.SubjectID = strings.TrimSpace(profile.SubjectID)
	if profile.SubjectID == "" {
		return nil, fmt.Errorf("%w: %s: profile has no subject id", ErrProviderExchange, p.Name())
	}

	if profile.Email == "" && p.descriptor.EmailsURL != "" {
		// 補助エンドポイントの失敗はメール未提供として扱う
		profile.Email = primaryVerifiedEmail(ctx, client, p.descriptor.EmailsURL)
	}

	return profile, nil
}

// fetchJSON はGETリクエストを送信し、200応答の本文を返す。
func fetchJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// primaryVerifiedEmail はGitHubのメール一覧から主かつ検証済みのアドレスを返す。
func primaryVerifiedEmail(ctx context.Context, client *http.Client, url string) string {
	body, err := fetchJSON(ctx, client, url)
	if err != nil {
		return ""
	}
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.Unmarshal(body, &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}
