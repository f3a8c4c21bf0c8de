package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/oauth2"
)

// ErrMisconfigured はIdP設定の不備を表す。起動時に検出され、サーバーは起動しない。
var ErrMisconfigured = errors.New("provider misconfiguration")

// ProviderConfig はIdP1件分の認証情報。
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string // 空の場合はIdPの既定スコープを使う
}

// Registry は設定済みIdPの一覧。構築後は読み取り専用で、並行アクセスに安全。
type Registry struct {
	providers map[string]*Provider
	names     []string
}

type registryOptions struct {
	client      *http.Client
	descriptors map[string]ProviderDescriptor
}

// RegistryOption はNewRegistryの挙動を変更する。
type RegistryOption func(*registryOptions)

// WithHTTPClient はIdPとの通信に使うHTTPクライアントを指定する。
func WithHTTPClient(client *http.Client) RegistryOption {
	return func(o *registryOptions) {
		o.client = client
	}
}

// WithDescriptor は同名の組み込み定義を置き換える。
// エンドポイントを差し替えたテストで使う。
func WithDescriptor(d ProviderDescriptor) RegistryOption {
	return func(o *registryOptions) {
		o.descriptors[d.Name] = d
	}
}

// NewRegistry は設定からRegistryを構築する。
// 未知のIdP名、不完全な認証情報、IdPが1件も無い場合はErrMisconfiguredを返す。
func NewRegistry(configs map[string]ProviderConfig, opts ...RegistryOption) (*Registry, error) {
	o := &registryOptions{
		client:      http.DefaultClient,
		descriptors: builtinDescriptors(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", ErrMisconfigured)
	}

	var problems []error
	providers := make(map[string]*Provider, len(configs))
	for name, cfg := range configs {
		descriptor, ok := o.descriptors[name]
		if !ok {
			problems = append(problems, fmt.Errorf("%w: unknown provider %q", ErrMisconfigured, name))
			continue
		}
		if missing := missingFields(cfg); len(missing) > 0 {
			problems = append(problems, fmt.Errorf("%w: %s: missing %s", ErrMisconfigured, name, strings.Join(missing, ", ")))
			continue
		}

		scopes := cfg.Scopes
		if len(scopes) == 0 {
			scopes = descriptor.DefaultScopes
		}
		providers[name] = &Provider{
			descriptor: descriptor,
			oauth: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.CallbackURL,
				Scopes:       scopes,
				Endpoint:     descriptor.Endpoint,
			},
			client: o.client,
		}
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{providers: providers, names: names}, nil
}

func missingFields(cfg ProviderConfig) []string {
	var missing []string
	if strings.TrimSpace(cfg.ClientID) == "" {
		missing = append(missing, "client id")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		missing = append(missing, "client secret")
	}
	if strings.TrimSpace(cfg.CallbackURL) == "" {
		missing = append(missing, "callback url")
	}
	return missing
}

// Get は名前でIdPを取得する。
func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names は設定済みIdP名を昇順で返す。
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
