package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/powerboard/tui/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Config describes the identity backend.
type Config struct {
	TokenURL      string
	DeviceAuthURL string
	ClientID      string
	ClientSecret  string
	Audience      string
	Scopes        []string
	// HTTPClient is used for every call to the identity backend.
	// Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Provider renews access tokens with the refresh-token grant. The refresh
// token lives in the long-lived storage scope so renewal survives restarts.
type Provider struct {
	oauth    oauth2.Config
	audience string
	client   *http.Client
	local    storage.Store
	ctx      context.Context

	mu      sync.Mutex
	ts      oauth2.TokenSource
	refresh string
	loading bool
	loaded  chan struct{}
	once    sync.Once
}

// NewProvider creates a provider. Call Load before the first Token.
func NewProvider(cfg Config, local storage.Store) *Provider {
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	return &Provider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:      cfg.TokenURL,
				DeviceAuthURL: cfg.DeviceAuthURL,
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
		audience: cfg.Audience,
		client:   cfg.HTTPClient,
		local:    local,
		ctx:      ctx,
		loading:  true,
		loaded:   make(chan struct{}),
	}
}

// Load reads the persisted refresh token. It ends the loading phase even
// when nothing is stored.
func (p *Provider) Load(ctx context.Context) error {
	defer p.finishLoading()
	if err := ctx.Err(); err != nil {
		return err
	}
	rt, ok, err := p.local.Get(storage.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}
	if !ok || rt == "" {
		log.Debug().Msg("no stored refresh token")
		return nil
	}
	p.mu.Lock()
	p.refresh = rt
	p.ts = oauth2.ReuseTokenSource(nil, refresher{p: p})
	p.mu.Unlock()
	return nil
}

func (p *Provider) finishLoading() {
	p.once.Do(func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
		close(p.loaded)
	})
}

// Loading reports whether Load has not finished yet.
func (p *Provider) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Loaded is closed once the loading phase ends.
func (p *Provider) Loaded() <-chan struct{} {
	return p.loaded
}

// Token returns a valid access token, renewing it silently when it is
// about to expire.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	ts := p.ts
	p.mu.Unlock()
	if ts == nil {
		return "", ErrNoSession
	}
	tok, err := ts.Token()
	if err != nil {
		return "", &CredentialError{Op: "renewal", Err: err}
	}
	return tok.AccessToken, nil
}

// Reset forgets the cached credential. Persisted state is untouched.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.ts = nil
	p.refresh = ""
	p.mu.Unlock()
}

// Adopt installs a freshly issued token, persisting its refresh token.
func (p *Provider) Adopt(tok *oauth2.Token) error {
	if tok.RefreshToken == "" {
		return fmt.Errorf("token response has no refresh token (is offline_access requested?)")
	}
	if err := p.local.Set(storage.KeyRefreshToken, tok.RefreshToken); err != nil {
		return err
	}
	if sub := Subject(tok.AccessToken); sub != "" {
		_ = p.local.Set(storage.KeySubject, sub)
	}
	fillExpiry(tok)
	p.mu.Lock()
	p.refresh = tok.RefreshToken
	p.ts = oauth2.ReuseTokenSource(tok, refresher{p: p})
	p.mu.Unlock()
	p.finishLoading()
	return nil
}

func (p *Provider) currentRefresh() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refresh
}

// rotate persists a new refresh token returned by the backend.
func (p *Provider) rotate(rt string) {
	p.mu.Lock()
	changed := rt != "" && rt != p.refresh
	if changed {
		p.refresh = rt
	}
	p.mu.Unlock()
	if !changed {
		return
	}
	if err := p.local.Set(storage.KeyRefreshToken, rt); err != nil {
		log.Warn().Err(err).Msg("persist rotated refresh token")
	}
}

// refresher performs one refresh-token grant per call. Caching is left
// to the ReuseTokenSource wrapping it.
type refresher struct {
	p *Provider
}

func (r refresher) Token() (*oauth2.Token, error) {
	rt := r.p.currentRefresh()
	if rt == "" {
		return nil, ErrNoSession
	}
	tok, err := r.p.oauth.TokenSource(r.p.ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		return nil, err
	}
	fillExpiry(tok)
	r.p.rotate(tok.RefreshToken)
	log.Debug().Time("expiry", tok.Expiry).Msg("access token renewed")
	return tok, nil
}

// fillExpiry uses the JWT exp claim when the token endpoint omitted
// expires_in; a zero expiry would otherwise be cached forever.
func fillExpiry(tok *oauth2.Token) {
	if !tok.Expiry.IsZero() {
		return
	}
	tok.Expiry = Expiry(tok.AccessToken)
}
