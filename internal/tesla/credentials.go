package tesla

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// TokenProvider supplies a valid access token, refreshing it when needed.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a fixed access token.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("no access token configured")
	}
	return string(t), nil
}

// RefreshingToken exchanges a refresh token for access tokens and reuses each one until it expires.
type RefreshingToken struct {
	mu     sync.Mutex
	conf   *oauth2.Config
	source oauth2.TokenSource
	seed   *oauth2.Token
}

// RefreshConfig configures NewRefreshingToken.
type RefreshConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	RefreshToken string
	// AccessToken, if set, is used until the first refresh is required.
	AccessToken string
}

func NewRefreshingToken(cfg RefreshConfig) *RefreshingToken {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	// The seed has no expiry; a configured access token is only used when nothing can be refreshed.
	seed := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	if cfg.RefreshToken == "" {
		seed.AccessToken = cfg.AccessToken
	}
	return &RefreshingToken{conf: conf, seed: seed}
}

// AccessToken returns the current token. The token source is created lazily with the
// first caller's context, which the oauth2 package uses for refresh requests.
func (r *RefreshingToken) AccessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.source == nil {
		r.source = oauth2.ReuseTokenSource(nil, r.conf.TokenSource(context.WithoutCancel(ctx), r.seed))
	}
	source := r.source
	r.mu.Unlock()

	tok, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	return tok.AccessToken, nil
}
