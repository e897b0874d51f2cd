package httpx

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// tokenLifetime is the locally cached bearer-token lifetime: the target's
// tokens expire server-side after 60 minutes; caching for 55 leaves a
// 5-minute safety margin.
const tokenLifetime = 55 * time.Minute

// AuthConfig names the client-credentials grant used by the authenticated
// tenant variant.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// AuthDecorator wraps a Client with an OAuth2 client-credentials bearer
// token, refreshed on expiry or on an observed 401, and retries the
// offending request at most once with the fresh token. It decorates the
// client rather than the journey executor, so journeys are unaware
// whether they're talking to an authenticated or unauthenticated target.
type AuthDecorator struct {
	*Client

	source oauth2TokenSource

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// oauth2TokenSource is the subset of clientcredentials.Config that
// AuthDecorator depends on, so tests can substitute a fake.
type oauth2TokenSource interface {
	Token(ctx context.Context) (accessToken string, err error)
}

type ccTokenSource struct {
	cfg *clientcredentials.Config
}

func (s ccTokenSource) Token(ctx context.Context) (string, error) {
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// NewAuthDecorator wraps client with a bearer token obtained via the
// client-credentials grant described by cfg. It fetches an initial token
// eagerly so configuration errors surface at startup rather than on the
// first journey.
func NewAuthDecorator(ctx context.Context, client *Client, cfg AuthConfig) (*AuthDecorator, error) {
	d := &AuthDecorator{
		Client: client,
		source: ccTokenSource{cfg: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}},
	}
	if err := d.refresh(ctx); err != nil {
		return nil, fmt.Errorf("httpx: initial auth token fetch: %w", err)
	}
	return d, nil
}

func (d *AuthDecorator) refresh(ctx context.Context) error {
	tok, err := d.source.Token(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.token = tok
	d.expiresAt = time.Now().Add(tokenLifetime)
	d.mu.Unlock()
	return nil
}

func (d *AuthDecorator) currentToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	tok, fresh := d.token, time.Now().Before(d.expiresAt)
	d.mu.Unlock()
	if fresh {
		return tok, nil
	}
	if err := d.refresh(ctx); err != nil {
		return "", err
	}
	d.mu.Lock()
	tok = d.token
	d.mu.Unlock()
	return tok, nil
}

// Do attaches the current bearer token to req and delegates to the
// wrapped Client. On a 401 it refreshes the token once and retries the
// request exactly once with the fresh token.
func (d *AuthDecorator) Do(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	tok, err := d.currentToken(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("httpx: obtain auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, body, err := d.Client.Do(ctx, cloneRequest(req))
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, body, err
	}

	if refreshErr := d.refresh(ctx); refreshErr != nil {
		return resp, body, err
	}
	tok, tokErr := d.currentToken(ctx)
	if tokErr != nil {
		return resp, body, err
	}
	retry := cloneRequest(req)
	retry.Header.Set("Authorization", "Bearer "+tok)
	return d.Client.Do(ctx, retry)
}

// cloneRequest returns a copy of req safe to resend. req.Clone only copies
// the header/URL, not the body stream: a POST's Body has already been
// drained by the first Do, so the clone must get a fresh reader from
// GetBody (populated by NewRequest for in-memory bodies) or the retry
// would send an empty body.
func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		clone.Body, _ = req.GetBody()
	}
	return clone
}
