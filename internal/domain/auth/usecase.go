package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrStateUnknown is returned by Complete when the callback state has no
// stored verifier: either the flow was never started or the callback
// already consumed it.
var ErrStateUnknown = errors.New("unknown or expired state parameter")

// Client talks to the authorization server.
type Client interface {
	AuthCodeURL(state string, p PKCE) string
	Exchange(ctx context.Context, code, verifier string) (Token, error)
}

// Store keeps per-flow verifiers and the single cached token.
type Store interface {
	SaveVerifier(ctx context.Context, state, verifier string) error
	TakeVerifier(ctx context.Context, state string) (string, bool)
	SaveToken(ctx context.Context, t Token) error
	Token(ctx context.Context) (Token, bool)
	Reset(ctx context.Context)
}

type UseCase struct {
	client Client
	store  Store
	now    func() time.Time
}

func NewUseCase(c Client, s Store) *UseCase {
	return &UseCase{client: c, store: s, now: time.Now}
}

// Begin starts a new authorization attempt: fresh PKCE pair, random state,
// verifier stored keyed by state. Concurrent attempts do not clobber each
// other; each state maps to its own verifier until the callback consumes it.
func (u *UseCase) Begin(ctx context.Context) (authURL, state string, err error) {
	p, err := NewPKCE()
	if err != nil {
		return "", "", err
	}
	state, err = randomState()
	if err != nil {
		return "", "", err
	}
	if err := u.store.SaveVerifier(ctx, state, p.Verifier); err != nil {
		return "", "", fmt.Errorf("store verifier: %w", err)
	}
	return u.client.AuthCodeURL(state, p), state, nil
}

// Complete exchanges the authorization code using the verifier stored for
// state. The verifier is consumed either way; the token slot is only
// written on a successful exchange.
func (u *UseCase) Complete(ctx context.Context, state, code string) (Token, error) {
	verifier, ok := u.store.TakeVerifier(ctx, state)
	if !ok {
		return Token{}, ErrStateUnknown
	}
	tok, err := u.client.Exchange(ctx, code, verifier)
	if err != nil {
		return Token{}, err
	}
	if tok.ExpiresAt.IsZero() && tok.ExpiresIn > 0 {
		tok.ExpiresAt = u.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	_ = u.store.SaveToken(ctx, tok)
	return tok, nil
}

// AccessToken returns the cached token if one is present and unexpired.
func (u *UseCase) AccessToken(ctx context.Context) (Token, bool) {
	tok, ok := u.store.Token(ctx)
	if !ok || !tok.Valid(u.now()) {
		return Token{}, false
	}
	return tok, true
}

// Reset drops the cached token, e.g. after the upstream rejected it.
func (u *UseCase) Reset(ctx context.Context) {
	u.store.Reset(ctx)
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
