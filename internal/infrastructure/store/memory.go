package store

import (
	"context"
	"sync"

	"oracle-fhir/internal/domain/auth"
)

// Memory holds in-flight code verifiers and the single cached token.
// Everything here is process-local; a restart drops it, which is fine for
// a single-user integration shim but not for anything multi-instance.
type Memory struct {
	mu        sync.Mutex
	verifiers map[string]string
	token     auth.Token
	hasToken  bool
}

func NewMemory() *Memory {
	return &Memory{verifiers: make(map[string]string)}
}

func (m *Memory) SaveVerifier(ctx context.Context, state, verifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifiers[state] = verifier
	return nil
}

// TakeVerifier returns and removes the verifier stored for state.
func (m *Memory) TakeVerifier(ctx context.Context, state string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifiers[state]
	if ok {
		delete(m.verifiers, state)
	}
	return v, ok
}

func (m *Memory) SaveToken(ctx context.Context, t auth.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = t
	m.hasToken = true
	return nil
}

func (m *Memory) Token(ctx context.Context) (auth.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.hasToken
}

func (m *Memory) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = auth.Token{}
	m.hasToken = false
}
