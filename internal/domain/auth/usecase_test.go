package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockClient struct {
	authURL  string
	token    Token
	exchErr  error
	lastCode string
	lastVrfy string
}

func (m *mockClient) AuthCodeURL(state string, p PKCE) string { return m.authURL }
func (m *mockClient) Exchange(ctx context.Context, code, verifier string) (Token, error) {
	m.lastCode = code
	m.lastVrfy = verifier
	return m.token, m.exchErr
}

type mockStore struct {
	verifiers map[string]string
	token     Token
	hasToken  bool
}

func newMockStore() *mockStore {
	return &mockStore{verifiers: map[string]string{}}
}

func (m *mockStore) SaveVerifier(ctx context.Context, state, verifier string) error {
	m.verifiers[state] = verifier
	return nil
}

func (m *mockStore) TakeVerifier(ctx context.Context, state string) (string, bool) {
	v, ok := m.verifiers[state]
	delete(m.verifiers, state)
	return v, ok
}

func (m *mockStore) SaveToken(ctx context.Context, t Token) error {
	m.token = t
	m.hasToken = true
	return nil
}

func (m *mockStore) Token(ctx context.Context) (Token, bool) { return m.token, m.hasToken }

func (m *mockStore) Reset(ctx context.Context) {
	m.token = Token{}
	m.hasToken = false
}

func TestUseCase_Begin(t *testing.T) {
	mc := &mockClient{authURL: "https://example/authorize?x=y"}
	ms := newMockStore()
	uc := NewUseCase(mc, ms)

	url, state, err := uc.Begin(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != mc.authURL {
		t.Fatalf("unexpected auth URL: got=%s want=%s", url, mc.authURL)
	}
	if state == "" {
		t.Fatal("expected non-empty state")
	}
	if v, ok := ms.verifiers[state]; !ok || v == "" {
		t.Fatal("expected verifier stored under state")
	}
}

func TestUseCase_Begin_IndependentFlows(t *testing.T) {
	mc := &mockClient{authURL: "https://example/authorize"}
	ms := newMockStore()
	uc := NewUseCase(mc, ms)

	_, state1, _ := uc.Begin(context.Background())
	_, state2, _ := uc.Begin(context.Background())
	if state1 == state2 {
		t.Fatal("expected distinct states per attempt")
	}
	if len(ms.verifiers) != 2 {
		t.Fatalf("expected both verifiers stored, got %d", len(ms.verifiers))
	}
}

func TestUseCase_Complete_Success(t *testing.T) {
	want := Token{AccessToken: "a", TokenType: "Bearer", Scope: "patient/Patient.read", ExpiresIn: 570}
	mc := &mockClient{token: want}
	ms := newMockStore()
	ms.verifiers["state1"] = "verifier1"
	uc := NewUseCase(mc, ms)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return now }

	got, err := uc.Complete(context.Background(), "state1", "code1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AccessToken != "a" || got.TokenType != "Bearer" {
		t.Fatalf("unexpected token: %#v", got)
	}
	if want := now.Add(570 * time.Second); !got.ExpiresAt.Equal(want) {
		t.Fatalf("unexpected expiry: got=%v want=%v", got.ExpiresAt, want)
	}
	if mc.lastCode != "code1" || mc.lastVrfy != "verifier1" {
		t.Fatalf("exchange called with code=%s verifier=%s", mc.lastCode, mc.lastVrfy)
	}
	if !ms.hasToken {
		t.Fatal("expected token saved")
	}
	if _, ok := ms.verifiers["state1"]; ok {
		t.Fatal("expected verifier consumed")
	}
}

func TestUseCase_Complete_UnknownState(t *testing.T) {
	uc := NewUseCase(&mockClient{}, newMockStore())
	_, err := uc.Complete(context.Background(), "never-issued", "code")
	if !errors.Is(err, ErrStateUnknown) {
		t.Fatalf("expected ErrStateUnknown, got %v", err)
	}
}

func TestUseCase_Complete_ExchangeError_LeavesTokenUnset(t *testing.T) {
	mc := &mockClient{exchErr: errors.New("boom")}
	ms := newMockStore()
	ms.verifiers["state1"] = "verifier1"
	uc := NewUseCase(mc, ms)

	_, err := uc.Complete(context.Background(), "state1", "code")
	if err == nil {
		t.Fatal("expected error")
	}
	if ms.hasToken {
		t.Fatal("token slot must stay unset after a failed exchange")
	}
}

func TestUseCase_AccessToken(t *testing.T) {
	ms := newMockStore()
	uc := NewUseCase(&mockClient{}, ms)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return now }

	if _, ok := uc.AccessToken(context.Background()); ok {
		t.Fatal("expected no token before callback")
	}

	ms.SaveToken(context.Background(), Token{AccessToken: "a", ExpiresAt: now.Add(time.Minute)})
	if _, ok := uc.AccessToken(context.Background()); !ok {
		t.Fatal("expected valid token")
	}

	ms.SaveToken(context.Background(), Token{AccessToken: "a", ExpiresAt: now.Add(-time.Minute)})
	if _, ok := uc.AccessToken(context.Background()); ok {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestUseCase_Reset(t *testing.T) {
	ms := newMockStore()
	uc := NewUseCase(&mockClient{}, ms)
	ms.SaveToken(context.Background(), Token{AccessToken: "a"})

	uc.Reset(context.Background())
	if _, ok := uc.AccessToken(context.Background()); ok {
		t.Fatal("expected token dropped after reset")
	}
}
