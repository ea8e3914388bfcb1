package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VectorInstitute/aieng-auth/internal/auth"
	"github.com/VectorInstitute/aieng-auth/internal/config"
	"github.com/VectorInstitute/aieng-auth/internal/store"
)

func testJWT(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	body, err := json.Marshal(map[string]any{"exp": time.Now().Add(expiresIn).Unix()})
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

// fakeProvider counts refresh and revoke calls and answers refreshes with a
// token expiring one hour out.
type fakeProvider struct {
	refreshCalls  atomic.Int32
	revokeCalls   atomic.Int32
	refreshStatus atomic.Int32
	srv           *httptest.Server
	accessToken   func() string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	p := &fakeProvider{}
	p.refreshStatus.Store(http.StatusOK)
	p.accessToken = func() string { return testJWT(t, time.Hour) }

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		p.refreshCalls.Add(1)
		status := int(p.refreshStatus.Load())
		w.WriteHeader(status)
		if status != http.StatusOK {
			io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": p.accessToken(),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		p.revokeCalls.Add(1)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) endpoints() auth.Endpoints {
	return auth.Endpoints{
		TokenURL:  p.srv.URL + "/token",
		RevokeURL: p.srv.URL + "/revoke",
	}
}

func newTestSession(t *testing.T, p *fakeProvider, opts ...Option) (*Session, *auth.Manager) {
	t.Helper()

	cfg := config.AuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/cb",
	}
	client, err := auth.NewClient(cfg, auth.NewInMemoryTransientStore(),
		auth.WithEndpoints(p.endpoints()),
		auth.WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, err)

	manager := auth.NewManager(store.NewMemoryStore())
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	s := New(client, manager, opts...)
	t.Cleanup(s.Close)
	return s, manager
}

func tokensExpiringIn(t *testing.T, d time.Duration) *store.Tokens {
	t.Helper()
	return &store.Tokens{
		AccessToken:  testJWT(t, d),
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
	}
}

func TestSession_ProactiveRefresh(t *testing.T) {
	p := newFakeProvider(t)

	refreshed := make(chan *store.Tokens, 1)
	s, manager := newTestSession(t, p,
		WithRefreshBuffer(time.Second),
		OnRefresh(func(tok *store.Tokens) { refreshed <- tok }),
	)

	// Expires in ~1.2s with a 1s buffer: the timer fires almost at once.
	require.NoError(t, s.Establish(tokensExpiringIn(t, 1200*time.Millisecond)))

	select {
	case tok := <-refreshed:
		assert.NotEmpty(t, tok.AccessToken)
	case <-time.After(3 * time.Second):
		t.Fatal("refresh timer never fired")
	}

	assert.Equal(t, int32(1), p.refreshCalls.Load())
	assert.True(t, manager.IsTokenValid(0), "refreshed token should be stored and valid")
}

func TestSession_RefreshFailureClearsTokens(t *testing.T) {
	p := newFakeProvider(t)
	p.refreshStatus.Store(http.StatusUnauthorized)

	failed := make(chan error, 1)
	s, manager := newTestSession(t, p,
		WithRefreshBuffer(time.Second),
		OnError(func(err error) { failed <- err }),
	)

	require.NoError(t, s.Establish(tokensExpiringIn(t, 1200*time.Millisecond)))

	select {
	case err := <-failed:
		assert.True(t, auth.IsKind(err, auth.KindTokenRefreshFailed), "got %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("refresh failure never surfaced")
	}

	assert.False(t, manager.HasTokens(), "failed refresh clears the token set")
}

func TestSession_EstablishReplacesTimer(t *testing.T) {
	p := newFakeProvider(t)

	refreshed := make(chan *store.Tokens, 2)
	s, _ := newTestSession(t, p,
		WithRefreshBuffer(time.Second),
		OnRefresh(func(tok *store.Tokens) { refreshed <- tok }),
	)

	// Two establishes in a row must leave exactly one live timer.
	require.NoError(t, s.Establish(tokensExpiringIn(t, 1200*time.Millisecond)))
	require.NoError(t, s.Establish(tokensExpiringIn(t, 1400*time.Millisecond)))

	select {
	case <-refreshed:
	case <-time.After(3 * time.Second):
		t.Fatal("refresh timer never fired")
	}

	// Allow a would-be duplicate fire to happen before counting.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int32(1), p.refreshCalls.Load(), "replaced timer must not fire")
}

func TestSession_ExpiredTokensScheduleNothing(t *testing.T) {
	p := newFakeProvider(t)
	s, _ := newTestSession(t, p, WithRefreshBuffer(time.Second))

	require.NoError(t, s.Establish(tokensExpiringIn(t, -time.Minute)))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, p.refreshCalls.Load(), "expired tokens must not schedule a refresh")
}

func TestSession_LogoutCancelsAndRevokes(t *testing.T) {
	p := newFakeProvider(t)
	s, manager := newTestSession(t, p, WithRefreshBuffer(time.Second))

	require.NoError(t, s.Establish(tokensExpiringIn(t, 1200*time.Millisecond)))
	require.NoError(t, s.Logout(context.Background()))

	assert.False(t, manager.HasTokens())
	assert.Equal(t, int32(2), p.revokeCalls.Load(), "access and refresh tokens both revoked")

	time.Sleep(500 * time.Millisecond)
	assert.Zero(t, p.refreshCalls.Load(), "cancelled timer must not fire")
}

func TestSession_Authenticated(t *testing.T) {
	p := newFakeProvider(t)
	s, _ := newTestSession(t, p)

	assert.False(t, s.Authenticated())
	require.NoError(t, s.Establish(tokensExpiringIn(t, time.Hour)))
	assert.True(t, s.Authenticated())
}

func TestSession_CloseStopsScheduling(t *testing.T) {
	p := newFakeProvider(t)
	s, _ := newTestSession(t, p, WithRefreshBuffer(time.Second))

	s.Close()
	require.NoError(t, s.Establish(tokensExpiringIn(t, 1200*time.Millisecond)))

	time.Sleep(500 * time.Millisecond)
	assert.Zero(t, p.refreshCalls.Load(), "closed session must not schedule")
}
