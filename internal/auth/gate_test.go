package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOpaqueStore struct {
	mu      sync.Mutex
	tokens  map[string]OpaqueToken
	err     error
	lookups int
}

func newMemOpaqueStore() *memOpaqueStore {
	return &memOpaqueStore{tokens: make(map[string]OpaqueToken)}
}

func (s *memOpaqueStore) FindOpaqueToken(_ context.Context, token string) (OpaqueToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups++
	if s.err != nil {
		return OpaqueToken{}, s.err
	}
	record, ok := s.tokens[token]
	if !ok {
		return OpaqueToken{}, ErrOpaqueTokenNotFound
	}
	return record, nil
}

type gateFixture struct {
	gate     *Gate
	issuer   *TokenIssuer
	store    *memOpaqueStore
	clock    *fakeClock
	registry *prometheus.Registry
	metrics  *Metrics
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	clock := &fakeClock{now: testNow}
	issuer := newTestIssuer(clock)
	store := newMemOpaqueStore()
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	return &gateFixture{
		gate:     NewGate(issuer, store, nil).WithClock(clock.Now).WithMetrics(metrics),
		issuer:   issuer,
		store:    store,
		clock:    clock,
		registry: registry,
		metrics:  metrics,
	}
}

func TestGate_Authenticate(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	access, _, err := f.issuer.IssueAccess(42, "testuser")
	require.NoError(t, err)
	refresh, _, err := f.issuer.IssueRefresh(42, "testuser")
	require.NoError(t, err)

	f.store.tokens["opaque-valid"] = OpaqueToken{UserID: 7, Username: "client-user", ExpiresAt: testNow.Add(24 * time.Hour)}
	f.store.tokens["opaque-expired"] = OpaqueToken{UserID: 7, Username: "client-user", ExpiresAt: testNow.Add(-time.Second)}
	f.store.tokens["opaque-at-expiry"] = OpaqueToken{UserID: 7, Username: "client-user", ExpiresAt: testNow}

	tests := []struct {
		name        string
		token       string
		wantErr     error
		wantSubject int64
		wantExp     int64
	}{
		{name: "signed access token", token: access, wantSubject: 42, wantExp: testNow.Add(time.Hour).Unix()},
		{name: "signed refresh token", token: refresh, wantErr: ErrUnauthenticated},
		{name: "valid opaque token", token: "opaque-valid", wantSubject: 7, wantExp: testNow.Add(24 * time.Hour).Unix()},
		{name: "expired opaque token", token: "opaque-expired", wantErr: ErrUnauthenticated},
		{name: "opaque token at expiry", token: "opaque-at-expiry", wantErr: ErrUnauthenticated},
		{name: "unknown token", token: "nope", wantErr: ErrUnauthenticated},
		{name: "empty", token: "", wantErr: ErrMissingBearer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := f.gate.Authenticate(context.Background(), tt.token)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, claims.SubjectID)
			assert.Equal(t, TokenKindAccess, claims.Kind)
			assert.Equal(t, tt.wantExp, claims.ExpiresAt)
			assert.Greater(t, claims.ExpiresAt, claims.IssuedAt)
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.gateTotal.WithLabelValues(familySigned, resultAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.gateTotal.WithLabelValues(familyOpaque, resultAccepted)))
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.gateTotal.WithLabelValues(familyNone, resultRejected)))
}

func TestGate_OpaqueClaimsUseCurrentTime(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	f.store.tokens["tok"] = OpaqueToken{UserID: 3, Username: "reader", ExpiresAt: testNow.Add(time.Hour)}
	f.clock.now = testNow.Add(10 * time.Minute)

	claims, err := f.gate.Authenticate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, Claims{
		SubjectID: 3,
		Username:  "reader",
		IssuedAt:  testNow.Add(10 * time.Minute).Unix(),
		ExpiresAt: testNow.Add(time.Hour).Unix(),
		Kind:      TokenKindAccess,
	}, claims)
}

func TestGate_StoreFailureFailsClosed(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	f.store.err = errors.New("connection reset")

	_, err := f.gate.Authenticate(context.Background(), "some-opaque-token")
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.gateTotal.WithLabelValues(familyOpaque, resultError)))

	access, _, err := f.issuer.IssueAccess(1, "a")
	require.NoError(t, err)
	_, err = f.gate.Authenticate(context.Background(), access)
	require.NoError(t, err, "signed path does not touch the store")
}

func TestGate_VerifiersAreIndependent(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	access, _, err := f.issuer.IssueAccess(42, "testuser")
	require.NoError(t, err)
	f.store.tokens["opaque"] = OpaqueToken{UserID: 9, Username: "x", ExpiresAt: testNow.Add(time.Hour)}

	assert.True(t, f.gate.VerifySigned(access).Valid)
	assert.False(t, f.gate.VerifySigned("opaque").Valid)

	verdict, err := f.gate.VerifyOpaque(context.Background(), access)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)

	verdict, err = f.gate.VerifyOpaque(context.Background(), "opaque")
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, int64(9), verdict.Claims.SubjectID)
}

func TestGate_OpaqueCache(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisTokenCache(client, time.Minute)
	cache.now = f.clock.Now
	f.gate.WithCache(cache)

	f.store.tokens["tok"] = OpaqueToken{UserID: 5, Username: "cached", ExpiresAt: testNow.Add(30 * time.Minute)}

	for i := 0; i < 3; i++ {
		claims, err := f.gate.Authenticate(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, int64(5), claims.SubjectID)
	}
	assert.Equal(t, 1, f.store.lookups)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.cacheMisses))

	// A cached record is still expiry-checked against the clock.
	f.clock.now = testNow.Add(30 * time.Minute)
	_, err := f.gate.Authenticate(context.Background(), "tok")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestGate_CacheFailureFallsThrough(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	f.gate.WithCache(NewRedisTokenCache(client, time.Minute))
	mr.Close()

	f.store.tokens["tok"] = OpaqueToken{UserID: 5, Username: "x", ExpiresAt: testNow.Add(time.Hour)}

	claims, err := f.gate.Authenticate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(5), claims.SubjectID)
}

func TestGate_Middleware(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	access, _, err := f.issuer.IssueAccess(42, "testuser")
	require.NoError(t, err)
	f.store.tokens["opaque"] = OpaqueToken{UserID: 7, Username: "delegate", ExpiresAt: testNow.Add(time.Hour)}

	var seen Claims
	handler := f.gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		seen = claims
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name        string
		header      string
		wantStatus  int
		wantSubject int64
		wantBody    string
	}{
		{name: "signed", header: "Bearer " + access, wantStatus: http.StatusNoContent, wantSubject: 42},
		{name: "opaque", header: "Bearer opaque", wantStatus: http.StatusNoContent, wantSubject: 7},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"missing or malformed authorization header"}`},
		{name: "wrong scheme", header: "Basic " + access, wantStatus: http.StatusUnauthorized, wantBody: `{"error":"missing or malformed authorization header"}`},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"invalid or expired token"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = Claims{}
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			assert.Equal(t, tt.wantSubject, seen.SubjectID)
		})
	}
}

func TestClaimsFromContextMissing(t *testing.T) {
	t.Parallel()

	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)
}
