package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/model"
	"marketplace-gateway/internal/ratelimit"
)

// stubKeyStore serves a single key, mirroring the Scylla repository's
// contract of (nil, nil, nil) for anything unknown.
type stubKeyStore struct {
	key  *model.APIKey
	user *model.User
}

func (s *stubKeyStore) Lookup(ctx context.Context, keyHash string) (*model.APIKey, *model.User, error) {
	if s.key != nil && s.key.KeyHash == keyHash {
		return s.key, s.user, nil
	}
	return nil, nil, nil
}

func (s *stubKeyStore) RecordUsage(ctx context.Context, keyHash string) error {
	return nil
}

// stubLimiter returns a fixed decision and remembers what it was asked.
type stubLimiter struct {
	decision       ratelimit.Decision
	lastIdentifier string
	lastLimit      int
}

func (l *stubLimiter) Check(_ context.Context, identifier string, limit int, _ time.Duration) ratelimit.Decision {
	l.lastIdentifier = identifier
	l.lastLimit = limit
	return l.decision
}

func (l *stubLimiter) Policy() ratelimit.FailPolicy {
	return ratelimit.FailNone
}

func newTestMiddleware(secret string, key *model.APIKey, user *model.User) *Middleware {
	store := &stubKeyStore{}
	if key != nil {
		key.KeyHash = auth.HashKey(secret)
		store.key = key
		store.user = user
	}
	return &Middleware{
		Authenticator: auth.NewAuthenticator(store),
		Limiter:       &stubLimiter{decision: ratelimit.Decision{Allowed: true}},
	}
}

func sellerKey() (*model.APIKey, *model.User) {
	return &model.APIKey{
			KeyID:       "key-1",
			UserID:      "u1",
			Permissions: []string{"apps:read"},
			RateLimit:   500,
			IsActive:    true,
		}, &model.User{
			UserID: "u1",
			Role:   "seller",
		}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAuthenticate_Required_MissingKey(t *testing.T) {
	mw := newTestMiddleware("", nil, nil)
	rec := httptest.NewRecorder()

	mw.Authenticate(true)(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/users/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, invalidKeyMessage, decodeEnvelope(t, rec).Error)
}

// A wrong key and no key at all must produce byte-identical error bodies.
func TestAuthenticate_Required_UniformRejection(t *testing.T) {
	key, user := sellerKey()
	mw := newTestMiddleware("real-secret", key, user)

	missing := httptest.NewRecorder()
	mw.Authenticate(true)(okHandler()).ServeHTTP(missing, httptest.NewRequest("GET", "/api/v1/users/me", nil))

	wrong := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/users/me", nil)
	req.Header.Set(auth.HeaderAPIKey, "wrong-secret")
	mw.Authenticate(true)(okHandler()).ServeHTTP(wrong, req)

	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, missing.Body.String(), wrong.Body.String())
}

func TestAuthenticate_Optional_AnonymousPasses(t *testing.T) {
	mw := newTestMiddleware("", nil, nil)

	var seen *model.AuthResult
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AuthResultFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	mw.Authenticate(false)(inner).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/apps", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.True(t, seen.Anonymous)
}

func TestAuthenticate_ValidKeyPopulatesContext(t *testing.T) {
	key, user := sellerKey()
	mw := newTestMiddleware("real-secret", key, user)

	var seen *model.AuthResult
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AuthResultFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/users/me", nil)
	req.Header.Set(auth.HeaderAPIKey, "real-secret")
	rec := httptest.NewRecorder()
	mw.Authenticate(true)(inner).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "key-1", seen.KeyID)
	assert.Equal(t, "u1", seen.Identity.UserID)
}

func TestRateLimit_HeadersOnAllowedRequest(t *testing.T) {
	mw := newTestMiddleware("", nil, nil)
	resetAt := time.Now().Add(45 * time.Second)
	mw.Limiter = &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 42, ResetAt: resetAt}}

	req := httptest.NewRequest("GET", "/api/v1/apps", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	rec := httptest.NewRecorder()
	mw.RateLimit(CategoryPublic, 60, time.Minute)(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "42", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "", rec.Header().Get("Retry-After"))

	limiter := mw.Limiter.(*stubLimiter)
	assert.Equal(t, "public:1.2.3.4:", limiter.lastIdentifier)
}

func TestRateLimit_DeniedRequest(t *testing.T) {
	mw := newTestMiddleware("", nil, nil)
	resetAt := time.Now().Add(30 * time.Second)
	mw.Limiter = &stubLimiter{decision: ratelimit.Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}}

	rec := httptest.NewRecorder()
	mw.RateLimit(CategoryPublic, 60, time.Minute)(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/apps", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decodeEnvelope(t, rec).Error)
}

// A key's own ceiling replaces the route default, and the key identity joins
// the composite identifier so authenticated callers don't share the
// anonymous bucket.
func TestRateLimit_KeyCeilingOverridesRouteDefault(t *testing.T) {
	key, user := sellerKey()
	mw := newTestMiddleware("real-secret", key, user)
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true}}
	mw.Limiter = limiter

	chain := mw.Authenticate(true)(mw.RateLimit(CategoryAuthenticated, 300, time.Minute)(okHandler()))

	req := httptest.NewRequest("GET", "/api/v1/users/me", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	req.Header.Set(auth.HeaderAPIKey, "real-secret")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, limiter.lastLimit)
	assert.Equal(t, "api:1.2.3.4:key-1", limiter.lastIdentifier)
	assert.Equal(t, "500", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRequirePermission(t *testing.T) {
	key, user := sellerKey()
	mw := newTestMiddleware("real-secret", key, user)

	granted := mw.Authenticate(true)(mw.RequirePermission("apps:read")(okHandler()))
	denied := mw.Authenticate(true)(mw.RequirePermission("apps:write")(okHandler()))

	req := httptest.NewRequest("GET", "/api/v1/apps", nil)
	req.Header.Set(auth.HeaderAPIKey, "real-secret")

	rec := httptest.NewRecorder()
	granted.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "insufficient permissions", decodeEnvelope(t, rec).Error)
}

type captureRecorder struct {
	records []model.AuditLogRecord
}

func (c *captureRecorder) Record(record model.AuditLogRecord) {
	c.records = append(c.records, record)
}

// One record per completed request, populated from the wrapped writer and
// the identity resolved further down the chain.
func TestAuditRequests_RecordsCompletedRequest(t *testing.T) {
	key, user := sellerKey()
	mw := newTestMiddleware("real-secret", key, user)
	recorder := &captureRecorder{}
	mw.Audit = recorder

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	chain := mw.AuditRequests(mw.Authenticate(true)(inner))

	req := httptest.NewRequest("POST", "/api/v1/apps/app-42/invalidate?force=1", nil)
	req.RemoteAddr = "10.0.0.9:34712"
	req.Header.Set(auth.HeaderAPIKey, "real-secret")
	req.Header.Set("User-Agent", "gateway-test/1.0")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	require.Len(t, recorder.records, 1)
	got := recorder.records[0]
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, "/api/v1/apps/app-42/invalidate", got.Path)
	assert.Equal(t, "force=1", got.Query)
	assert.Equal(t, http.StatusCreated, got.StatusCode)
	assert.Equal(t, "10.0.0.9", got.ClientIP)
	assert.Equal(t, "gateway-test/1.0", got.UserAgent)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "key-1", got.APIKeyID)
	assert.GreaterOrEqual(t, got.ResponseTime, int64(0))
}

// Rejected requests are audited too, with no identity attached.
func TestAuditRequests_RecordsRejectedRequestAnonymously(t *testing.T) {
	mw := newTestMiddleware("", nil, nil)
	recorder := &captureRecorder{}
	mw.Audit = recorder

	chain := mw.AuditRequests(mw.Authenticate(true)(okHandler()))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/users/me", nil))

	require.Len(t, recorder.records, 1)
	got := recorder.records[0]
	assert.Equal(t, http.StatusUnauthorized, got.StatusCode)
	assert.Empty(t, got.UserID)
	assert.Empty(t, got.APIKeyID)
}

func TestWriteData_SanitizesByRole(t *testing.T) {
	payload := map[string]interface{}{
		"user_id":       "u1",
		"email":         "dev@example.com",
		"password_hash": "x",
	}

	// Anonymous caller: contact info and secrets are gone.
	rec := httptest.NewRecorder()
	writeData(rec, httptest.NewRequest("GET", "/api/v1/users/me", nil), http.StatusOK, payload)

	resp := decodeEnvelope(t, rec)
	require.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "u1", data["user_id"])
	assert.NotContains(t, data, "email")
	assert.NotContains(t, data, "password_hash")

	// Admin caller: contact info survives, secrets still don't.
	adminResult := &model.AuthResult{
		Valid:    true,
		Identity: &model.Identity{UserID: "root", Role: auth.RoleAdmin},
	}
	req := httptest.NewRequest("GET", "/api/v1/users/me", nil)
	req = req.WithContext(withAuthResult(req.Context(), adminResult))

	rec = httptest.NewRecorder()
	writeData(rec, req, http.StatusOK, payload)

	data = decodeEnvelope(t, rec).Data.(map[string]interface{})
	assert.Equal(t, "dev@example.com", data["email"])
	assert.NotContains(t, data, "password_hash")
}
