package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-gateway/internal/model"
)

// fakeKeyStore holds keys by hash, the same contract the Scylla repository
// implements. Usage bumps are signalled so tests can wait for the async
// recorder.
type fakeKeyStore struct {
	mu    sync.Mutex
	keys  map[string]*model.APIKey
	users map[string]*model.User
	err   error

	usageRecorded chan string
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{
		keys:          make(map[string]*model.APIKey),
		users:         make(map[string]*model.User),
		usageRecorded: make(chan string, 8),
	}
}

func (s *fakeKeyStore) add(secret string, key *model.APIKey, user *model.User) {
	key.KeyHash = HashKey(secret)
	s.keys[key.KeyHash] = key
	s.users[key.KeyHash] = user
}

func (s *fakeKeyStore) Lookup(ctx context.Context, keyHash string) (*model.APIKey, *model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, nil, s.err
	}
	key, ok := s.keys[keyHash]
	if !ok || !key.IsActive {
		return nil, nil, nil
	}
	return key, s.users[keyHash], nil
}

func (s *fakeKeyStore) RecordUsage(ctx context.Context, keyHash string) error {
	select {
	case s.usageRecorded <- keyHash:
	default:
	}
	return nil
}

func validKey() (*model.APIKey, *model.User) {
	return &model.APIKey{
			KeyID:       "key-1",
			UserID:      "u1",
			Name:        "ci-key",
			Permissions: []string{"apps:read", "analytics:read"},
			RateLimit:   500,
			IsActive:    true,
		}, &model.User{
			UserID:   "u1",
			Email:    "dev@example.com",
			Name:     "Dev One",
			Role:     "seller",
			IsActive: true,
		}
}

func TestAuthenticator_Validate_ValidKey(t *testing.T) {
	store := newFakeKeyStore()
	key, user := validKey()
	store.add("secret-one", key, user)
	a := NewAuthenticator(store)

	result := a.Validate(context.Background(), "secret-one", true)

	require.True(t, result.Valid)
	assert.False(t, result.Anonymous)
	require.NotNil(t, result.Identity)
	assert.Equal(t, "u1", result.Identity.UserID)
	assert.Equal(t, "seller", result.Identity.Role)
	assert.Equal(t, "key-1", result.KeyID)
	assert.Equal(t, []string{"apps:read", "analytics:read"}, result.Permissions)
	assert.Equal(t, 500, result.RateLimit)

	select {
	case hash := <-store.usageRecorded:
		assert.Equal(t, key.KeyHash, hash)
	case <-time.After(time.Second):
		t.Fatal("usage was never recorded")
	}
}

// Concurrent validations of different credentials must never cross: each
// caller gets the identity belonging to its own key, with no shared mutable
// state in the lookup path.
func TestAuthenticator_Validate_ConcurrentCredentialsDoNotCross(t *testing.T) {
	store := newFakeKeyStore()

	const callers = 32
	for i := 0; i < callers; i++ {
		key, user := validKey()
		key.KeyID = fmt.Sprintf("key-%d", i)
		key.UserID = fmt.Sprintf("u%d", i)
		user.UserID = key.UserID
		store.add(fmt.Sprintf("secret-%d", i), key, user)
	}
	a := NewAuthenticator(store)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				result := a.Validate(context.Background(), fmt.Sprintf("secret-%d", i), true)
				if !result.Valid || result.Identity == nil {
					errs <- fmt.Errorf("caller %d: credential rejected", i)
					return
				}
				if want := fmt.Sprintf("u%d", i); result.Identity.UserID != want {
					errs <- fmt.Errorf("caller %d: got identity %s, want %s", i, result.Identity.UserID, want)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestAuthenticator_Validate_MissingCredential(t *testing.T) {
	a := NewAuthenticator(newFakeKeyStore())

	required := a.Validate(context.Background(), "  ", true)
	assert.False(t, required.Valid)

	optional := a.Validate(context.Background(), "", false)
	assert.True(t, optional.Valid)
	assert.True(t, optional.Anonymous)
	assert.Nil(t, optional.Identity)
}

// Unknown, inactive, and expired keys must be indistinguishable from the
// outside: same invalid result, no identity leakage.
func TestAuthenticator_Validate_UniformInvalidResult(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	store := newFakeKeyStore()

	inactiveKey, inactiveUser := validKey()
	inactiveKey.KeyID = "key-inactive"
	inactiveKey.IsActive = false
	store.add("secret-inactive", inactiveKey, inactiveUser)

	expiredKey, expiredUser := validKey()
	expiredKey.KeyID = "key-expired"
	expiry := now.Add(-time.Hour)
	expiredKey.ExpiresAt = &expiry
	store.add("secret-expired", expiredKey, expiredUser)

	a := NewAuthenticator(store)
	a.now = func() time.Time { return now }

	for _, credential := range []string{"secret-unknown", "secret-inactive", "secret-expired"} {
		result := a.Validate(context.Background(), credential, true)
		assert.False(t, result.Valid, "credential %q must be rejected", credential)
		assert.Nil(t, result.Identity, "credential %q must not leak identity", credential)
		assert.Empty(t, result.KeyID)
		assert.Empty(t, result.Permissions)
	}
}

func TestAuthenticator_Validate_FutureExpiryStillValid(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	store := newFakeKeyStore()
	key, user := validKey()
	expiry := now.Add(time.Hour)
	key.ExpiresAt = &expiry
	store.add("secret-one", key, user)

	a := NewAuthenticator(store)
	a.now = func() time.Time { return now }

	assert.True(t, a.Validate(context.Background(), "secret-one", true).Valid)
}

func TestAuthenticator_Validate_StoreErrorFailsClosed(t *testing.T) {
	store := newFakeKeyStore()
	key, user := validKey()
	store.add("secret-one", key, user)
	store.err = errors.New("scylla timeout")

	a := NewAuthenticator(store)

	result := a.Validate(context.Background(), "secret-one", true)
	assert.False(t, result.Valid, "a store error must reject, never allow")
}

func TestHasPermission(t *testing.T) {
	base := &model.AuthResult{
		Valid:       true,
		Identity:    &model.Identity{UserID: "u1", Role: "seller"},
		Permissions: []string{"apps:read"},
	}

	assert.True(t, HasPermission(base, "apps:read"))
	assert.False(t, HasPermission(base, "apps:write"))

	wildcard := &model.AuthResult{
		Valid:       true,
		Identity:    &model.Identity{UserID: "u1", Role: "seller"},
		Permissions: []string{model.PermissionWildcard},
	}
	assert.True(t, HasPermission(wildcard, "anything:at:all"))

	admin := &model.AuthResult{
		Valid:    true,
		Identity: &model.Identity{UserID: "root", Role: RoleAdmin},
	}
	assert.True(t, HasPermission(admin, "apps:write"), "admins bypass per-key permissions")

	anonymous := &model.AuthResult{Valid: true, Anonymous: true}
	assert.False(t, HasPermission(anonymous, "apps:read"))

	assert.False(t, HasPermission(nil, "apps:read"))
	assert.False(t, HasPermission(&model.AuthResult{Valid: false}, "apps:read"))
}

func TestExtractCredential(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/apps", nil)
	assert.Empty(t, ExtractCredential(r))

	r.Header.Set("Authorization", "Bearer bearer-secret")
	assert.Equal(t, "bearer-secret", ExtractCredential(r))

	// The dedicated header wins over the bearer token.
	r.Header.Set(HeaderAPIKey, "header-secret")
	assert.Equal(t, "header-secret", ExtractCredential(r))
}

func TestHashKey(t *testing.T) {
	first := HashKey("secret-one")
	assert.Len(t, first, 64)
	assert.Equal(t, first, HashKey("secret-one"))
	assert.NotEqual(t, first, HashKey("secret-two"))
	assert.NotContains(t, first, "secret")
}
