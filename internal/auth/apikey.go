package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketplace-gateway/internal/model"
	"marketplace-gateway/internal/util"
)

const (
	// HeaderAPIKey is the primary credential header.
	HeaderAPIKey = "X-API-Key"

	// RoleAdmin bypasses per-key permission checks and field sanitization.
	RoleAdmin = "admin"

	usageTimeout = 5 * time.Second
)

// KeyStore looks up credentials in the durable store. Lookup returns
// (nil, nil, nil) when no active key matches the hash.
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*model.APIKey, *model.User, error)
	RecordUsage(ctx context.Context, keyHash string) error
}

// Authenticator validates API keys against the durable credential store.
// Policy is fail closed: any store error yields an invalid result, and
// unknown, inactive, and expired keys are indistinguishable to the caller.
type Authenticator struct {
	store KeyStore

	now func() time.Time
}

func NewAuthenticator(store KeyStore) *Authenticator {
	return &Authenticator{
		store: store,
		now:   time.Now,
	}
}

// Validate checks credential. An absent credential is valid-and-anonymous
// unless required. On success the key's usage counter and last-used
// timestamp are bumped asynchronously; that side effect never fails the
// request.
func (a *Authenticator) Validate(ctx context.Context, credential string, required bool) *model.AuthResult {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		if required {
			return &model.AuthResult{Valid: false}
		}
		return &model.AuthResult{Valid: true, Anonymous: true}
	}

	key, user, err := a.store.Lookup(ctx, HashKey(credential))
	if err != nil {
		util.Error("api key lookup failed", zap.Error(err))
		return &model.AuthResult{Valid: false}
	}
	if key == nil || user == nil {
		return &model.AuthResult{Valid: false}
	}
	if key.Expired(a.now()) {
		return &model.AuthResult{Valid: false}
	}

	go a.recordUsage(key.KeyID, key.KeyHash)

	return &model.AuthResult{
		Valid: true,
		Identity: &model.Identity{
			UserID: user.UserID,
			Email:  user.Email,
			Name:   user.Name,
			Role:   user.Role,
		},
		KeyID:       key.KeyID,
		Permissions: key.Permissions,
		RateLimit:   key.RateLimit,
	}
}

func (a *Authenticator) recordUsage(keyID, keyHash string) {
	ctx, cancel := context.WithTimeout(context.Background(), usageTimeout)
	defer cancel()

	if err := a.store.RecordUsage(ctx, keyHash); err != nil {
		util.Warn("failed to record api key usage",
			zap.String("key_id", keyID),
			zap.Error(err))
	}
}

// HasPermission reports whether result may perform the required permission.
// An admin identity always passes; otherwise the key's permission set must
// contain the exact permission or the wildcard.
func HasPermission(result *model.AuthResult, required string) bool {
	if result == nil || !result.Valid || result.Anonymous {
		return false
	}
	if result.Identity != nil && result.Identity.Role == RoleAdmin {
		return true
	}
	for _, p := range result.Permissions {
		if p == required || p == model.PermissionWildcard {
			return true
		}
	}
	return false
}

// ExtractCredential pulls the API key from the X-API-Key header or an
// Authorization bearer token. Returns "" when neither is present.
func ExtractCredential(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}

// HashKey returns the SHA-256 hex of an API key secret. Keys are stored
// server-side only as this hash.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
