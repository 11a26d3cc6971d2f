package model

import "time"

// PermissionWildcard in a key's permission set grants every permission.
const PermissionWildcard = "*"

// -------------------- API KEY MODEL --------------------

// APIKey is a caller credential. Only the SHA-256 hash of the secret is ever
// stored; the plaintext exists client-side only. Keys are deactivated, never
// deleted.
type APIKey struct {
	KeyID       string     `json:"key_id" db:"key_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	KeyHash     string     `json:"-" db:"key_hash"`
	Name        string     `json:"name" db:"name"`
	Permissions []string   `json:"permissions" db:"permissions"`
	RateLimit   int        `json:"rate_limit" db:"rate_limit"` // requests per window
	IsActive    bool       `json:"is_active" db:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	LastUsedAt  time.Time  `json:"last_used_at" db:"last_used_at"`
	UsageCount  int64      `json:"usage_count" db:"usage_count"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the key has an expiry in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// -------------------- USER MODEL --------------------

type User struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Role      string    `json:"role" db:"role"` // "user", "seller", "admin"
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Identity is the resolved caller attached to an authenticated request.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// AuthResult is the outcome of credential validation. Invalid results carry
// no detail about why validation failed.
type AuthResult struct {
	Valid       bool      `json:"valid"`
	Anonymous   bool      `json:"anonymous"`
	Identity    *Identity `json:"identity,omitempty"`
	KeyID       string    `json:"key_id,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	RateLimit   int       `json:"rate_limit,omitempty"`
}

// -------------------- MARKETPLACE MODELS --------------------

// App is one marketplace listing as cached and served by the gateway.
type App struct {
	AppID       string    `json:"app_id" db:"app_id"`
	SellerID    string    `json:"seller_id" db:"seller_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category" db:"category"`
	PriceCents  int64     `json:"price_cents" db:"price_cents"`
	Rating      float64   `json:"rating" db:"rating"`
	IsPublished bool      `json:"is_published" db:"is_published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SearchResult is a page of app hits from the search backend.
type SearchResult struct {
	Query string   `json:"query"`
	Total int64    `json:"total"`
	Apps  []App    `json:"apps"`
	Took  int64    `json:"took_ms"`
	IDs   []string `json:"-"`
}

// -------------------- AUDIT MODEL --------------------

// AuditLogRecord is one append-only row per handled request. The gateway
// never reads these back; they feed external analytics.
type AuditLogRecord struct {
	RecordID     string    `json:"record_id"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Query        string    `json:"query"`
	StatusCode   int       `json:"status_code"`
	UserID       string    `json:"user_id,omitempty"`
	APIKeyID     string    `json:"api_key_id,omitempty"`
	ClientIP     string    `json:"client_ip"`
	UserAgent    string    `json:"user_agent"`
	ResponseTime int64     `json:"response_time_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
