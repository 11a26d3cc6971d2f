package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/model"
	"marketplace-gateway/internal/ratelimit"
	"marketplace-gateway/internal/util"
)

// AuditRecorder receives one record per completed request. Implemented by
// audit.Logger.
type AuditRecorder interface {
	Record(record model.AuditLogRecord)
}

// Route categories for rate-limit identifiers. Keeping them named here means
// both limiter strategies see identical composite keys.
const (
	CategoryPublic        = "public"
	CategoryAuthenticated = "api"
	CategorySearch        = "search"
)

// invalidKeyMessage is shared by the missing- and bad-credential paths so a
// probe can't tell which one it hit.
const invalidKeyMessage = "invalid or missing API key"

// Middleware bundles the cross-cutting request checks. Only authentication,
// authorization, and quota may change a request's outcome; auditing and
// caching degrade silently.
type Middleware struct {
	Authenticator *auth.Authenticator
	Limiter       ratelimit.Limiter
	Audit         AuditRecorder
}

// Authenticate validates the presented API key. With required=true an
// absent or invalid credential terminates the request with 401; the body
// never reveals which reason applied.
func (m *Middleware) Authenticate(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := auth.ExtractCredential(r)
			result := m.Authenticator.Validate(r.Context(), credential, required)
			if !result.Valid {
				writeError(w, http.StatusUnauthorized, invalidKeyMessage)
				return
			}
			next.ServeHTTP(w, r.WithContext(withAuthResult(r.Context(), result)))
		})
	}
}

// RequirePermission terminates with 403 when the validated key lacks the
// permission. Distinct from authentication failure by contract.
func (m *Middleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := AuthResultFrom(r.Context())
			if !auth.HasPermission(result, permission) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit enforces a fixed window per composite identifier and emits the
// limit headers on every response. A validated key's own ceiling overrides
// the route default.
func (m *Middleware) RateLimit(category string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := ""
			effectiveLimit := limit
			if result := AuthResultFrom(r.Context()); result != nil && !result.Anonymous {
				credential = result.KeyID
				if result.RateLimit > 0 {
					effectiveLimit = result.RateLimit
				}
			}

			identifier := ratelimit.Key(category, clientIP(r), credential)
			decision := m.Limiter.Check(r.Context(), identifier, effectiveLimit, window)

			resetEpoch := decision.ResetAt.Unix()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(effectiveLimit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetEpoch, 10))

			if !decision.Allowed {
				retryAfter := resetEpoch - time.Now().Unix()
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditRequests appends exactly one record per completed request. The write
// is fire-and-forget; it cannot affect the response.
func (m *Middleware) AuditRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx, carrier := withAuthCarrier(r.Context())
		r = r.WithContext(ctx)

		defer func() {
			record := model.AuditLogRecord{
				Method:       r.Method,
				Path:         r.URL.Path,
				Query:        r.URL.RawQuery,
				StatusCode:   ww.Status(),
				ClientIP:     clientIP(r),
				UserAgent:    r.UserAgent(),
				ResponseTime: time.Since(start).Milliseconds(),
			}
			if result := carrier.result; result != nil && result.Identity != nil {
				record.UserID = result.Identity.UserID
				record.APIKeyID = result.KeyID
			}
			m.Audit.Record(record)
		}()

		next.ServeHTTP(ww, r)
	})
}

// RequestLogger logs every request through the global zap logger.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
