package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// FailPolicy names what a limiter does when its backing store is
// unreachable. Tests assert the policy directly.
type FailPolicy string

const (
	// FailOpen allows the request when the store is down, favoring
	// availability over strict enforcement.
	FailOpen FailPolicy = "open"
	// FailNone marks strategies with no external dependency.
	FailNone FailPolicy = "none"
)

// Decision is the uniform allow/deny result shared by both strategies.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is the uniform fixed-window contract. The window is anchored at
// the first request for an identifier and never extended by later requests.
type Limiter interface {
	Check(ctx context.Context, identifier string, limit int, window time.Duration) Decision
	Policy() FailPolicy
}

// Key builds the composite identifier both strategies share, so identical
// logical limits apply regardless of strategy. The credential part is empty
// for anonymous callers.
func Key(category, clientIP, credential string) string {
	return fmt.Sprintf("%s:%s:%s", category, clientIP, credential)
}
