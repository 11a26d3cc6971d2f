package handler

import (
	"context"
	"net"
	"net/http"
	"strings"

	"marketplace-gateway/internal/model"
)

type contextKey string

const (
	authResultKey  contextKey = "auth_result"
	authCarrierKey contextKey = "auth_carrier"
)

// authCarrier lets middleware that runs outside the authentication layer
// (the audit recorder) observe the identity resolved further down the chain.
type authCarrier struct {
	result *model.AuthResult
}

func withAuthCarrier(ctx context.Context) (context.Context, *authCarrier) {
	carrier := &authCarrier{}
	return context.WithValue(ctx, authCarrierKey, carrier), carrier
}

func withAuthResult(ctx context.Context, result *model.AuthResult) context.Context {
	if carrier, ok := ctx.Value(authCarrierKey).(*authCarrier); ok {
		carrier.result = result
	}
	return context.WithValue(ctx, authResultKey, result)
}

// AuthResultFrom returns the validated credential for the request, or nil
// when the route skipped authentication entirely.
func AuthResultFrom(ctx context.Context) *model.AuthResult {
	result, _ := ctx.Value(authResultKey).(*model.AuthResult)
	return result
}

// roleFrom returns the caller's role, or "" for anonymous callers.
func roleFrom(ctx context.Context) string {
	result := AuthResultFrom(ctx)
	if result == nil || result.Identity == nil {
		return ""
	}
	return result.Identity.Role
}

// clientIP trusts the RealIP middleware having rewritten RemoteAddr, and
// strips any port.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return strings.TrimSpace(ip)
}
