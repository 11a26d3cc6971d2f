package handler

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-gateway/internal/model"
)

// The audit middleware wraps the chain from the outside, so it cannot see
// context values added later by the auth middleware. The carrier bridges
// that: identity resolved downstream must surface in the outer frame.
func TestAuthCarrier_SeesDownstreamIdentity(t *testing.T) {
	ctx, carrier := withAuthCarrier(context.Background())
	require.Nil(t, carrier.result)

	result := &model.AuthResult{Valid: true, KeyID: "key-1"}
	inner := withAuthResult(ctx, result)

	assert.Same(t, result, carrier.result)
	assert.Same(t, result, AuthResultFrom(inner))
}

func TestWithAuthResult_NoCarrierIsFine(t *testing.T) {
	result := &model.AuthResult{Valid: true}
	ctx := withAuthResult(context.Background(), result)
	assert.Same(t, result, AuthResultFrom(ctx))
}

func TestRoleFrom(t *testing.T) {
	assert.Equal(t, "", roleFrom(context.Background()))

	anon := withAuthResult(context.Background(), &model.AuthResult{Valid: true, Anonymous: true})
	assert.Equal(t, "", roleFrom(anon))

	seller := withAuthResult(context.Background(), &model.AuthResult{
		Valid:    true,
		Identity: &model.Identity{UserID: "u1", Role: "seller"},
	})
	assert.Equal(t, "seller", roleFrom(seller))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/apps", nil)
	r.RemoteAddr = "10.0.0.9:34712"
	assert.Equal(t, "10.0.0.9", clientIP(r))

	// RealIP middleware rewrites RemoteAddr without a port.
	r.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", clientIP(r))
}
