package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/core/id"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", time.Minute)
	org := id.New()

	token, err := svc.IssueToken("dispatcher-1", org, "dispatcher")
	require.NoError(t, err)

	actor, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dispatcher-1", actor.UserID)
	assert.Equal(t, org, actor.OrganizationID)
	assert.Equal(t, []string{"dispatcher"}, actor.Roles)
}

func TestJWTService_RejectsForeignSecret(t *testing.T) {
	token, err := NewJWTService("other", time.Minute).IssueToken("u", id.New())
	require.NoError(t, err)

	_, err = NewJWTService("secret", time.Minute).ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsExpired(t *testing.T) {
	svc := NewJWTService("secret", time.Minute)
	svc.ttl = -time.Minute
	token, err := svc.IssueToken("u", id.New())
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
