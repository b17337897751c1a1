package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tokens, err := NewTokens("s3cret", "restaurant-pos", time.Hour)
	require.NoError(t, err)

	tok, err := tokens.Issue("csh-7", RoleCashier, time.Now())
	require.NoError(t, err)

	claims, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "csh-7", claims.StaffID)
	assert.Equal(t, RoleCashier, claims.Role)

	ctx := IntoContext(context.Background(), claims)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, claims, got)
}

func TestParseRejects(t *testing.T) {
	tokens, err := NewTokens("s3cret", "restaurant-pos", time.Hour)
	require.NoError(t, err)

	expired, err := tokens.Issue("srv-1", RoleServer, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = tokens.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewTokens("s3cret", "someone-else", time.Hour)
	require.NoError(t, err)
	tok, err := foreign.Issue("srv-1", RoleServer, time.Now())
	require.NoError(t, err)
	_, err = tokens.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueValidation(t *testing.T) {
	_, err := NewTokens("", "x", time.Hour)
	assert.Error(t, err)

	tokens, err := NewTokens("s3cret", "", 0)
	require.NoError(t, err)
	_, err = tokens.Issue("srv-1", "owner", time.Now())
	assert.Error(t, err)
	_, err = tokens.Issue("", RoleServer, time.Now())
	assert.Error(t, err)
}
