package service

import (
	"testing"
	"time"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndVerify(t *testing.T) {
	tokens, err := NewTokenService("secret", 0, fixedClock(baseTime))
	require.NoError(t, err)

	user := &model.User{ID: "u1", Email: "a@example.com", Role: model.RoleBuyer}
	sess, err := tokens.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(DefaultSessionTTL), sess.ExpiresAt)
	assert.Equal(t, "u1", sess.User.ID)

	id, err := tokens.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "a@example.com", id.Email)
	assert.Equal(t, model.RoleBuyer, id.Role)
	assert.True(t, id.ExpiresAt.Equal(sess.ExpiresAt))
}

func TestTokenService_Rejects(t *testing.T) {
	tokens, err := NewTokenService("secret", time.Hour, fixedClock(baseTime))
	require.NoError(t, err)
	sess, err := tokens.Issue(&model.User{ID: "u1", Email: "a@example.com", Role: model.RoleOperator})
	require.NoError(t, err)

	later, err := NewTokenService("secret", time.Hour, fixedClock(baseTime.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = later.Verify(sess.Token)
	assert.ErrorIs(t, err, apperr.ErrExpiredSession)

	other, err := NewTokenService("other-secret", time.Hour, fixedClock(baseTime))
	require.NoError(t, err)
	_, err = other.Verify(sess.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidSession)

	for _, bad := range []string{"", "garbage", sess.Token + "x"} {
		_, err = tokens.Verify(bad)
		assert.ErrorIs(t, err, apperr.ErrInvalidSession, bad)
	}

	_, err = NewTokenService("", time.Hour, nil)
	assert.Error(t, err)
}
