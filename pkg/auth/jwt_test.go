package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *TokenManager {
	return NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour, "codeveda")
}

func TestIssueAndValidate(t *testing.T) {
	m := newTestManager()
	sub := Subject{UserID: uuid.New(), Email: "dr@codeveda.in", Role: "doctor"}

	pair, err := m.Issue(sub)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Access.ID, pair.Refresh.ID)

	claims, err := m.ValidateAccess(pair.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, sub.UserID, claims.UserID)
	assert.Equal(t, "doctor", claims.Role)
	assert.Equal(t, pair.Access.ID, claims.TokenID())

	refresh, err := m.ValidateRefresh(pair.Refresh.Token)
	require.NoError(t, err)
	assert.Equal(t, RefreshToken, refresh.TokenType)
}

func TestValidateRejectsCrossUse(t *testing.T) {
	m := newTestManager()
	pair, err := m.Issue(Subject{UserID: uuid.New(), Role: "patient"})
	require.NoError(t, err)

	_, err = m.ValidateAccess(pair.Refresh.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// same secrets for both types still catches the typ claim
	same := NewTokenManager("s", "s", time.Minute, time.Minute, "codeveda")
	pair, err = same.Issue(Subject{UserID: uuid.New()})
	require.NoError(t, err)
	_, err = same.ValidateAccess(pair.Refresh.Token)
	assert.ErrorIs(t, err, ErrWrongTokenUse)
}

func TestValidateExpired(t *testing.T) {
	m := newTestManager()
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := m.Issue(Subject{UserID: uuid.New()})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateAccess(pair.Access.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := newTestManager().ValidateAccess("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
