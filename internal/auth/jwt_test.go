package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbi-steve/backend/internal/models"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	token, err := svc.Generate("42", models.RoleViewer, []string{"g1"})
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, models.RoleViewer, claims.Role)
	assert.True(t, claims.CanAccessGuild("g1"))
	assert.False(t, claims.CanAccessGuild("g2"))
}

func TestAdminSeesEveryGuild(t *testing.T) {
	c := &Claims{Role: models.RoleAdmin}
	assert.True(t, c.CanAccessGuild("anything"))
}

func TestValidateRejectsBadTokens(t *testing.T) {
	svc := NewJWTService("secret", 1)
	token, err := svc.Generate("42", models.RoleAdmin, nil)
	require.NoError(t, err)

	_, err = NewJWTService("other", 1).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateRejectsUnknownRole(t *testing.T) {
	_, err := NewJWTService("secret", 1).Generate("42", models.Role("root"), nil)
	require.ErrorIs(t, err, ErrInvalidRole)
}
