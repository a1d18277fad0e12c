package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbi-steve/backend/internal/auth"
	"github.com/sbi-steve/backend/internal/models"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommandIssuesValidToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("JWT_EXPIRE_HOURS", "2")

	out, err := runCLI(t, "token", "--user", "42", "--role", "viewer", "--guild", "g1", "--guild", "g2")
	require.NoError(t, err)

	claims, err := auth.NewJWTService("cli-secret", 2).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, models.RoleViewer, claims.Role)
	assert.Equal(t, []string{"g1", "g2"}, claims.Guilds)
}

func TestTokenCommandValidatesFlags(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	_, err := runCLI(t, "token", "--role", "admin")
	assert.ErrorContains(t, err, "--user is required")

	_, err = runCLI(t, "token", "--user", "1", "--role", "owner")
	assert.ErrorContains(t, err, "unknown role")

	_, err = runCLI(t, "token", "--user", "1", "--role", "viewer")
	assert.ErrorContains(t, err, "at least one --guild")

	out, err := runCLI(t, "token", "--user", "1", "--role", "ADMIN")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestCommandsList(t *testing.T) {
	out, err := runCLI(t, "commands", "list")
	require.NoError(t, err)
	for _, name := range []string{"/join", "/stop", "/transcript", "/meetings", "/add_member", "/check_member", "/list_members", "/help"} {
		assert.Contains(t, out, name)
	}
}

func TestMigrateList(t *testing.T) {
	out, err := runCLI(t, "migrate", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "001_")
	assert.Contains(t, out, "002_")
}
