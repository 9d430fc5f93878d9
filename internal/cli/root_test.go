package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "galley", cmd.Use)
	assert.Contains(t, cmd.Long, "magic links")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"}, {"migrate"},
		{"workflow", "validate"}, {"workflow", "show"},
		{"token", "create"}, {"token", "check"}, {"token", "revoke"}, {"token", "reactivate"}, {"token", "delete"},
		{"apikey", "add"},
		{"scope", "grant"}, {"scope", "revoke"}, {"scope", "list"},
	}

	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--format", "yaml", "migrate")
	require.ErrorContains(t, err, "invalid format")
}

// run executes the CLI against a fresh SQLite file and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	if os.Getenv("GALLEY_DB_URL") == "" {
		dir := t.TempDir()
		t.Setenv("GALLEY_CONFIG_PATH", "")
		t.Setenv("GALLEY_DB_URL", filepath.Join(dir, "galley.db"))
		t.Setenv("GALLEY_WORKFLOWS_DIR", filepath.Join(dir, "workflows"))
	}
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "sqlite schema up to date\n", out)

	// Running again is a no-op.
	_, err = run(t, "migrate")
	require.NoError(t, err)
}

func TestTokenLifecycle(t *testing.T) {
	out, err := run(t, "--format", "json", "token", "create", "--site", "journal", "--resource", "proof/1", "--limit", "1")
	require.NoError(t, err)
	var tok struct {
		ID          string `json:"id"`
		AccessLimit *int   `json:"access_limit"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &tok))
	require.NotEmpty(t, tok.ID)
	require.Equal(t, 1, *tok.AccessLimit)

	out, err = run(t, "token", "check", tok.ID)
	require.NoError(t, err)
	assert.Equal(t, "valid\n", out)

	out, err = run(t, "token", "check", tok.ID)
	require.NoError(t, err)
	assert.Equal(t, "refused: Access limit reached\n", out)

	out, err = run(t, "token", "revoke", "--site", "journal", tok.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "revoked=true")

	out, err = run(t, "token", "reactivate", "--site", "journal", tok.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "revoked=false")

	_, err = run(t, "token", "delete", "--site", "other", tok.ID)
	require.Error(t, err)

	_, err = run(t, "token", "delete", "--site", "journal", tok.ID)
	require.NoError(t, err)
}

func TestTokenCreateRejectsBadLimit(t *testing.T) {
	for _, limit := range []string{"0", "-1", "1.5", "ten"} {
		_, err := run(t, "token", "create", "--site", "journal", "--resource", "proof", "--limit", limit)
		require.Error(t, err, limit)
	}
}

func TestAPIKeyAndScopes(t *testing.T) {
	key, err := run(t, "apikey", "add", "--site", "journal", "--actor", "ada")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(key, "gk_"))

	_, err = run(t, "scope", "grant", "--site", "journal", "--actor", "ada", "submission:submit", "submission:triage")
	require.NoError(t, err)
	_, err = run(t, "scope", "revoke", "--site", "journal", "--actor", "ada", "submission:triage")
	require.NoError(t, err)

	out, err := run(t, "--format", "json", "scope", "list", "--site", "journal", "--actor", "ada")
	require.NoError(t, err)
	var scopes []string
	require.NoError(t, json.Unmarshal([]byte(out), &scopes))
	assert.Equal(t, []string{"submission:submit"}, scopes)
}
