package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewWorkflow = `id: review
site: journal
initial: draft
states: [draft, published]
transitions:
  - from: draft
    to: published
    scopes: [submission:publish]
    sets_published_date: true
`

func writeWorkflow(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestWorkflowValidate(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "review.yaml", reviewWorkflow)

	out, err := run(t, "workflow", "validate", dir)
	require.NoError(t, err)
	assert.Equal(t, "ok: 1 workflow(s) journal/review\n", out)
}

func TestWorkflowValidateRejectsUnknownState(t *testing.T) {
	path := writeWorkflow(t, t.TempDir(), "bad.yaml", `id: bad
site: journal
initial: draft
states: [draft]
transitions:
  - from: draft
    to: published
`)

	_, err := run(t, "workflow", "validate", path)
	require.ErrorContains(t, err, "unknown state")
}

func TestWorkflowShowJSON(t *testing.T) {
	path := writeWorkflow(t, t.TempDir(), "review.yaml", reviewWorkflow)

	out, err := run(t, "--format", "json", "workflow", "show", path)
	require.NoError(t, err)
	var views []struct {
		Site        string `json:"site"`
		Transitions []struct {
			RequiredScopes []string `json:"required_scopes"`
		} `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "journal", views[0].Site)
	require.Len(t, views[0].Transitions, 1)
	assert.Equal(t, []string{"submission:publish"}, views[0].Transitions[0].RequiredScopes)
}
