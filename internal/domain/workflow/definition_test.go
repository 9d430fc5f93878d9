package workflow_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/galley/internal/domain/workflow"
)

func loadEditorial(t *testing.T) *workflow.Workflow {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "editorial.yaml"))
	require.NoError(t, err)
	w, err := workflow.Parse(data)
	require.NoError(t, err)
	return w
}

func TestParse_Editorial(t *testing.T) {
	w := loadEditorial(t)
	require.Equal(t, "journal-of-graphs", w.TenantID)
	require.Equal(t, workflow.State("draft"), w.Initial)
	require.True(t, w.CanTransition("under_review", "accepted"))
	require.False(t, w.CanTransition("accepted", "under_review"))
	require.True(t, w.IsTerminal("published"))

	tr, ok := w.Lookup("under_review", "accepted")
	require.True(t, ok)
	require.True(t, tr.RequiresJob())
	job := tr.Action.(workflow.JobBased)
	require.Equal(t, "crossref-deposit", job.JobType)
	require.Equal(t, "crossref", job.Options["registrar"])

	tr, ok = w.Lookup("accepted", "published")
	require.True(t, ok)
	require.Equal(t, workflow.Simple{SetsPublishedDate: true, UpdatesSlug: true}, tr.Action)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key": `
id: w
site: s
initial: a
states: [a]
colour: blue
`,
		"undeclared initial": `
id: w
site: s
initial: z
states: [a]
`,
		"edge to unknown state": `
id: w
site: s
initial: a
states: [a]
transitions:
  - {from: a, to: b}
`,
		"duplicate edge": `
id: w
site: s
initial: a
states: [a, b]
transitions:
  - {from: a, to: b}
  - {from: a, to: b}
`,
		"job with simple flags": `
id: w
site: s
initial: a
states: [a, b]
transitions:
  - from: a
    to: b
    updates_slug: true
    job: {type: render}
`,
		"job without type": `
id: w
site: s
initial: a
states: [a, b]
transitions:
  - from: a
    to: b
    job: {}
`,
		"empty": ``,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := workflow.Parse([]byte(doc))
			require.ErrorIs(t, err, workflow.ErrInvalidWorkflow)
		})
	}
}

func TestRegistry(t *testing.T) {
	w := loadEditorial(t)
	reg, err := workflow.NewRegistry(w)
	require.NoError(t, err)

	got, err := reg.Workflow(t.Context(), "journal-of-graphs", "editorial")
	require.NoError(t, err)
	require.Same(t, w, got)

	_, err = reg.Workflow(t.Context(), "other-site", "editorial")
	require.ErrorIs(t, err, workflow.ErrWorkflowNotFound)

	require.ErrorIs(t, reg.Add(w), workflow.ErrInvalidWorkflow)
}

func TestLoadDir(t *testing.T) {
	reg, err := workflow.LoadDir("testdata")
	require.NoError(t, err)
	require.Len(t, reg.List(), 1)
}

func TestDescribe(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, t.Name(), []byte(workflow.Describe(loadEditorial(t))))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"On Graphs":                      "on-graphs",
		"  Über   die Gräphen!  ":        "uber-die-graphen",
		"Crème brûlée: a case study (2)": "creme-brulee-a-case-study-2",
		"---":                            "",
	}
	for in, want := range cases {
		require.Equal(t, want, workflow.Slugify(in), in)
	}
}
