package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `galley manages editorial content for one or more sites.

Core concepts:
- Record: a JSON document with an occ counter. Every write bumps occ by one; concurrent writers are retried, not lost.
- Submission: a piece moving through its site's workflow (draft -> submitted -> ... -> published).
- Transition: a declared edge between two states. Some need scopes; some are handed to a background job and
  only complete when the job reports back.
- Access token: a magic link with optional expiry and access limit.
- Activity: append-only log of what changed, who changed it and the state it left behind.

Default workflow:
1) get_submission (or get_submission_by_slug) to see the current status.
2) list_transitions to see which moves you are allowed to make right now.
3) transition_submission. A job-backed move returns with pending_transition set; the status changes later.
4) list_activity to confirm what happened.

Docs:
- galley://docs/concepts
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "galley://docs/concepts",
		Name:        "docs_concepts",
		Title:       "Concepts and invariants",
		Description: "Records and occ, workflows and transitions, magic links.",
		Content: `# Concepts and invariants

## Records

- ` + "`occ`" + ` starts at 1 and grows by exactly one per successful write.
- ` + "`set_record_field`" + ` reads, modifies and writes conditionally. A lost race reloads and retries;
  after the configured number of attempts it fails with ` + "`CONFLICT`" + `.
- Setting a field to the value it already holds is not a write.

## Workflows

- Only declared transitions are allowed. There are no implicit self transitions.
- A transition may require scopes. Missing any of them fails with ` + "`FORBIDDEN`" + `.
- Simple transitions commit immediately. Job transitions record a pending transition and hand the work to
  the job service; ` + "`complete_job`" + ` applies or discards it.
- While a job is pending, no other job transition can start on that submission.
- The published date is set once and never overwritten. The slug is taken from the title and made unique per site.

## Access tokens

- A token is refused when revoked, expired, or out of accesses, checked in that order.
- Every attempt is logged. Only successful attempts count towards the limit.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
