package workflow

import (
	"fmt"
	"strings"
)

// Describe renders a workflow as plain text for the CLI.
func Describe(w *Workflow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s", w.ID)
	if w.Name != "" {
		fmt.Fprintf(&b, " (%s)", w.Name)
	}
	fmt.Fprintf(&b, " site=%s\n", w.TenantID)
	fmt.Fprintf(&b, "initial: %s\n", w.Initial)

	b.WriteString("states:\n")
	for _, s := range w.States {
		if w.IsTerminal(s) {
			fmt.Fprintf(&b, "  %s (terminal)\n", s)
		} else {
			fmt.Fprintf(&b, "  %s\n", s)
		}
	}

	b.WriteString("transitions:\n")
	for _, t := range w.transitions {
		fmt.Fprintf(&b, "  %s -> %s [%s]", t.From, t.To, describeAction(t.Action))
		if len(t.RequiredScopes) > 0 {
			fmt.Fprintf(&b, " scopes=%s", strings.Join(t.RequiredScopes, ","))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func describeAction(a Action) string {
	switch a := a.(type) {
	case JobBased:
		return "job " + a.JobType
	case Simple:
		parts := []string{"simple"}
		if a.SetsPublishedDate {
			parts = append(parts, "published-date")
		}
		if a.UpdatesSlug {
			parts = append(parts, "slug")
		}
		return strings.Join(parts, " ")
	default:
		return "unknown"
	}
}
