package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpggio/galley/internal/domain/workflow"
)

type workflowView struct {
	ID          string                `json:"id"`
	Site        string                `json:"site"`
	Name        string                `json:"name,omitempty"`
	Initial     workflow.State        `json:"initial"`
	States      []workflow.State      `json:"states"`
	Transitions []workflow.Transition `json:"transitions"`
}

func newWorkflowView(w *workflow.Workflow) workflowView {
	return workflowView{
		ID:          w.ID,
		Site:        w.TenantID,
		Name:        w.Name,
		Initial:     w.Initial,
		States:      w.States,
		Transitions: w.Transitions(),
	}
}

// NewWorkflowCommand creates the workflow command group.
func NewWorkflowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect workflow definitions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file-or-dir>",
		Short: "Check workflow definitions without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflows, err := loadWorkflowPath(args[0])
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(workflows))
			for _, w := range workflows {
				ids = append(ids, w.TenantID+"/"+w.ID)
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format,
				map[string]any{"valid": true, "workflows": ids},
				fmt.Sprintf("ok: %d workflow(s) %s", len(ids), strings.Join(ids, " ")))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <file-or-dir>",
		Short: "Print states and transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflows, err := loadWorkflowPath(args[0])
			if err != nil {
				return err
			}
			views := make([]workflowView, 0, len(workflows))
			var text strings.Builder
			for i, w := range workflows {
				views = append(views, newWorkflowView(w))
				if i > 0 {
					text.WriteByte('\n')
				}
				text.WriteString(workflow.Describe(w))
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, views, strings.TrimRight(text.String(), "\n"))
		},
	})

	return cmd
}

func loadWorkflowPath(path string) ([]*workflow.Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		registry, err := workflow.LoadDir(path)
		if err != nil {
			return nil, err
		}
		return registry.List(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	w, err := workflow.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []*workflow.Workflow{w}, nil
}
