package workflow

import (
	"fmt"
	"slices"
)

// State is a workflow status name.
type State string

// Action is how a transition is carried out: Simple or JobBased.
type Action interface {
	isAction()
}

// Simple transitions commit immediately.
type Simple struct {
	SetsPublishedDate bool `json:"sets_published_date,omitempty"`
	UpdatesSlug       bool `json:"updates_slug,omitempty"`
}

// JobBased transitions are handed to the job service; the status does not
// change until the job reports back.
type JobBased struct {
	JobType string         `json:"job_type"`
	Options map[string]any `json:"options,omitempty"`
}

func (Simple) isAction()   {}
func (JobBased) isAction() {}

// Transition is a declared edge of a workflow.
type Transition struct {
	From           State    `json:"from"`
	To             State    `json:"to"`
	RequiredScopes []string `json:"required_scopes,omitempty"`
	Action         Action   `json:"action"`
}

// RequiresJob reports whether the transition is job-backed.
func (t Transition) RequiresJob() bool {
	_, ok := t.Action.(JobBased)
	return ok
}

type edge struct {
	from State
	to   State
}

// Workflow is a read-only, validated state machine owned by one tenant.
type Workflow struct {
	ID       string
	TenantID string
	Name     string
	Initial  State
	States   []State

	transitions []Transition
	byEdge      map[edge]int
}

// New validates and assembles a workflow. States must be unique, the
// initial state must be declared, every edge must join declared states and
// appear once, and job-backed edges need a job type.
func New(id, tenantID, name string, initial State, states []State, transitions []Transition) (*Workflow, error) {
	if id == "" || tenantID == "" {
		return nil, fmt.Errorf("%w: id and tenant are required", ErrInvalidWorkflow)
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: %s declares no states", ErrInvalidWorkflow, id)
	}
	seen := make(map[State]struct{}, len(states))
	for _, s := range states {
		if s == "" {
			return nil, fmt.Errorf("%w: %s has an empty state name", ErrInvalidWorkflow, id)
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("%w: %s declares state %q twice", ErrInvalidWorkflow, id, s)
		}
		seen[s] = struct{}{}
	}
	if _, ok := seen[initial]; !ok {
		return nil, fmt.Errorf("%w: %s initial state %q is not declared", ErrInvalidWorkflow, id, initial)
	}

	w := &Workflow{
		ID:       id,
		TenantID: tenantID,
		Name:     name,
		Initial:  initial,
		States:   slices.Clone(states),
		byEdge:   make(map[edge]int, len(transitions)),
	}
	for _, t := range transitions {
		if _, ok := seen[t.From]; !ok {
			return nil, fmt.Errorf("%w: %s transition from unknown state %q", ErrInvalidWorkflow, id, t.From)
		}
		if _, ok := seen[t.To]; !ok {
			return nil, fmt.Errorf("%w: %s transition to unknown state %q", ErrInvalidWorkflow, id, t.To)
		}
		e := edge{t.From, t.To}
		if _, dup := w.byEdge[e]; dup {
			return nil, fmt.Errorf("%w: %s declares %s -> %s twice", ErrInvalidWorkflow, id, t.From, t.To)
		}
		switch a := t.Action.(type) {
		case nil:
			t.Action = Simple{}
		case JobBased:
			if a.JobType == "" {
				return nil, fmt.Errorf("%w: %s -> %s needs a job type", ErrInvalidWorkflow, t.From, t.To)
			}
		case Simple:
		default:
			return nil, fmt.Errorf("%w: unsupported action %T", ErrInvalidWorkflow, a)
		}
		t.RequiredScopes = slices.Clone(t.RequiredScopes)
		w.byEdge[e] = len(w.transitions)
		w.transitions = append(w.transitions, t)
	}
	return w, nil
}

// HasState reports whether s is declared.
func (w *Workflow) HasState(s State) bool {
	return slices.Contains(w.States, s)
}

// CanTransition is true iff (from, to) is a declared edge. There are no
// implicit self-loops.
func (w *Workflow) CanTransition(from, to State) bool {
	_, ok := w.byEdge[edge{from, to}]
	return ok
}

// Lookup returns the transition for an edge.
func (w *Workflow) Lookup(from, to State) (Transition, bool) {
	i, ok := w.byEdge[edge{from, to}]
	if !ok {
		return Transition{}, false
	}
	return w.transitions[i], true
}

// Outgoing lists edges leaving from, in declaration order.
func (w *Workflow) Outgoing(from State) []Transition {
	var out []Transition
	for _, t := range w.transitions {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}

// IsTerminal reports whether s has no outgoing edges.
func (w *Workflow) IsTerminal(s State) bool {
	return len(w.Outgoing(s)) == 0
}

// Transitions lists every edge in declaration order.
func (w *Workflow) Transitions() []Transition {
	return slices.Clone(w.transitions)
}
