package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Definition is the YAML form of a workflow.
type Definition struct {
	ID          string                 `yaml:"id"`
	Site        string                 `yaml:"site"`
	Name        string                 `yaml:"name"`
	Initial     string                 `yaml:"initial"`
	States      []string               `yaml:"states"`
	Transitions []TransitionDefinition `yaml:"transitions"`
}

// TransitionDefinition is the YAML form of an edge. A job block makes it
// job-backed and excludes the simple flags.
type TransitionDefinition struct {
	From              string         `yaml:"from"`
	To                string         `yaml:"to"`
	Scopes            []string       `yaml:"scopes"`
	SetsPublishedDate bool           `yaml:"sets_published_date"`
	UpdatesSlug       bool           `yaml:"updates_slug"`
	Job               *JobDefinition `yaml:"job"`
}

// JobDefinition names the job that carries out a transition.
type JobDefinition struct {
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:"options"`
}

// Parse decodes and validates a YAML workflow definition. Unknown keys are
// rejected.
func Parse(data []byte) (*Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidWorkflow)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}
	return def.Build()
}

// Build converts the definition into a validated Workflow.
func (d Definition) Build() (*Workflow, error) {
	states := make([]State, len(d.States))
	for i, s := range d.States {
		states[i] = State(s)
	}

	transitions := make([]Transition, 0, len(d.Transitions))
	for _, td := range d.Transitions {
		t := Transition{
			From:           State(td.From),
			To:             State(td.To),
			RequiredScopes: td.Scopes,
		}
		if td.Job != nil {
			if td.SetsPublishedDate || td.UpdatesSlug {
				return nil, fmt.Errorf("%w: %s -> %s mixes a job with simple flags", ErrInvalidWorkflow, td.From, td.To)
			}
			t.Action = JobBased{JobType: td.Job.Type, Options: td.Job.Options}
		} else {
			t.Action = Simple{SetsPublishedDate: td.SetsPublishedDate, UpdatesSlug: td.UpdatesSlug}
		}
		transitions = append(transitions, t)
	}
	return New(d.ID, d.Site, d.Name, State(d.Initial), states, transitions)
}
