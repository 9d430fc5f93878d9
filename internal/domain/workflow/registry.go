package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type registryKey struct {
	tenantID string
	id       string
}

// Registry holds loaded workflows keyed by tenant and id.
type Registry struct {
	mu        sync.RWMutex
	workflows map[registryKey]*Workflow
}

// NewRegistry creates a registry holding workflows.
func NewRegistry(workflows ...*Workflow) (*Registry, error) {
	r := &Registry{workflows: make(map[registryKey]*Workflow)}
	for _, w := range workflows {
		if err := r.Add(w); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadDir parses every .yaml and .yml file in dir.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading workflow dir: %w", err)
	}
	r := &Registry{workflows: make(map[registryKey]*Workflow)}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		w, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := r.Add(w); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return r, nil
}

// Add registers w. Ids are unique per tenant.
func (r *Registry) Add(w *Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{w.TenantID, w.ID}
	if _, dup := r.workflows[key]; dup {
		return fmt.Errorf("%w: duplicate workflow %s for site %s", ErrInvalidWorkflow, w.ID, w.TenantID)
	}
	r.workflows[key] = w
	return nil
}

// Workflow returns the workflow id owned by tenantID.
func (r *Registry) Workflow(_ context.Context, tenantID, id string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[registryKey{tenantID, id}]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return w, nil
}

// List returns all workflows sorted by tenant then id.
func (r *Registry) List() []*Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Workflow, 0, len(r.workflows))
	for _, w := range r.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].ID < out[j].ID
	})
	return out
}
