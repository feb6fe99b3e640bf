// Package store persists workflow definitions, chain handoffs, and run
// history outside the process.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/internal/telemetry"
)

const workflowExt = ".yaml"

// WorkflowStore keeps workflow definitions as YAML files in one directory,
// one file per workflow, named after the workflow.
type WorkflowStore struct {
	dir string
	log *zap.Logger
}

// NewWorkflowStore opens the directory, creating it if needed.
func NewWorkflowStore(dir string, logger *zap.Logger) (*WorkflowStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workflow store: %w", err)
	}
	return &WorkflowStore{dir: dir, log: telemetry.Component(logger, "store")}, nil
}

func (s *WorkflowStore) path(name string) string {
	return filepath.Join(s.dir, name+workflowExt)
}

// Load reads and validates one workflow definition.
func (s *WorkflowStore) Load(name string) (*graph.Definition, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", name, err)
	}
	def, err := graph.FromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", name, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("workflow %q: %w", name, err)
	}
	return def, nil
}

// Save writes the definition under its own name, atomically replacing any
// previous version.
func (s *WorkflowStore) Save(def *graph.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	data, err := def.ToYAML()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, def.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("workflow %q: %w", def.Name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("workflow %q: %w", def.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("workflow %q: %w", def.Name, err)
	}
	if err := os.Rename(tmp.Name(), s.path(def.Name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("workflow %q: %w", def.Name, err)
	}

	s.log.Info("workflow saved", zap.String("workflow", def.Name))
	return nil
}

// Names lists the stored workflows in sorted order.
func (s *WorkflowStore) Names() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), workflowExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), workflowExt))
	}
	sort.Strings(names)
	return names
}

// Has reports whether a workflow with the given name is stored.
func (s *WorkflowStore) Has(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Description returns the workflow's description line, or "" when the
// workflow is missing or unreadable.
func (s *WorkflowStore) Description(name string) string {
	def, err := s.Load(name)
	if err != nil {
		return ""
	}
	return def.Description
}
