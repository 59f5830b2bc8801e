// Package file provides file-based persistence backed by one JSON document
// per aggregate. It is the default backend for local development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arionlabs/arion/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string

	definitions *DefinitionRepository
	executions  *ExecutionRepository
	approvals   *ApprovalRepository
	timers      *TimerRepository
	schedules   *ScheduleRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. Accepts a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	store := newStore(cleanRoot)

	return &Persistence{
		root:        cleanRoot,
		definitions: &DefinitionRepository{store: store},
		executions:  &ExecutionRepository{store: store},
		approvals:   &ApprovalRepository{store: store},
		timers:      &TimerRepository{store: store},
		schedules:   &ScheduleRepository{store: store},
	}
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return p.definitions }
func (p *Persistence) Executions() persistence.ExecutionRepository   { return p.executions }
func (p *Persistence) Approvals() persistence.ApprovalRepository     { return p.approvals }
func (p *Persistence) Timers() persistence.TimerRepository           { return p.timers }
func (p *Persistence) Schedules() persistence.ScheduleRepository     { return p.schedules }

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to release for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// store serializes all file access. One process-wide mutex is enough: the
// file backend targets local development, not production concurrency.
type store struct {
	mu   sync.RWMutex
	root string
}

func newStore(root string) *store {
	return &store{root: root}
}

func (s *store) write(collection, id string, doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", collection, err)
	}

	if err := os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s document: %w", collection, err)
	}

	return nil
}

// read unmarshals one document into out. Returns fs.ErrNotExist when the
// document is missing so callers can map it to their sentinel.
func (s *store) read(collection, id string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.root, collection, id+".json"))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s document %s: %w", collection, id, err)
	}

	return nil
}

func (s *store) remove(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return os.Remove(filepath.Join(s.root, collection, id+".json"))
}

// ids lists the document ids in a collection. A missing collection directory
// is an empty collection.
func (s *store) ids(collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.root, collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s documents: %w", collection, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
