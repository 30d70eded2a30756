// Package file provides file-based persistence for promotion records,
// incidents, mappings, approvals and retention records. Intended for local
// development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/promion/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the file
// system. Every record is one JSON file; a single mutex serializes writes,
// which is plenty for the workloads this backend serves.
type Persistence struct {
	root string
	mu   sync.RWMutex

	promotionRepo *PromotionRepository
	incidentRepo  *IncidentRepository
	mappingRepo   *MappingRepository
	approvalRepo  *ApprovalRepository
	retentionRepo *RetentionRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. A "file://" URL prefix is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.promotionRepo = &PromotionRepository{p: p}
	p.incidentRepo = &IncidentRepository{p: p}
	p.mappingRepo = &MappingRepository{p: p}
	p.approvalRepo = &ApprovalRepository{p: p}
	p.retentionRepo = &RetentionRepository{p: p}

	return p
}

func (p *Persistence) PromotionRepository() persistence.PromotionRepository {
	return p.promotionRepo
}

func (p *Persistence) IncidentRepository() persistence.IncidentRepository {
	return p.incidentRepo
}

func (p *Persistence) MappingRepository() persistence.MappingRepository {
	return p.mappingRepo
}

func (p *Persistence) ApprovalRepository() persistence.ApprovalRepository {
	return p.approvalRepo
}

func (p *Persistence) RetentionRepository() persistence.RetentionRepository {
	return p.retentionRepo
}

// HealthCheck verifies the root directory is usable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(p.root, 0o755)
	if err != nil {
		return fmt.Errorf("persistence root unavailable: %w", err)
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// writeJSON serializes value into root/<parts...>.json.
func (p *Persistence) writeJSON(value any, parts ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := filepath.Join(append([]string{p.root}, parts...)...) + ".json"

	err := os.MkdirAll(filepath.Dir(target), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	content, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", target, err)
	}

	err = os.WriteFile(target, content, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	return nil
}

// readJSON loads root/<parts...>.json into value, reporting os.ErrNotExist
// untouched so callers can map it to their not-found sentinel.
func (p *Persistence) readJSON(value any, parts ...string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	target := filepath.Join(append([]string{p.root}, parts...)...) + ".json"

	content, err := os.ReadFile(target)
	if err != nil {
		return err
	}

	err = json.Unmarshal(content, value)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", target, err)
	}

	return nil
}

// listIDs returns the record ids (file names without extension) in a
// directory. A missing directory is an empty list.
func (p *Persistence) listIDs(parts ...string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dir := filepath.Join(append([]string{p.root}, parts...)...)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}

	return ids, nil
}

// listDirs returns sub-directory names under root/<parts...>.
func (p *Persistence) listDirs(parts ...string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dir := filepath.Join(append([]string{p.root}, parts...)...)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

// remove deletes root/<parts...>.json, ignoring already-missing files.
func (p *Persistence) remove(parts ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	target := filepath.Join(append([]string{p.root}, parts...)...) + ".json"

	err := os.Remove(target)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", target, err)
	}

	return nil
}
