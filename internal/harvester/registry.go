// Package harvester defines the plug-in contract for source-type specific
// gather, fetch and import logic, and a registry to look implementations up by name.
package harvester

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/target/harvestd/internal/domain/model"
)

// ErrHarvesterNotFound is returned when no harvester is registered for a source type.
var ErrHarvesterNotFound = errors.New("harvester not found")

// Info describes a harvester implementation.
type Info struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Harvester performs the three stages of harvesting for one source type.
type Harvester interface {
	Info() Info
	// GatherStage discovers records for a job and returns the IDs of the harvest objects it created.
	GatherStage(ctx context.Context, job *model.Job) ([]string, error)
	FetchStage(ctx context.Context, obj *model.HarvestObject) error
	ImportStage(ctx context.Context, obj *model.HarvestObject) error
}

// ForceImporter is implemented by harvesters that can reimport unchanged content.
type ForceImporter interface {
	SetForceImport(force bool)
}

// Registry maps source types to harvesters. The zero value is not usable; call NewRegistry.
type Registry struct {
	mu         sync.RWMutex
	harvesters map[string]Harvester
}

// NewRegistry returns a registry populated with the given harvesters.
func NewRegistry(hs ...Harvester) (*Registry, error) {
	r := &Registry{harvesters: make(map[string]Harvester, len(hs))}
	for _, h := range hs {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a harvester under its Info().Name.
func (r *Registry) Register(h Harvester) error {
	if h == nil {
		return errors.New("harvester is nil")
	}
	name := h.Info().Name
	if name == "" {
		return errors.New("harvester name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.harvesters[name]; exists {
		return fmt.Errorf("harvester %q already registered", name)
	}
	r.harvesters[name] = h
	return nil
}

// Lookup returns the harvester registered for sourceType.
func (r *Registry) Lookup(sourceType string) (Harvester, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.harvesters[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrHarvesterNotFound, sourceType)
	}
	return h, nil
}

// List returns the info of every registered harvester sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.harvesters))
	for _, h := range r.harvesters {
		out = append(out, h.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
