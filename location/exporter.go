package location

import (
	"sync"

	"github.com/tallybill/tally/db"
	"github.com/tallybill/tally/errors"
)

// Exporter pushes location changes to an external system. Hooks run
// synchronously inside the mutating transaction: an exporter failure
// rolls back the whole operation.
type Exporter interface {
	// Name identifies the exporter in the conf-driven active list.
	Name() string

	// ExportInsert runs after a location insert, inside its transaction.
	ExportInsert(q db.Queryer, loc *Location) error

	// ExportReplace runs after a location replace, inside its transaction.
	ExportReplace(q db.Queryer, old, updated *Location) error
}

// ExporterRegistry manages exporters by name.
// Thread-safe for concurrent registration and lookup.
type ExporterRegistry struct {
	exporters map[string]Exporter
	mu        sync.RWMutex
}

// NewExporterRegistry creates an empty exporter registry.
func NewExporterRegistry() *ExporterRegistry {
	return &ExporterRegistry{
		exporters: make(map[string]Exporter),
	}
}

// Register adds an exporter using its name.
// Panics if an exporter is already registered with that name.
func (r *ExporterRegistry) Register(e Exporter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Name()
	if _, exists := r.exporters[name]; exists {
		panic("exporter already registered: " + name)
	}
	r.exporters[name] = e
}

// Get retrieves the exporter for a name. Returns nil if none registered.
func (r *ExporterRegistry) Get(name string) Exporter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exporters[name]
}

// runInsertHooks invokes ExportInsert on every named exporter inside q's
// transaction scope.
func (r *ExporterRegistry) runInsertHooks(q db.Queryer, names []string, loc *Location) error {
	for _, name := range names {
		e := r.Get(name)
		if e == nil {
			return errors.Newf("exporting to %s failed: no such exporter", name)
		}
		if err := e.ExportInsert(q, loc); err != nil {
			return errors.Wrapf(err, "exporting to %s failed", name)
		}
	}
	return nil
}

// runReplaceHooks invokes ExportReplace on every named exporter inside
// q's transaction scope.
func (r *ExporterRegistry) runReplaceHooks(q db.Queryer, names []string, old, updated *Location) error {
	for _, name := range names {
		e := r.Get(name)
		if e == nil {
			return errors.Newf("exporting to %s failed: no such exporter", name)
		}
		if err := e.ExportReplace(q, old, updated); err != nil {
			return errors.Wrapf(err, "exporting to %s failed", name)
		}
	}
	return nil
}
