// Package registry maps connector names to their factories and metadata.
// Connectors register themselves from init; the launcher builds them by name.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
)

// Options carries the file paths a source may need while it is being built.
// Empty paths mean the corresponding flag was not given.
type Options struct {
	CatalogPath string
	ConfigPath  string
	StatePath   string
}

// SourceFactory is a function that creates source connector instances
type SourceFactory func(opts Options) (core.Source, error)

type entry struct {
	factory SourceFactory
	info    *core.ConnectorMetadata
}

// Registry holds the known connectors
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// log resolves the global logger on use, so registrations made from init
// functions follow whatever main configures later
func (r *Registry) log() *zap.Logger {
	return logger.Get().With(zap.String("component", "connector_registry"))
}

func (r *Registry) entryFor(name string) *entry {
	e, ok := r.entries[name]
	if !ok {
		e = &entry{}
		r.entries[name] = e
	}
	return e
}

// RegisterSource adds a source factory. A name can be registered once.
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	if factory == nil {
		return errors.Newf(errors.ErrorTypeInternal, "source connector %s has no factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryFor(name)
	if e.factory != nil {
		return errors.Newf(errors.ErrorTypeConfig, "source connector %s already registered", name)
	}
	e.factory = factory
	r.log().Debug("source connector registered", zap.String("name", name))
	return nil
}

// RegisterInfo attaches metadata to a connector name
func (r *Registry) RegisterInfo(info *core.ConnectorMetadata) error {
	if info == nil || info.Name == "" {
		return errors.New(errors.ErrorTypeInternal, "connector metadata needs a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryFor(info.Name)
	if e.info != nil {
		return errors.Newf(errors.ErrorTypeConfig, "connector %s already has metadata", info.Name)
	}
	e.info = info
	return nil
}

// CreateSource builds the named source. Factory failures are returned
// unwrapped so callers see the original error type.
func (r *Registry) CreateSource(name string, opts Options) (core.Source, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok || e.factory == nil {
		return nil, errors.Newf(errors.ErrorTypeConfig, "source connector %s not found", name)
	}
	return e.factory(opts)
}

// Info returns the metadata registered for name
func (r *Registry) Info(name string) (*core.ConnectorMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok || e.info == nil {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connector %s not found in catalog", name)
	}
	return e.info, nil
}

// ListSources returns the sorted names of registered sources
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if e.factory != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// HasSource reports whether a source factory is registered under name
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.factory != nil
}

// RegisterSource registers a source in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterConnectorInfo registers metadata in the global registry
func RegisterConnectorInfo(info *core.ConnectorMetadata) error {
	return globalRegistry.RegisterInfo(info)
}

// CreateSource builds a source from the global registry
func CreateSource(name string, opts Options) (core.Source, error) {
	return globalRegistry.CreateSource(name, opts)
}

// GetConnectorInfo returns metadata from the global registry
func GetConnectorInfo(name string) (*core.ConnectorMetadata, error) {
	return globalRegistry.Info(name)
}

// ListSources returns the sources in the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// HasSource checks the global registry
func HasSource(name string) bool {
	return globalRegistry.HasSource(name)
}
