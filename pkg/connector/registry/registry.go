// Package registry maps connector names to factories and keeps the catalog
// of connector descriptions shown by the CLI.
package registry

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	"github.com/kennyhitachi/hci-connectors/pkg/logger"
)

// SourceFactory builds an uninitialized source. Initialize is called by the
// caller with the same configuration.
type SourceFactory func(config *config.BaseConfig) (core.Source, error)

// DestinationFactory builds an uninitialized destination.
type DestinationFactory func(config *config.BaseConfig) (core.Destination, error)

// Registry manages connector registration and instantiation
type Registry struct {
	sources      map[string]SourceFactory
	destinations map[string]DestinationFactory
	mu           sync.RWMutex
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]SourceFactory),
		destinations: make(map[string]DestinationFactory),
	}
}

func (r *Registry) log() *zap.Logger {
	return logger.With(zap.String("component", "connector_registry"))
}

// RegisterSource registers a source factory under a scheme name
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "source connector %s already registered", name)
	}
	r.sources[name] = factory
	r.log().Debug("source connector registered", zap.String("name", name))
	return nil
}

// RegisterDestination registers a destination factory
func (r *Registry) RegisterDestination(name string, factory DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "destination connector %s already registered", name)
	}
	r.destinations[name] = factory
	r.log().Debug("destination connector registered", zap.String("name", name))
	return nil
}

// CreateSource creates a source connector instance
func (r *Registry) CreateSource(name string, cfg *config.BaseConfig) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "source connector %s not found", name).
			WithDetail("available", strings.Join(r.ListSources(), ","))
	}

	source, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to create source connector %s", name)
	}
	return source, nil
}

// CreateDestination creates a destination connector instance
func (r *Registry) CreateDestination(name string, cfg *config.BaseConfig) (core.Destination, error) {
	r.mu.RLock()
	factory, exists := r.destinations[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "destination connector %s not found", name).
			WithDetail("available", strings.Join(r.ListDestinations(), ","))
	}

	destination, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to create destination connector %s", name)
	}
	return destination, nil
}

// SchemeOf returns the registered source whose scheme prefixes uri.
func (r *Registry) SchemeOf(uri string) (string, error) {
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok {
		return "", errors.New(errors.ErrorTypeValidation, "uri has no scheme").WithDetail("uri", uri)
	}
	if !r.HasSource(scheme) {
		return "", errors.Newf(errors.ErrorTypeConfig, "no source connector for scheme %s", scheme)
	}
	return scheme, nil
}

// ListSources returns the registered source names in order
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sources)
}

// ListDestinations returns the registered destination names in order
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.destinations)
}

// HasSource checks if a source connector is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// HasDestination checks if a destination connector is registered
func (r *Registry) HasDestination(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.destinations[name]
	return exists
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RegisterSource registers a source connector in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterDestination registers a destination connector in the global registry
func RegisterDestination(name string, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(name, factory)
}

// CreateSource creates a source connector from the global registry
func CreateSource(name string, cfg *config.BaseConfig) (core.Source, error) {
	return globalRegistry.CreateSource(name, cfg)
}

// CreateDestination creates a destination connector from the global registry
func CreateDestination(name string, cfg *config.BaseConfig) (core.Destination, error) {
	return globalRegistry.CreateDestination(name, cfg)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListDestinations returns registered destinations from the global registry
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// SchemeOf resolves the source scheme of a record URI in the global registry
func SchemeOf(uri string) (string, error) {
	return globalRegistry.SchemeOf(uri)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}

// ConnectorInfo describes a connector and its configuration properties
type ConnectorInfo struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	Description  string                 `json:"description"`
	Version      string                 `json:"version"`
	Capabilities []string               `json:"capabilities"`
	ConfigSchema map[string]interface{} `json:"config_schema"`
}

// RequiredProperties lists the schema entries flagged required, in order.
func (i *ConnectorInfo) RequiredProperties() []string {
	var out []string
	for name, raw := range i.ConfigSchema {
		if prop, ok := raw.(map[string]interface{}); ok {
			if required, _ := prop["required"].(bool); required {
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ConnectorCatalog manages connector metadata keyed by type and name
type ConnectorCatalog struct {
	connectors map[string]*ConnectorInfo
	mu         sync.RWMutex
}

// NewConnectorCatalog creates a new connector catalog
func NewConnectorCatalog() *ConnectorCatalog {
	return &ConnectorCatalog{connectors: make(map[string]*ConnectorInfo)}
}

func catalogKey(typ, name string) string {
	return typ + "/" + name
}

// Register adds a connector to the catalog
func (c *ConnectorCatalog) Register(info *ConnectorInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := catalogKey(info.Type, info.Name)
	if _, exists := c.connectors[key]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "connector %s already in catalog", key)
	}
	c.connectors[key] = info
	return nil
}

// Get retrieves connector information
func (c *ConnectorCatalog) Get(typ, name string) (*ConnectorInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, exists := c.connectors[catalogKey(typ, name)]
	if !exists {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connector %s not found in catalog", catalogKey(typ, name))
	}
	return info, nil
}

// List returns all connectors ordered by type then name
func (c *ConnectorCatalog) List() []*ConnectorInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]*ConnectorInfo, 0, len(c.connectors))
	for _, key := range sortedKeys(c.connectors) {
		infos = append(infos, c.connectors[key])
	}
	return infos
}

var globalCatalog = NewConnectorCatalog()

// RegisterConnectorInfo registers connector information in the global catalog
func RegisterConnectorInfo(info *ConnectorInfo) error {
	return globalCatalog.Register(info)
}

// GetConnectorInfo retrieves connector information from the global catalog
func GetConnectorInfo(typ, name string) (*ConnectorInfo, error) {
	return globalCatalog.Get(typ, name)
}

// ListConnectorInfo lists all connectors in the global catalog
func ListConnectorInfo() []*ConnectorInfo {
	return globalCatalog.List()
}
