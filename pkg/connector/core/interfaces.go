package core

import (
	"context"

	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource ConnectorType = "source"
)

// Capability names advertised through connector metadata
const (
	CapabilityIncremental = "incremental"
	CapabilityDiscover    = "discover"
	CapabilityCheck       = "check"
)

// Record is a single row produced by a source
type Record map[string]interface{}

// State is the list of per-stream checkpoints handed to Read
type State []protocol.StateMessage

// ForStream returns the checkpoint for the named stream, if any
func (s State) ForStream(name string) (map[string]interface{}, bool) {
	for _, msg := range s {
		if msg.Stream != nil && msg.Stream.StreamDescriptor.Name == name {
			return msg.Stream.StreamState, true
		}
	}
	return nil, false
}

// Source is the interface that all source connectors must implement.
// Every operation receives the raw configuration document as loaded from
// the config file; sources parse and validate it themselves.
type Source interface {
	// Spec describes the configuration the source accepts
	Spec(ctx context.Context) (*protocol.ConnectorSpecification, error)

	// Check verifies the configuration can be used to read data. A failed
	// check is reported through the returned status, not as an error.
	Check(ctx context.Context, config map[string]interface{}) (*protocol.ConnectionStatus, error)

	// Discover returns the streams the configuration exposes
	Discover(ctx context.Context, config map[string]interface{}) (*protocol.Catalog, error)

	// Read syncs the configured streams, emitting records, state and stream
	// status through emitter
	Read(ctx context.Context, config map[string]interface{}, catalog *protocol.ConfiguredCatalog, state State, emitter *protocol.Emitter) error
}

// ConnectorMetadata provides metadata about a connector
type ConnectorMetadata struct {
	Name          string                 `json:"name"`
	Type          ConnectorType          `json:"type"`
	Version       string                 `json:"version"`
	Description   string                 `json:"description"`
	Documentation string                 `json:"documentation"`
	Capabilities  []string               `json:"capabilities"`
	ConfigSchema  map[string]interface{} `json:"config_schema"`
}
