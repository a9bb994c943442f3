// Package s3legacy reports the single-stream configuration document that
// deployments holding a legacy configuration were created against.
package s3legacy

import (
	"context"
	_ "embed"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/sources/s3"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

// Connector identity
const (
	Name    = "s3-legacy"
	Version = "3.0.0"
)

//go:embed spec.json
var specDocument []byte

func init() {
	_ = registry.RegisterSource(Name, func(registry.Options) (core.Source, error) {
		return New(), nil
	})

	_ = registry.RegisterConnectorInfo(&core.ConnectorMetadata{
		Name:          Name,
		Type:          core.ConnectorTypeSource,
		Version:       Version,
		Description:   "Single-stream S3 source configuration document",
		Documentation: s3.DocumentationURL,
		Capabilities:  []string{core.CapabilityIncremental},
		ConfigSchema:  connectionSpecification(),
	})
}

// Source implements core.Source over the legacy configuration. Only spec is
// answered here; the current source accepts legacy documents on every other
// command.
type Source struct {
	logger *zap.Logger
}

// Option configures a Source
type Option func(*Source)

// WithLogger overrides the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		s.logger = l
	}
}

// New creates the legacy source
func New(opts ...Option) *Source {
	s := &Source{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().With(zap.String("component", "s3_legacy_source"))
	}
	return s
}

// Spec implements core.Source. The legacy document is reported unchanged.
func (s *Source) Spec(ctx context.Context) (*protocol.ConnectorSpecification, error) {
	return &protocol.ConnectorSpecification{
		DocumentationURL:        s3.DocumentationURL,
		ConnectionSpecification: connectionSpecification(),
		SupportsIncremental:     true,
	}, nil
}

// Check implements core.Source
func (s *Source) Check(ctx context.Context, raw map[string]interface{}) (*protocol.ConnectionStatus, error) {
	return nil, s.specOnly("check")
}

// Discover implements core.Source
func (s *Source) Discover(ctx context.Context, raw map[string]interface{}) (*protocol.Catalog, error) {
	return nil, s.specOnly("discover")
}

// Read implements core.Source
func (s *Source) Read(ctx context.Context, raw map[string]interface{}, catalog *protocol.ConfiguredCatalog, state core.State, emitter *protocol.Emitter) error {
	return s.specOnly("read")
}

func (s *Source) specOnly(command string) error {
	s.logger.Debug("legacy source asked for a command it does not serve", zap.String("command", command))
	return errors.Newf(errors.ErrorTypeInternal, "the legacy S3 source only answers spec, not %s", command)
}

func connectionSpecification() map[string]interface{} {
	var doc map[string]interface{}
	if err := jsonpool.Unmarshal(specDocument, &doc); err != nil {
		panic(err)
	}
	return doc
}

var _ core.Source = (*Source)(nil)
