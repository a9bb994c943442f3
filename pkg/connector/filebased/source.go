package filebased

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/config"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
	"github.com/ajitpratap0/nebula-source-s3/pkg/metrics"
	"github.com/ajitpratap0/nebula-source-s3/pkg/observability"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

// Columns added to every record and discovered schema
const (
	SourceFileLastModified = "_ab_source_file_last_modified"
	SourceFileURL          = "_ab_source_file_url"
)

// Source is a file-based source connector. It implements core.Source.
type Source struct {
	reader        StreamReader
	spec          ConfigSpec
	cursorFactory CursorFactory
	parsers       Parsers

	// Loaded at construction when the matching paths are given
	catalog *protocol.ConfiguredCatalog
	config  SourceConfig
	state   core.State

	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures a Source
type Option func(*Source)

// WithParsers sets the parsers used per filetype
func WithParsers(parsers Parsers) Option {
	return func(s *Source) {
		s.parsers = parsers
	}
}

// WithLogger overrides the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		s.logger = l
	}
}

// WithMetrics overrides the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Source) {
		s.metrics = m
	}
}

// NewSource builds a file-based source. Empty paths mean the matching flag
// was not given. The catalog, config and state files are read and
// validated here so that bad input fails before any command runs.
func NewSource(reader StreamReader, spec ConfigSpec, catalogPath string, cursorFactory CursorFactory, configPath, statePath string, opts ...Option) (*Source, error) {
	if reader == nil || spec == nil || cursorFactory == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "stream reader, config spec and cursor factory are required")
	}

	s := &Source{
		reader:        reader,
		spec:          spec,
		cursorFactory: cursorFactory,
		parsers:       Parsers{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().With(zap.String("component", "filebased_source"))
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector("filebased_source")
	}

	if catalogPath != "" {
		catalog, err := protocol.ReadConfiguredCatalog(catalogPath)
		if err != nil {
			return nil, err
		}
		s.catalog = catalog
	}

	if configPath != "" {
		raw, err := config.LoadRaw(configPath)
		if err != nil {
			return nil, err
		}
		cfg, err := s.spec.Parse(raw)
		if err != nil {
			return nil, err
		}
		s.config = cfg
		if err := s.validateCatalog(cfg, s.catalog); err != nil {
			return nil, err
		}
	}

	if statePath != "" {
		state, err := protocol.ReadState(statePath)
		if err != nil {
			return nil, err
		}
		s.state = state
	}

	return s, nil
}

// validateCatalog checks every catalog stream is configured and uses a
// filetype the source can parse
func (s *Source) validateCatalog(cfg SourceConfig, catalog *protocol.ConfiguredCatalog) error {
	if catalog == nil {
		return nil
	}
	for _, cs := range catalog.Streams {
		stream, ok := cfg.Base().Stream(cs.Stream.Name)
		if !ok {
			return errors.New(errors.ErrorTypeCatalog, ErrMsgStreamNotInCfg).WithDetail("stream", cs.Stream.Name)
		}
		if _, ok := s.parsers[stream.Format.Filetype]; !ok {
			return errors.Newf(errors.ErrorTypeConfig, "no parser for filetype %q", stream.Format.Filetype)
		}
	}
	return nil
}

// Spec implements core.Source
func (s *Source) Spec(ctx context.Context) (*protocol.ConnectorSpecification, error) {
	return &protocol.ConnectorSpecification{
		DocumentationURL:        s.spec.DocumentationURL(),
		ConnectionSpecification: s.spec.Schema(),
		SupportsIncremental:     true,
	}, nil
}

// configure parses raw and hands the result to the stream reader
func (s *Source) configure(raw map[string]interface{}) (*Config, error) {
	cfg, err := s.spec.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := s.reader.SetConfig(cfg); err != nil {
		return nil, err
	}
	s.config = cfg
	return cfg.Base(), nil
}

// Discover implements core.Source
func (s *Source) Discover(ctx context.Context, raw map[string]interface{}) (catalog *protocol.Catalog, err error) {
	ctx, span := observability.StartSpan(ctx, "discover")
	defer func() { observability.EndSpan(span, err) }()

	cfg, err := s.configure(raw)
	if err != nil {
		return nil, err
	}

	catalog = &protocol.Catalog{Streams: make([]protocol.Stream, 0, len(cfg.Streams))}
	for _, stream := range cfg.Streams {
		jsonSchema, err := s.inferStreamSchema(ctx, stream)
		if err != nil {
			return nil, err
		}
		catalog.Streams = append(catalog.Streams, toCatalogStream(stream, jsonSchema))
	}
	return catalog, nil
}

func toCatalogStream(stream StreamConfig, jsonSchema map[string]interface{}) protocol.Stream {
	out := protocol.Stream{
		Name:                stream.Name,
		JSONSchema:          jsonSchema,
		SupportedSyncModes:  []protocol.SyncMode{protocol.SyncModeFullRefresh, protocol.SyncModeIncremental},
		SourceDefinedCursor: true,
		DefaultCursorField:  []string{SourceFileLastModified},
		IsResumable:         true,
	}
	if stream.PrimaryKey != "" {
		out.SourceDefinedPrimaryKey = [][]string{{stream.PrimaryKey}}
	}
	return out
}

// Read implements core.Source. A nil catalog or state falls back to the
// one loaded at construction. Streams fail independently; the returned
// error lists every stream that did not complete.
func (s *Source) Read(ctx context.Context, raw map[string]interface{}, catalog *protocol.ConfiguredCatalog, state core.State, emitter *protocol.Emitter) (err error) {
	ctx, span := observability.StartSpan(ctx, "read")
	defer func() { observability.EndSpan(span, err) }()

	cfg, err := s.configure(raw)
	if err != nil {
		return err
	}
	if catalog == nil {
		catalog = s.catalog
	}
	if catalog == nil {
		return errors.New(errors.ErrorTypeCatalog, "a configured catalog is required to read")
	}
	if state == nil {
		state = s.state
	}

	if err = s.validateCatalog(s.config, catalog); err != nil {
		return err
	}

	var failed []string
	for i := range catalog.Streams {
		cs := &catalog.Streams[i]
		stream, _ := cfg.Stream(cs.Stream.Name)
		log := s.logger.With(zap.String("stream", stream.Name))

		if err := emitter.EmitStreamStatus(stream.Name, protocol.StreamStatusStarted); err != nil {
			return err
		}

		streamCtx, streamSpan := observability.StartSpan(ctx, "read_stream", attribute.String("stream", stream.Name))
		streamErr := s.readStream(streamCtx, cs, *stream, state, emitter, log)
		observability.EndSpan(streamSpan, streamErr)

		if streamErr != nil {
			log.Error("stream failed", zap.Error(streamErr))
			failed = append(failed, stream.Name)
			trace := protocol.ErrorTraceFromError(streamErr, emitter.NowMillis())
			trace.Trace.Error.StreamDescriptor = &protocol.StreamDescriptor{Name: stream.Name}
			if err := emitter.Emit(trace); err != nil {
				return err
			}
			if err := emitter.EmitStreamStatus(stream.Name, protocol.StreamStatusIncomplete); err != nil {
				return err
			}
			continue
		}

		if err := emitter.EmitStreamStatus(stream.Name, protocol.StreamStatusComplete); err != nil {
			return err
		}
	}

	s.logger.Info("sync finished", zap.Any("metrics", s.metrics.Summary()))

	if len(failed) > 0 {
		return errors.Newf(errors.ErrorTypeData, "the following streams did not sync successfully: %v", failed)
	}
	return nil
}

var _ core.Source = (*Source)(nil)
