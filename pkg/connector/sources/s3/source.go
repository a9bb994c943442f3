// Package s3 reads files from Amazon S3 and S3-compatible object stores.
//
// The package supplies the three collaborators of a file-based source: a
// StreamReader backed by the AWS SDK, the Spec that parses and describes
// the configuration, and a Cursor that can pick up state written by the
// single-stream layout of earlier connector versions.
package s3

import (
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/parsers"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-source-s3/pkg/metrics"
)

// Connector identity
const (
	Name    = "s3"
	Version = "4.0.0"
)

func init() {
	_ = registry.RegisterSource(Name, func(opts registry.Options) (core.Source, error) {
		src, err := NewSource(opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	})

	_ = registry.RegisterConnectorInfo(&core.ConnectorMetadata{
		Name:          Name,
		Type:          core.ConnectorTypeSource,
		Version:       Version,
		Description:   "Reads CSV, JSONL, Parquet and Avro files from an S3 bucket",
		Documentation: DocumentationURL,
		Capabilities: []string{
			core.CapabilityCheck,
			core.CapabilityDiscover,
			core.CapabilityIncremental,
		},
		ConfigSchema: Spec{}.Schema(),
	})
}

// NewSource builds the S3 source. The catalog, config and state files
// named in opts are loaded and validated before it returns.
func NewSource(opts registry.Options, readerOpts ...ReaderOption) (*filebased.Source, error) {
	collector := metrics.NewCollector(Name)
	reader := NewStreamReader(append([]ReaderOption{WithReaderMetrics(collector)}, readerOpts...)...)

	return filebased.NewSource(reader, Spec{}, opts.CatalogPath, CursorFactory(), opts.ConfigPath, opts.StatePath,
		filebased.WithParsers(parsers.Default()),
		filebased.WithMetrics(collector),
	)
}
