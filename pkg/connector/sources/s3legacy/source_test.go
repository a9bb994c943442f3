package s3legacy

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/sources/s3"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

func legacyConfig() map[string]interface{} {
	return map[string]interface{}{
		"dataset":      "orders",
		"path_pattern": "orders/*.csv",
		"format":       map[string]interface{}{"filetype": "csv"},
		"provider":     map[string]interface{}{"bucket": "bucket", "path_prefix": "orders/"},
	}
}

func TestSpecIsLegacyDocument(t *testing.T) {
	spec, err := New(WithLogger(zaptest.NewLogger(t))).Spec(context.Background())
	require.NoError(t, err)
	props := spec.ConnectionSpecification["properties"].(map[string]interface{})
	assert.Contains(t, props, "dataset")
	assert.Contains(t, props, "provider")
	assert.NotContains(t, props, "streams")
	assert.Equal(t, s3.DocumentationURL, spec.DocumentationURL)
	assert.True(t, spec.SupportsIncremental)
}

func TestOnlySpecIsServed(t *testing.T) {
	src := New(WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	status, err := src.Check(ctx, legacyConfig())
	assert.Nil(t, status)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
	assert.Contains(t, err.Error(), "check")

	_, err = src.Discover(ctx, legacyConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discover")

	err = src.Read(ctx, legacyConfig(), &protocol.ConfiguredCatalog{}, nil, protocol.NewEmitter(io.Discard))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")
}

// Deployments still holding a legacy document are served by the current
// source, which converts it while parsing.
func TestLegacyDocumentParsesAsCurrent(t *testing.T) {
	cfg, err := s3.ParseConfig(legacyConfig())
	require.NoError(t, err)
	assert.Equal(t, "bucket", cfg.Bucket)
	require.Len(t, cfg.Streams, 1)
	assert.Equal(t, "orders", cfg.Streams[0].Name)
}

func TestRegistered(t *testing.T) {
	source, err := registry.CreateSource(Name, registry.Options{})
	require.NoError(t, err)
	_, ok := source.(*Source)
	assert.True(t, ok)

	info, err := registry.GetConnectorInfo(Name)
	require.NoError(t, err)
	assert.Equal(t, core.ConnectorTypeSource, info.Type)
	assert.Equal(t, []string{core.CapabilityIncremental}, info.Capabilities)
	assert.Contains(t, info.ConfigSchema, "properties")
}
