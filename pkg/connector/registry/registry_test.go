package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

type stubSource struct {
	opts Options
}

func (s *stubSource) Spec(context.Context) (*protocol.ConnectorSpecification, error) {
	return &protocol.ConnectorSpecification{}, nil
}

func (s *stubSource) Check(context.Context, map[string]interface{}) (*protocol.ConnectionStatus, error) {
	return &protocol.ConnectionStatus{Status: protocol.StatusSucceeded}, nil
}

func (s *stubSource) Discover(context.Context, map[string]interface{}) (*protocol.Catalog, error) {
	return &protocol.Catalog{}, nil
}

func (s *stubSource) Read(context.Context, map[string]interface{}, *protocol.ConfiguredCatalog, core.State, *protocol.Emitter) error {
	return nil
}

func TestRegistry(t *testing.T) {
	t.Run("create passes options to factory", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.RegisterSource("stub", func(opts Options) (core.Source, error) {
			return &stubSource{opts: opts}, nil
		}))

		src, err := r.CreateSource("stub", Options{CatalogPath: "catalog.json", ConfigPath: "config.json"})
		require.NoError(t, err)
		assert.Equal(t, "catalog.json", src.(*stubSource).opts.CatalogPath)
		assert.Equal(t, "config.json", src.(*stubSource).opts.ConfigPath)
		assert.True(t, r.HasSource("stub"))
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		r := NewRegistry()
		factory := func(Options) (core.Source, error) { return &stubSource{}, nil }
		require.NoError(t, r.RegisterSource("stub", factory))
		err := r.RegisterSource("stub", factory)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})

	t.Run("unknown source is a config error", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.CreateSource("missing", Options{})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	})

	t.Run("factory error is returned as is", func(t *testing.T) {
		r := NewRegistry()
		cause := errors.New(errors.ErrorTypeCatalog, "bad catalog")
		require.NoError(t, r.RegisterSource("broken", func(Options) (core.Source, error) {
			return nil, cause
		}))

		_, err := r.CreateSource("broken", Options{})
		assert.Same(t, cause, err)
	})

	t.Run("list is sorted", func(t *testing.T) {
		r := NewRegistry()
		factory := func(Options) (core.Source, error) { return &stubSource{}, nil }
		require.NoError(t, r.RegisterSource("b", factory))
		require.NoError(t, r.RegisterSource("a", factory))
		require.NoError(t, r.RegisterInfo(&core.ConnectorMetadata{Name: "info-only"}))
		assert.Equal(t, []string{"a", "b"}, r.ListSources())
		assert.False(t, r.HasSource("info-only"))
	})

	t.Run("nil factory is rejected", func(t *testing.T) {
		r := NewRegistry()
		require.Error(t, r.RegisterSource("nil", nil))
		assert.False(t, r.HasSource("nil"))
	})
}

func TestConnectorInfo(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterInfo(&core.ConnectorMetadata{Name: "s3", Type: core.ConnectorTypeSource}))
	require.NoError(t, r.RegisterInfo(&core.ConnectorMetadata{Name: "s3-legacy", Type: core.ConnectorTypeSource}))
	require.Error(t, r.RegisterInfo(&core.ConnectorMetadata{Name: "s3"}))
	require.Error(t, r.RegisterInfo(&core.ConnectorMetadata{}))

	info, err := r.Info("s3")
	require.NoError(t, err)
	assert.Equal(t, core.ConnectorTypeSource, info.Type)

	_, err = r.Info("gcs")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	// metadata alone does not make a source buildable
	_, err = r.CreateSource("s3-legacy", Options{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
