package main

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

func TestInitLoggingReplacesDefault(t *testing.T) {
	// connector packages have registered themselves, and the default logger
	// is already in use
	require.True(t, registry.HasSource("s3"))
	logger.Get().Debug("before init")

	t.Setenv("LOG_LEVEL", "debug")
	var out bytes.Buffer
	require.NoError(t, initLogging(&out))

	logger.Get().Info("hello", zap.String("stream", "orders"))
	require.NoError(t, registry.RegisterSource("after-init", func(registry.Options) (core.Source, error) {
		return nil, nil
	}))

	var logs []*protocol.LogMessage
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		msg, err := protocol.Decode(sc.Bytes())
		require.NoError(t, err)
		require.Equal(t, protocol.TypeLog, msg.Type)
		logs = append(logs, msg.Log)
	}
	require.Len(t, logs, 2)
	assert.Equal(t, protocol.LogLevelInfo, logs[0].Level)
	assert.Contains(t, logs[0].Message, "hello")
	assert.Equal(t, protocol.LogLevelDebug, logs[1].Level)
	assert.Contains(t, logs[1].Message, "source connector registered")

	// later calls keep the first configuration
	var other bytes.Buffer
	require.NoError(t, initLogging(&other))
	logger.Get().Info("still routed")
	assert.Zero(t, other.Len())
	assert.Contains(t, out.String(), "still routed")
}
