package transport

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/packflow/internal/runtime/config"
	"github.com/drblury/packflow/internal/runtime/logging"
)

func testLogger() watermill.LoggerAdapter {
	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	serviceLogger := logging.NewSlogServiceLogger(slogger)
	return logging.NewWatermillAdapter(serviceLogger)
}

func TestDefaultFactory(t *testing.T) {
	factory := DefaultFactory()
	assert.NotNil(t, factory)
}

func TestDefaultFactory_Build_Channel(t *testing.T) {
	factory := DefaultFactory()
	ctx := context.Background()
	cfg := &config.Config{
		EventBus: "channel",
	}
	logger := testLogger()

	transport, err := factory.Build(ctx, cfg, logger)

	require.NoError(t, err)
	assert.NotNil(t, transport.Publisher)
	assert.NotNil(t, transport.Subscriber)
}

func TestDefaultFactory_Build_NilConfig(t *testing.T) {
	factory := DefaultFactory()
	ctx := context.Background()
	logger := testLogger()

	_, err := factory.Build(ctx, nil, logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestDefaultFactory_Build_InvalidTransport(t *testing.T) {
	factory := DefaultFactory()
	ctx := context.Background()
	cfg := &config.Config{
		EventBus: "invalid-transport",
	}
	logger := testLogger()

	_, err := factory.Build(ctx, cfg, logger)
	assert.Error(t, err)
}

func TestTransportStruct(t *testing.T) {
	// Verify Transport struct can be created
	transport := Transport{
		Publisher:  nil,
		Subscriber: nil,
	}
	assert.NotNil(t, transport)
}
