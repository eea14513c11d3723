package natsclient

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versia-works/federation/config"
)

func TestConnectionStatus_String(t *testing.T) {
	cases := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.status.String())
	}
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), config.NATSConfig{}, nil, nil)
	require.Error(t, err)
}

func TestClient_CircuitOpensAfterThreshold(t *testing.T) {
	c := &Client{circuitThreshold: 3, logger: slog.Default()}
	c.status.Store(StatusConnected)

	for i := 0; i < 3; i++ {
		c.recordFailure()
	}
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.ErrorIs(t, c.checkUsable(), ErrCircuitOpen)

	c.resetCircuit()
	c.status.Store(StatusConnected)
	assert.NoError(t, c.checkUsable())
}

func TestClient_ClosedIsUnusable(t *testing.T) {
	c := &Client{circuitThreshold: 5}
	c.status.Store(StatusConnected)
	c.closed.Store(true)

	assert.ErrorIs(t, c.checkUsable(), ErrNotConnected)
}
