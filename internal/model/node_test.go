package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_SetHealthClamps(t *testing.T) {
	n := NewNode("X", "x", NodeTypeSensor, CapabilityPayload)

	n.SetHealth(140)
	assert.Equal(t, 100.0, n.Health())

	n.SetHealth(-3)
	assert.Equal(t, 0.0, n.Health())

	n.SetHealth(math.NaN())
	assert.Equal(t, 0.0, n.Health())
}

func TestNode_BlindBelowThreshold(t *testing.T) {
	n := NewNode("X", "x", NodeTypeSensor, CapabilityPayload, CapabilityNavigation)

	n.SetHealth(15)
	assert.Empty(t, n.Capabilities())
	assert.False(t, n.HasCapability(CapabilityPayload))
	assert.True(t, n.IsActive())
	assert.Len(t, n.DeclaredCapabilities(), 2)

	n.SetHealth(15.01)
	assert.True(t, n.HasCapability(CapabilityNavigation))
	assert.Len(t, n.Capabilities(), 2)
}

func TestStatusFromHealth(t *testing.T) {
	tests := []struct {
		health float64
		want   NodeStatus
	}{
		{100, NodeStatusOperational},
		{75.01, NodeStatusOperational},
		{75, NodeStatusHealing},
		{0.1, NodeStatusHealing},
		{0, NodeStatusDead},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFromHealth(tt.health), "health %v", tt.health)
	}
}

func TestDefaultRoster(t *testing.T) {
	roster := DefaultRoster()
	require.Len(t, roster, 8)

	masters := 0
	for i, n := range roster {
		assert.Equal(t, RosterIDs()[i], n.ID)
		assert.Equal(t, 100.0, n.Health())
		if n.IsMaster {
			masters++
			assert.Equal(t, InitialMaster, n.ID)
		}
	}
	assert.Equal(t, 1, masters)
}
