package grid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freecasterhq/freecaster-grid/pkg/grid"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	roster := []grid.Node{
		{Name: "caldris", Address: "https://caldris.example:8440"},
		{Name: "okarthel", Address: "https://okarthel.example:8440", TelegramHandle: "okarthel_ops"},
		{Name: "brennagh", Address: "https://brennagh.example:8440"},
	}

	registry := grid.NewRegistry("okarthel", roster)

	// Self keeps its roster metadata but never shows up as a peer.
	assert.Equal(t, "okarthel", registry.Self().Name)
	assert.Equal(t, "okarthel_ops", registry.Self().TelegramHandle)

	peers := registry.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, "brennagh", peers[0].Name)
	assert.Equal(t, "caldris", peers[1].Name)
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	registry := grid.NewRegistry("okarthel", []grid.Node{
		{Name: "okarthel", Address: "https://okarthel.example:8440"},
		{Name: "brennagh", Address: "https://brennagh.example:8440"},
	})

	node, ok := registry.Lookup("brennagh")
	require.True(t, ok)
	assert.Equal(t, "https://brennagh.example:8440", node.Address)

	// The local node is a valid lookup and silence target.
	assert.True(t, registry.IsKnown("okarthel"))
	assert.False(t, registry.IsKnown("stranger"))
}
