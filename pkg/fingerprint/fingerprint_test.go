package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWorkflow() map[string]any {
	return map[string]any{
		"id":        "runtime-assigned-id",
		"name":      "Order sync",
		"createdAt": "2025-01-01T00:00:00Z",
		"updatedAt": "2025-06-01T00:00:00Z",
		"versionId": "v-123",
		"meta":      map[string]any{"instanceId": "abc"},
		"nodes": []any{
			map[string]any{"name": "Webhook", "type": "webhook", "position": []any{100.0, 100.0}},
			map[string]any{"name": "Transform", "type": "set", "position": []any{300.0, 100.0}},
		},
		"connections": map[string]any{
			"Webhook": map[string]any{"main": []any{"Transform"}},
		},
	}
}

func TestNormalize_StripsVolatileFields(t *testing.T) {
	canonical := Normalize(sampleWorkflow())

	assert.NotContains(t, canonical, "id")
	assert.NotContains(t, canonical, "createdAt")
	assert.NotContains(t, canonical, "updatedAt")
	assert.NotContains(t, canonical, "versionId")
	assert.NotContains(t, canonical, "meta")
	assert.Contains(t, canonical, "nodes")
	assert.Contains(t, canonical, "connections")
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	raw := sampleWorkflow()
	canonical := Normalize(raw)

	nodes, ok := canonical["nodes"].([]any)
	require.True(t, ok)

	node, ok := nodes[0].(map[string]any)
	require.True(t, ok)
	node["name"] = "Renamed"

	originalNodes := raw["nodes"].([]any)
	originalNode := originalNodes[0].(map[string]any)
	assert.Equal(t, "Webhook", originalNode["name"])
}

func TestHashRaw_IgnoresCosmeticNoise(t *testing.T) {
	first := sampleWorkflow()

	second := sampleWorkflow()
	second["id"] = "a-different-runtime-id"
	second["updatedAt"] = "2025-07-01T00:00:00Z"
	second["versionId"] = "v-999"

	firstHash, err := HashRaw(first)
	require.NoError(t, err)

	secondHash, err := HashRaw(second)
	require.NoError(t, err)

	assert.Equal(t, firstHash, secondHash)
}

func TestHashRaw_DetectsRealChanges(t *testing.T) {
	first := sampleWorkflow()

	second := sampleWorkflow()
	nodes := second["nodes"].([]any)
	node := nodes[0].(map[string]any)
	node["type"] = "schedule"

	firstHash, err := HashRaw(first)
	require.NoError(t, err)

	secondHash, err := HashRaw(second)
	require.NoError(t, err)

	assert.NotEqual(t, firstHash, secondHash)
}

func TestHash_Deterministic(t *testing.T) {
	canonical := Normalize(sampleWorkflow())

	first, err := Hash(canonical)
	require.NoError(t, err)

	second, err := Hash(canonical)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestOverallHash_OrderIndependent(t *testing.T) {
	hashes := map[string]string{
		"wf-1": "aaa",
		"wf-2": "bbb",
		"wf-3": "ccc",
	}

	first := OverallHash(hashes)
	second := OverallHash(map[string]string{"wf-3": "ccc", "wf-1": "aaa", "wf-2": "bbb"})

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, OverallHash(map[string]string{"wf-1": "aaa"}))
}
