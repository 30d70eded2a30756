package fingerprint

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemoryRegistry) {
	t.Helper()

	registry := NewMemoryRegistry()

	return NewService(registry, slog.Default()), registry
}

func TestHashWithGuard_RegistersNewDigest(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.HashWithGuard(t.Context(), sampleWorkflow(), "wf-1")
	require.NoError(t, err)

	assert.NotEmpty(t, result.Digest)
	assert.False(t, result.Fallback)
	assert.Nil(t, result.Collision)
}

func TestHashWithGuard_ExpectedDuplicate(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.HashWithGuard(t.Context(), sampleWorkflow(), "wf-1")
	require.NoError(t, err)

	// Unchanged content hashed again is not a collision.
	second, err := svc.HashWithGuard(t.Context(), sampleWorkflow(), "wf-1")
	require.NoError(t, err)

	assert.Equal(t, first.Digest, second.Digest)
	assert.Nil(t, second.Collision)
}

// seedCollision registers a fabricated entry under the digest the payload
// will produce, simulating a different payload having claimed it first.
func seedCollision(t *testing.T, registry *MemoryRegistry, raw map[string]any, otherEntityID string) string {
	t.Helper()

	digest, err := HashRaw(raw)
	require.NoError(t, err)

	err = registry.Register(context.Background(), digest, Entry{
		Payload:  `{"something":"entirely different"}`,
		EntityID: otherEntityID,
	})
	require.NoError(t, err)

	return digest
}

func TestHashWithGuard_CollisionFallback(t *testing.T) {
	svc, registry := newTestService(t)

	digest := seedCollision(t, registry, sampleWorkflow(), "wf-other")

	result, err := svc.HashWithGuard(t.Context(), sampleWorkflow(), "wf-1")
	require.NoError(t, err)

	assert.True(t, result.Fallback)
	assert.NotEqual(t, digest, result.Digest)
	require.NotNil(t, result.Collision)
	assert.True(t, result.Collision.Resolved)
	assert.Equal(t, "wf-1", result.Collision.EntityID)
	assert.Equal(t, "wf-other", result.Collision.ExistingEntityID)
}

func TestHashWithGuard_FallbackDeterminism(t *testing.T) {
	svc, registry := newTestService(t)

	seedCollision(t, registry, sampleWorkflow(), "wf-other")

	first, err := svc.HashWithGuard(t.Context(), sampleWorkflow(), "wf-1")
	require.NoError(t, err)
	require.True(t, first.Fallback)

	// Reset the registry to the same prior state and recompute: the fallback
	// digest must be identical.
	require.NoError(t, registry.Reset(context.Background()))
	seedCollision(t, registry, sampleWorkflow(), "wf-other")

	second, err := svc.HashWithGuard(t.Context(), sampleWorkflow(), "wf-1")
	require.NoError(t, err)
	require.True(t, second.Fallback)

	assert.Equal(t, first.Digest, second.Digest)
}

func TestHashWithGuard_UnresolvedCollisionWithoutEntityID(t *testing.T) {
	svc, registry := newTestService(t)

	digest := seedCollision(t, registry, sampleWorkflow(), "wf-other")

	result, err := svc.HashWithGuard(t.Context(), sampleWorkflow(), "")
	require.NoError(t, err)

	// Still-colliding digest is returned, flagged as unresolved.
	assert.Equal(t, digest, result.Digest)
	assert.False(t, result.Fallback)
	require.NotNil(t, result.Collision)
	assert.False(t, result.Collision.Resolved)
}
