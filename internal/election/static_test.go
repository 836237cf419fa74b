package election

import (
	"testing"

	"github.com/devrev/litefs-sidecar/internal/config"
	"github.com/devrev/litefs-sidecar/internal/primary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStatic(t *testing.T, hostname string) (*StaticElection, *primary.Detector) {
	t.Helper()
	cfg, err := config.NewStaticLeaderConfig("node-1")
	require.NoError(t, err)
	mount := t.TempDir()
	e := NewStaticElection(primary.NewInitializer(cfg), primary.NewMarkerWriter(mount), hostname, zap.NewNop())
	return e, primary.NewDetector(mount)
}

func TestStaticElection_DesignatedPrimary(t *testing.T) {
	e, detector := newStatic(t, "node-1")
	assert.True(t, e.IsLeaderElected())

	require.NoError(t, e.ElectAsLeader())
	require.NoError(t, e.ElectAsLeader())
	isPrimary, err := detector.IsPrimary()
	require.NoError(t, err)
	assert.True(t, isPrimary)

	require.NoError(t, e.DemoteFromLeader())
	require.NoError(t, e.DemoteFromLeader())
	assert.False(t, e.IsLeaderElected())
	isPrimary, err = detector.IsPrimary()
	require.NoError(t, err)
	assert.False(t, isPrimary)

	require.NoError(t, e.ElectAsLeader())
	assert.True(t, e.IsLeaderElected())
}

func TestStaticElection_IsDesignated(t *testing.T) {
	primaryHost, _ := newStatic(t, "node-1")
	assert.True(t, primaryHost.IsDesignated())
	require.NoError(t, primaryHost.DemoteFromLeader())
	assert.True(t, primaryHost.IsDesignated())

	replica, _ := newStatic(t, "node-2")
	assert.False(t, replica.IsDesignated())
}

func TestStaticElection_Replica(t *testing.T) {
	e, _ := newStatic(t, "node-2")
	assert.False(t, e.IsLeaderElected())
	assert.Error(t, e.ElectAsLeader())
	assert.NoError(t, e.DemoteFromLeader())
	assert.False(t, e.IsLeaderElected())
}
