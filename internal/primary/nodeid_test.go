package primary

import (
	"testing"

	sidecarerrors "github.com/devrev/litefs-sidecar/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticNodeID(t *testing.T) {
	id, err := StaticNodeID(" node-1 ").ResolveNodeID()
	require.NoError(t, err)
	assert.Equal(t, "node-1", id)

	_, err = StaticNodeID("  ").ResolveNodeID()
	assert.Equal(t, sidecarerrors.ErrCodeNodeIDUnset, sidecarerrors.GetCode(err))
}

func TestEnvNodeID(t *testing.T) {
	t.Setenv("SIDECAR_TEST_NODE_ID", "node-7")
	id, err := EnvNodeID("SIDECAR_TEST_NODE_ID").ResolveNodeID()
	require.NoError(t, err)
	assert.Equal(t, "node-7", id)

	t.Setenv("SIDECAR_TEST_NODE_ID", "")
	_, err = EnvNodeID("SIDECAR_TEST_NODE_ID").ResolveNodeID()
	assert.Equal(t, sidecarerrors.ErrCodeNodeIDUnset, sidecarerrors.GetCode(err))
}

func TestFirstNodeID(t *testing.T) {
	id, err := FirstNodeID{StaticNodeID(""), StaticNodeID("node-2")}.ResolveNodeID()
	require.NoError(t, err)
	assert.Equal(t, "node-2", id)

	_, err = FirstNodeID{StaticNodeID("")}.ResolveNodeID()
	assert.Error(t, err)

	_, err = FirstNodeID(nil).ResolveNodeID()
	assert.Equal(t, sidecarerrors.ErrCodeNodeIDUnset, sidecarerrors.GetCode(err))
}
