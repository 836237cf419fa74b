package splitbrain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticElection struct{ elected bool }

func (s staticElection) IsLeaderElected() bool   { return s.elected }
func (s staticElection) ElectAsLeader() error    { return nil }
func (s staticElection) DemoteFromLeader() error { return nil }

func peerServer(t *testing.T, node model.RaftNodeState) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, NodePath, r.URL.Path)
		json.NewEncoder(w).Encode(node)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPeerClusterState_CollectsPeersInOrder(t *testing.T) {
	p1 := peerServer(t, model.RaftNodeState{NodeID: "node-2", IsLeader: false})
	p2 := peerServer(t, model.RaftNodeState{NodeID: "node-3", IsLeader: true})

	provider := NewPeerClusterState("node-1", staticElection{elected: true},
		[]string{p1.URL, p2.URL + "/"}, time.Second, zap.NewNop())

	state, err := provider.ClusterState(context.Background())
	require.NoError(t, err)

	nodes := state.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, model.RaftNodeState{NodeID: "node-1", IsLeader: true}, nodes[0])
	assert.Equal(t, "node-2", nodes[1].NodeID)
	assert.Equal(t, "node-3", nodes[2].NodeID)
	assert.Equal(t, 2, state.CountLeaders())
}

func TestPeerClusterState_UnreachablePeerIsNotLeader(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	t.Cleanup(garbage.Close)

	provider := NewPeerClusterState("node-1", staticElection{elected: true},
		[]string{downURL, broken.URL, garbage.URL}, 500*time.Millisecond, zap.NewNop())

	state, err := provider.ClusterState(context.Background())
	require.NoError(t, err)
	assert.Len(t, state.Nodes(), 4)
	assert.Equal(t, 1, state.CountLeaders())
	assert.Equal(t, downURL, state.Nodes()[1].NodeID)
}

func TestPeerClusterState_SlowPeerTimesOut(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		slow.Close()
	})

	provider := NewPeerClusterState("node-1", staticElection{}, []string{slow.URL}, 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	state, err := provider.ClusterState(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, state.CountLeaders())
}

func TestPeerClusterState_NodeHandler(t *testing.T) {
	provider := NewPeerClusterState("node-1", staticElection{elected: true}, nil, time.Second, zap.NewNop())

	rec := httptest.NewRecorder()
	provider.NodeHandler(rec, httptest.NewRequest(http.MethodGet, NodePath, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var node model.RaftNodeState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &node))
	assert.Equal(t, model.RaftNodeState{NodeID: "node-1", IsLeader: true}, node)
}

func TestPeerClusterState_AgainstDetector(t *testing.T) {
	peer := peerServer(t, model.RaftNodeState{NodeID: "node-2", IsLeader: true})
	provider := NewPeerClusterState("node-1", staticElection{elected: true}, []string{peer.URL}, time.Second, zap.NewNop())

	status, err := NewDetector(provider, nil, nil, zap.NewNop()).DetectSplitBrain(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsSplitBrain)
	assert.Equal(t, []string{"node-1", "node-2"}, status.LeaderNodeIDs())
}
