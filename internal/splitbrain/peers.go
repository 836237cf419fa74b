package splitbrain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
	"github.com/devrev/litefs-sidecar/internal/port"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NodePath is the route every sidecar serves its own RaftNodeState on
const NodePath = "/cluster/node"

var _ port.ClusterStateProvider = (*PeerClusterState)(nil)

// PeerClusterState builds the cluster snapshot from the local election and
// the NodePath endpoint of every peer. Unreachable or misbehaving peers are
// reported as not leader: a node nobody can reach cannot accept writes from
// this side of the partition.
type PeerClusterState struct {
	nodeID   string
	election port.LeaderElection
	peers    []string
	client   *http.Client
	logger   *zap.Logger
}

// NewPeerClusterState creates the provider. peerURLs are base URLs such as
// http://node-2:8090.
func NewPeerClusterState(
	nodeID string,
	election port.LeaderElection,
	peerURLs []string,
	timeout time.Duration,
	logger *zap.Logger,
) *PeerClusterState {
	peers := make([]string, 0, len(peerURLs))
	for _, p := range peerURLs {
		peers = append(peers, strings.TrimRight(p, "/"))
	}
	return &PeerClusterState{
		nodeID:   nodeID,
		election: election,
		peers:    peers,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// LocalNode returns this node's claimed role
func (p *PeerClusterState) LocalNode() model.RaftNodeState {
	return model.RaftNodeState{NodeID: p.nodeID, IsLeader: p.election.IsLeaderElected()}
}

// ClusterState implements port.ClusterStateProvider. Peers are queried
// concurrently; the result keeps the local node first, then peers in
// configured order.
func (p *PeerClusterState) ClusterState(ctx context.Context) (model.RaftClusterState, error) {
	nodes := make([]model.RaftNodeState, len(p.peers)+1)
	nodes[0] = p.LocalNode()

	g, gctx := errgroup.WithContext(ctx)
	for i, peer := range p.peers {
		i, peer := i, peer
		g.Go(func() error {
			node, err := p.queryPeer(gctx, peer)
			if err != nil {
				p.logger.Warn("Peer unreachable, treating as not leader",
					zap.String("peer", peer),
					zap.Error(err))
				node = model.RaftNodeState{NodeID: peer, IsLeader: false}
			}
			nodes[i+1] = node
			return nil
		})
	}
	_ = g.Wait()

	return model.NewRaftClusterState(nodes)
}

func (p *PeerClusterState) queryPeer(ctx context.Context, peer string) (model.RaftNodeState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+NodePath, nil)
	if err != nil {
		return model.RaftNodeState{}, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return model.RaftNodeState{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return model.RaftNodeState{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var node model.RaftNodeState
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&node); err != nil {
		return model.RaftNodeState{}, fmt.Errorf("failed to decode node state: %w", err)
	}
	if strings.TrimSpace(node.NodeID) == "" {
		return model.RaftNodeState{}, fmt.Errorf("peer returned blank node id")
	}
	return node, nil
}

// NodeHandler serves LocalNode as JSON on NodePath
func (p *PeerClusterState) NodeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.LocalNode())
}
