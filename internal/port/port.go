// Package port declares the narrow interfaces the coordination core consumes.
// Adapters for the filesystem, raft, gossip, HTTP peers and metrics implement
// them; tests substitute in-memory fakes.
package port

import (
	"context"
	"time"

	"github.com/devrev/litefs-sidecar/internal/model"
)

// PrimaryDetector answers whether this node currently holds the primary role.
// Implementations fail with a LiteFSNotRunning error when the mount is absent.
type PrimaryDetector interface {
	IsPrimary() (bool, error)
}

// LeaderElection is the minimal contract of an election engine. All methods
// are idempotent.
type LeaderElection interface {
	IsLeaderElected() bool
	ElectAsLeader() error
	DemoteFromLeader() error
}

// RaftLeaderElection is a LeaderElection that also knows about membership
// and quorum.
type RaftLeaderElection interface {
	LeaderElection
	ClusterMembers() []string
	IsMemberInCluster(nodeID string) bool
	ElectionTimeout() time.Duration
	HeartbeatInterval() time.Duration
	IsQuorumReached() bool
}

// ClusterStateProvider returns every member's claimed role
type ClusterStateProvider interface {
	ClusterState(ctx context.Context) (model.RaftClusterState, error)
}

// Forwarder replays a request on the primary
type Forwarder interface {
	Forward(ctx context.Context, primaryURL string, req model.ForwardRequest) (*model.ForwardResponse, error)
}

// Metrics receives fire-and-forget gauge updates
type Metrics interface {
	SetNodeState(state model.NodeState)
	SetHealthStatus(status model.HealthStatus)
	SetSplitBrainDetected(detected bool)
	SetLeaderElected(elected bool)
}

// NodeIDResolver returns this node's identity
type NodeIDResolver interface {
	ResolveNodeID() (string, error)
}

// Clock supplies the current time. Values returned by time.Now carry a
// monotonic reading, so differences are immune to wall clock jumps.
type Clock interface {
	Now() time.Time
}

// EventEmitter is notified of failover and split-brain events. Calls must
// not block the caller.
type EventEmitter interface {
	EmitFailover(event model.FailoverEvent)
	EmitSplitBrain(status model.SplitBrainStatus)
}
